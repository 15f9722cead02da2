package entity

import "time"

// Credential is a stored site login. The secret is kept encrypted at rest
// and only decrypted by a storage lookup.
type Credential struct {
	Site      string     `json:"site"`
	Username  string     `json:"username"`
	Secret    string     `json:"-"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailed  AuditStatus = "failed"
	AuditError   AuditStatus = "error"
)

type AuditEntry struct {
	ID        string      `json:"id"`
	Site      string      `json:"site"`
	Action    string      `json:"action"`
	Status    AuditStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type FormTemplate struct {
	Site      string            `json:"site"`
	Name      string            `json:"name"`
	Values    map[string]string `json:"values"`
	CreatedAt time.Time         `json:"created_at"`
}
