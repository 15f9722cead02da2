package output

import (
	"context"

	"formpilot/internal/domain/entity"
)

// StoragePort is the persistent collaborator: encrypted credentials, the
// audit log, and saved form templates. Concurrent appends are serialized
// by the adapter.
type StoragePort interface {
	AddCredential(ctx context.Context, site, username, secret, notes string) error
	LookupCredential(ctx context.Context, site, username string) (*entity.Credential, error)
	ListCredentials(ctx context.Context, site string) ([]entity.Credential, error)
	DeleteCredential(ctx context.Context, site, username string) error

	AppendAudit(ctx context.Context, site, action string, status entity.AuditStatus, detail string) error
	AuditEntries(ctx context.Context, limit int) ([]entity.AuditEntry, error)

	SaveTemplate(ctx context.Context, site, name string, values map[string]string) error
	Template(ctx context.Context, site, name string) (*entity.FormTemplate, error)

	Close() error
}
