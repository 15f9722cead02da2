package entity

import "time"

type WorkflowKind string

const (
	WorkflowAuthenticate WorkflowKind = "authenticate"
	WorkflowSubmitForm   WorkflowKind = "submit_form"
)

func (k WorkflowKind) IsValid() bool {
	switch k {
	case WorkflowAuthenticate, WorkflowSubmitForm:
		return true
	default:
		return false
	}
}

type LocatorStrategy string

const (
	LocateByCSS   LocatorStrategy = "css"
	LocateByXPath LocatorStrategy = "xpath"
	LocateByID    LocatorStrategy = "id"
	LocateByName  LocatorStrategy = "name"
	LocateByClass LocatorStrategy = "class"
)

type Locator struct {
	Strategy LocatorStrategy `json:"strategy" yaml:"strategy"`
	Value    string          `json:"value" yaml:"value"`
}

type InteractionType string

const (
	InteractText    InteractionType = "text"
	InteractChoice  InteractionType = "choice"
	InteractBoolean InteractionType = "boolean"
)

// FieldDescriptor declares how one logical form field is located and
// interacted with. Never mutated after construction.
type FieldDescriptor struct {
	Locator     Locator         `json:"locator" yaml:"locator"`
	Interaction InteractionType `json:"interaction" yaml:"interaction"`
}

// WorkflowRequest is the immutable description of one automation run.
// When CredentialKey names a stored credential, its username and secret
// bind to the first declared field matching a common login-field alias
// (username/user/login/email and password/pass/secret) unless Values
// already carries a literal for that field.
type WorkflowRequest struct {
	Kind              WorkflowKind               `json:"kind" yaml:"kind"`
	Site              string                     `json:"site" yaml:"site"`
	EntryURL          string                     `json:"entry_url" yaml:"entry_url"`
	Fields            map[string]FieldDescriptor `json:"fields" yaml:"fields"`
	Submit            Locator                    `json:"submit" yaml:"submit"`
	SuccessIndicators []string                   `json:"success_indicators,omitempty" yaml:"success_indicators,omitempty"`
	CredentialKey     string                     `json:"credential_key,omitempty" yaml:"credential_key,omitempty"`
	Values            map[string]string          `json:"values,omitempty" yaml:"values,omitempty"`
}

type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureStartup      FailureKind = "startup"
	FailureNavigation   FailureKind = "navigation"
	FailureInteraction  FailureKind = "interaction"
	FailureChallenge    FailureKind = "challenge_unsolved"
	FailureVerification FailureKind = "verification"
	FailureCancelled    FailureKind = "cancelled"
	FailureCredentials  FailureKind = "credentials"
)

type WorkflowOutcome struct {
	ID        string        `json:"id"`
	Site      string        `json:"site"`
	Kind      WorkflowKind  `json:"kind"`
	Success   bool          `json:"success"`
	Failure   FailureKind   `json:"failure,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	PageTitle string        `json:"page_title,omitempty"`
	PageURL   string        `json:"page_url,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// SessionStatus is a point-in-time snapshot of the orchestrator's session.
type SessionStatus struct {
	Active    bool   `json:"active"`
	Site      string `json:"site,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
	PageTitle string `json:"page_title,omitempty"`
}
