package verifier

import (
	"strings"

	"formpilot/internal/domain/entity"
)

// Default vocabularies per workflow kind, used when the request supplies
// no indicators of its own.
var (
	authDefaults = []string{"logout", "profile", "dashboard", "welcome"}
	formDefaults = []string{"success", "thank you", "submitted", "received"}
)

type Verifier struct{}

func New() *Verifier {
	return &Verifier{}
}

// Verify reports whether any positive indicator appears in the page
// content, case-insensitively. This is a heuristic, not a structural
// check: indicator text appearing incidentally yields a false positive,
// and localized success pages yield false negatives.
func (v *Verifier) Verify(content string, indicators []string, kind entity.WorkflowKind) bool {
	if content == "" {
		return false
	}
	if len(indicators) == 0 {
		indicators = defaultsFor(kind)
	}

	lower := strings.ToLower(content)
	for _, indicator := range indicators {
		if strings.Contains(lower, strings.ToLower(indicator)) {
			return true
		}
	}
	return false
}

func defaultsFor(kind entity.WorkflowKind) []string {
	switch kind {
	case entity.WorkflowSubmitForm:
		return formDefaults
	default:
		return authDefaults
	}
}
