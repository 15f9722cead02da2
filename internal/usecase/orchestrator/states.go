package orchestrator

type state int

const (
	stateIdle state = iota
	stateSessionStarted
	stateNavigated
	stateFieldsFilled
	stateChallengeChecked
	stateSubmitted
	stateVerified
)

var stateNames = map[state]string{
	stateIdle:             "idle",
	stateSessionStarted:   "session_started",
	stateNavigated:        "navigated",
	stateFieldsFilled:     "fields_filled",
	stateChallengeChecked: "challenge_checked",
	stateSubmitted:        "submitted",
	stateVerified:         "verified",
}

func (s state) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
