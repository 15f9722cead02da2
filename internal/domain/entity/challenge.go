package entity

type ChallengeFamily string

const (
	FamilyText        ChallengeFamily = "text"
	FamilyMath        ChallengeFamily = "math"
	FamilyImage       ChallengeFamily = "image"
	FamilyInteractive ChallengeFamily = "interactive"
)

// Solvable reports whether the solver ensemble can attempt this family.
// Image and interactive widgets are handled as permanent skips.
func (f ChallengeFamily) Solvable() bool {
	return f == FamilyText || f == FamilyMath
}

type ChallengeDetection struct {
	Present bool
	Family  ChallengeFamily
}

// ChallengeAnswer is one solver attempt result. Confidence is an integer
// heuristic ranking, not a probability; higher is preferred.
type ChallengeAnswer struct {
	Text       string
	Confidence int
	Family     ChallengeFamily
}

// ChallengeMarkup is what the classifier could pull out of the page
// structure about the challenge widget itself.
type ChallengeMarkup struct {
	InputName  string
	ImageSrc   string
	WidgetSeen bool
}

// ImageFeatures describes an unsolvable image challenge for manual triage.
type ImageFeatures struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	MeanLuma    float64 `json:"mean_luma"`
	StdDevLuma  float64 `json:"stddev_luma"`
	EdgeDensity float64 `json:"edge_density"`
	CornerCount int     `json:"corner_count"`
}
