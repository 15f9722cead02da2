package challenge

import (
	"strings"

	"golang.org/x/net/html"

	"formpilot/internal/domain/entity"
)

// presenceVocabulary is the fixed keyword set that marks a page as carrying
// a bot challenge. Matching is case-insensitive substring search.
var presenceVocabulary = []string{
	"captcha", "recaptcha", "verify", "robot", "human",
	"security check", "verification", "challenge",
}

// solvedVocabulary marks a page as having accepted a challenge answer.
var solvedVocabulary = []string{
	"success", "verified", "correct", "passed",
	"completed", "validated", "approved",
}

type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Detect decides whether a challenge is present and which family it belongs
// to. Pure function of the content; a single lowercase scan, no errors.
func (c *Classifier) Detect(content string) entity.ChallengeDetection {
	lower := strings.ToLower(content)

	present := false
	for _, kw := range presenceVocabulary {
		if strings.Contains(lower, kw) {
			present = true
			break
		}
	}
	if !present {
		return entity.ChallengeDetection{}
	}

	return entity.ChallengeDetection{
		Present: true,
		Family:  classifyFamily(lower),
	}
}

// classifyFamily is priority-ordered: an interactive recaptcha widget wins
// over everything, then arithmetic keywords, then the semantic image grid.
// Distorted-character puzzles rarely announce themselves, so text is the
// fallback.
func classifyFamily(lower string) entity.ChallengeFamily {
	switch {
	case strings.Contains(lower, "recaptcha"):
		return entity.FamilyImage
	case strings.Contains(lower, "math") || strings.Contains(lower, "calculate"):
		return entity.FamilyMath
	case strings.Contains(lower, "image") && strings.Contains(lower, "select"):
		return entity.FamilyInteractive
	default:
		return entity.FamilyText
	}
}

// Solved reports whether the page content signals an accepted answer.
func (c *Classifier) Solved(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range solvedVocabulary {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Markup walks the page structure and pulls out what it can about the
// challenge widget: the answer input's name, the puzzle image src, and
// whether a third-party widget iframe is embedded. Unparseable HTML yields
// an empty result rather than an error.
func (c *Classifier) Markup(rawHTML string) entity.ChallengeMarkup {
	var m entity.ChallengeMarkup

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return m
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input":
				if m.InputName == "" {
					if name := attr(n, "name"); containsFold(name, "captcha") {
						m.InputName = name
					}
				}
			case "img":
				if m.ImageSrc == "" {
					if src := attr(n, "src"); containsFold(src, "captcha") {
						m.ImageSrc = src
					}
				}
			case "iframe", "script":
				if containsFold(attr(n, "src"), "recaptcha") {
					m.WidgetSeen = true
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return m
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}
