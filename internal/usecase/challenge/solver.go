package challenge

import (
	"context"
	"errors"
	"image"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"formpilot/internal/application/port/output"
	"formpilot/internal/domain/entity"
)

// ErrNoAnswer means every solver variant came back empty: the caller should
// proceed without an answer rather than abort.
var ErrNoAnswer = errors.New("challenge: no answer produced")

// Solver is the best-effort ensemble over the preprocess variants. All
// paths are pure transformations of the supplied artifact.
type Solver struct {
	ocr    output.OCRPort
	logger output.LoggerPort
}

func NewSolver(ocr output.OCRPort, logger output.LoggerPort) *Solver {
	return &Solver{
		ocr:    ocr,
		logger: logger,
	}
}

// SolveText runs every preprocess variant through a single-line OCR read
// and keeps the highest-scoring non-empty result. Running K independent
// pipelines and voting beats any single fixed pipeline on noisy reads.
func (s *Solver) SolveText(ctx context.Context, img image.Image) (*entity.ChallengeAnswer, error) {
	best := entity.ChallengeAnswer{Family: entity.FamilyText}

	for _, p := range preprocessors() {
		text, err := s.ocr.Recognize(ctx, p.fn(img))
		if err != nil {
			s.logger.Debug("Recognition variant failed", "variant", p.name, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		score := Score(text)
		s.logger.Debug("Recognition variant", "variant", p.name, "text", text, "score", score)
		if score > best.Confidence {
			best.Text = text
			best.Confidence = score
		}
	}

	if best.Text == "" {
		return nil, ErrNoAnswer
	}
	return &best, nil
}

// SolveMath reads the artifact as text first, then extracts and evaluates
// the first two-operand expression found in the recognition.
func (s *Solver) SolveMath(ctx context.Context, img image.Image) (*entity.ChallengeAnswer, error) {
	read, err := s.SolveText(ctx, img)
	if err != nil {
		return nil, err
	}
	return s.SolveMathText(read.Text)
}

// SolveMathText extracts a two-operand arithmetic expression from already
// readable text, e.g. a challenge rendered as plain markup.
func (s *Solver) SolveMathText(text string) (*entity.ChallengeAnswer, error) {
	expr, ok := ExtractExpression(text)
	if !ok {
		return nil, ErrNoAnswer
	}

	result, err := evaluate(expr)
	if err != nil {
		s.logger.Warn("Arithmetic evaluation failed", "expression", expr.String(), "error", err)
		return nil, ErrNoAnswer
	}

	return &entity.ChallengeAnswer{
		Text:       result,
		Confidence: Score(result),
		Family:     entity.FamilyMath,
	}, nil
}

// Score ranks one raw recognized string. Base score is the character
// length; alphanumeric reads get +10, purely numeric +5 on top, and a
// length in [3,8] gets +15 as the common answer-length band. A heuristic
// tie-breaker, not a correctness guarantee.
func Score(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	score := utf8.RuneCountInString(text)

	if isAlphanumeric(text) {
		score += 10
	}
	if isNumeric(text) {
		score += 5
	}
	length := utf8.RuneCountInString(text)
	if length >= 3 && length <= 8 {
		score += 15
	}
	return score
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// exprPattern is the whole grammar: two non-negative integer operands and
// one operator, optional whitespace. Recognized text is never evaluated as
// anything more general than this.
var exprPattern = regexp.MustCompile(`(\d+)\s*([+\-*/x×÷])\s*(\d+)`)

type Expression struct {
	Left     int64
	Operator rune
	Right    int64
}

func (e Expression) String() string {
	return strconv.FormatInt(e.Left, 10) + " " + string(e.Operator) + " " + strconv.FormatInt(e.Right, 10)
}

// ExtractExpression scans left to right for the first substring matching
// the two-operand grammar.
func ExtractExpression(text string) (Expression, bool) {
	m := exprPattern.FindStringSubmatch(text)
	if m == nil {
		return Expression{}, false
	}

	left, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Expression{}, false
	}
	right, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return Expression{}, false
	}

	op, _ := utf8.DecodeRuneInString(m[2])
	return Expression{Left: left, Operator: op, Right: right}, true
}

func evaluate(e Expression) (string, error) {
	switch e.Operator {
	case '+':
		return strconv.FormatInt(e.Left+e.Right, 10), nil
	case '-':
		return strconv.FormatInt(e.Left-e.Right, 10), nil
	case '*', 'x', '×':
		return strconv.FormatInt(e.Left*e.Right, 10), nil
	case '/', '÷':
		if e.Right == 0 {
			return "", errors.New("division by zero")
		}
		return strconv.FormatFloat(float64(e.Left)/float64(e.Right), 'f', -1, 64), nil
	default:
		return "", errors.New("unsupported operator")
	}
}
