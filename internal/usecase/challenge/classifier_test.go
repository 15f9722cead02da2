package challenge

import (
	"testing"

	"formpilot/internal/domain/entity"
)

func TestDetect_NoKeywords(t *testing.T) {
	c := NewClassifier()

	det := c.Detect("<html><body>Just a regular page about kittens</body></html>")
	if det.Present {
		t.Error("Expected present=false for content without vocabulary keywords")
	}
}

func TestDetect_PresenceKeywords(t *testing.T) {
	c := NewClassifier()

	cases := []string{
		"please solve the CAPTCHA below",
		"Verify you are not a robot",
		"security check in progress",
		"complete this challenge to continue",
	}
	for _, content := range cases {
		if det := c.Detect(content); !det.Present {
			t.Errorf("Expected present=true for %q", content)
		}
	}
}

func TestDetect_RecaptchaWinsPriority(t *testing.T) {
	c := NewClassifier()

	// recaptcha outranks the math keyword even when both are present
	det := c.Detect("recaptcha widget, also please calculate this math problem")
	if !det.Present {
		t.Fatal("Expected present=true")
	}
	if det.Family != entity.FamilyImage {
		t.Errorf("Expected family=image for recaptcha content, got %s", det.Family)
	}
}

func TestDetect_MathFamily(t *testing.T) {
	c := NewClassifier()

	det := c.Detect("captcha: calculate the sum to continue")
	if det.Family != entity.FamilyMath {
		t.Errorf("Expected family=math, got %s", det.Family)
	}
}

func TestDetect_ImageGridIsInteractive(t *testing.T) {
	c := NewClassifier()

	det := c.Detect("captcha: select every image containing a bus")
	if det.Family != entity.FamilyInteractive {
		t.Errorf("Expected family=interactive, got %s", det.Family)
	}
}

func TestDetect_TextIsFallback(t *testing.T) {
	c := NewClassifier()

	det := c.Detect("please enter the captcha code shown")
	if det.Family != entity.FamilyText {
		t.Errorf("Expected family=text, got %s", det.Family)
	}
}

func TestSolved(t *testing.T) {
	c := NewClassifier()

	if !c.Solved("Verification passed, redirecting...") {
		t.Error("Expected solved=true")
	}
	if c.Solved("wrong code, try again") {
		t.Error("Expected solved=false")
	}
}

func TestMarkup(t *testing.T) {
	c := NewClassifier()

	page := `<html><body>
		<form>
			<img src="/gen/captcha.png?id=7">
			<input type="text" name="captcha_answer">
			<iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe>
		</form>
	</body></html>`

	m := c.Markup(page)
	if m.InputName != "captcha_answer" {
		t.Errorf("Expected input name captcha_answer, got %q", m.InputName)
	}
	if m.ImageSrc != "/gen/captcha.png?id=7" {
		t.Errorf("Expected image src, got %q", m.ImageSrc)
	}
	if !m.WidgetSeen {
		t.Error("Expected widget iframe to be detected")
	}
}

func TestMarkup_EmptyPage(t *testing.T) {
	c := NewClassifier()

	m := c.Markup("")
	if m.InputName != "" || m.ImageSrc != "" || m.WidgetSeen {
		t.Errorf("Expected empty markup info, got %+v", m)
	}
}
