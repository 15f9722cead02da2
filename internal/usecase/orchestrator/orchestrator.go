package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"formpilot/internal/application/port/input"
	"formpilot/internal/application/port/output"
	"formpilot/internal/domain/entity"
	"formpilot/internal/usecase/challenge"
	"formpilot/internal/usecase/verifier"
)

var _ input.WorkflowRunner = (*Orchestrator)(nil)

// Fixed fallback locators for challenge widgets, used when the page
// markup does not name them explicitly.
var (
	challengeImageLoc = entity.Locator{Strategy: entity.LocateByCSS, Value: `img[src*="captcha"], .captcha img`}
	challengeTextLoc  = entity.Locator{Strategy: entity.LocateByCSS, Value: `.captcha-text, .math-captcha`}
	challengeInputLoc = entity.Locator{Strategy: entity.LocateByCSS, Value: `input[name*="captcha"], .captcha input`}
)

type Config struct {
	Browser         string
	Headless        bool
	ElementWait     time.Duration
	PageLoadTimeout time.Duration
	PaceMin         time.Duration
	PaceMax         time.Duration

	// ScreenshotDir receives a page capture for every failed workflow.
	// Empty disables capture.
	ScreenshotDir string
}

func DefaultConfig() Config {
	return Config{
		Browser:         "chrome",
		Headless:        false,
		ElementWait:     10 * time.Second,
		PageLoadTimeout: 30 * time.Second,
		PaceMin:         1 * time.Second,
		PaceMax:         3 * time.Second,
		ScreenshotDir:   "screenshots",
	}
}

// Orchestrator drives one workflow at a time through the state machine
// idle → session_started → navigated → fields_filled → challenge_checked →
// submitted → verified. It owns at most one live browser session; starting
// a new workflow tears down the prior session first, and every exit path
// releases the current one.
type Orchestrator struct {
	launch     output.BrowserFactory
	storage    output.StoragePort
	classifier *challenge.Classifier
	solver     *challenge.Solver
	verify     *verifier.Verifier
	logger     output.LoggerPort
	cfg        Config

	mu      sync.Mutex
	session output.BrowserPort
	site    string
	cancel  context.CancelFunc
}

func New(
	launch output.BrowserFactory,
	storage output.StoragePort,
	classifier *challenge.Classifier,
	solver *challenge.Solver,
	verify *verifier.Verifier,
	logger output.LoggerPort,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		launch:     launch,
		storage:    storage,
		classifier: classifier,
		solver:     solver,
		verify:     verify,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run executes one workflow to a terminal outcome. Faults are translated
// into the outcome at the state boundary that produced them; callers never
// see a raw error.
func (o *Orchestrator) Run(ctx context.Context, req entity.WorkflowRequest) entity.WorkflowOutcome {
	start := time.Now()
	outcome := entity.WorkflowOutcome{
		ID:   uuid.NewString(),
		Site: req.Site,
		Kind: req.Kind,
	}

	log := o.logger.WithField("workflow", outcome.ID)

	if !req.Kind.IsValid() {
		outcome.Failure = entity.FailureStartup
		outcome.Reason = fmt.Sprintf("unknown workflow kind %q", req.Kind)
		return o.finish(ctx, outcome, start)
	}

	// At most one live session per orchestrator: a prior session is torn
	// down before a new one is acquired.
	o.teardown()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	log.Info("Workflow started", "kind", req.Kind, "site", req.Site, "url", req.EntryURL)

	session, err := o.launch(runCtx)
	if err != nil {
		// Fatal, no retry, and no teardown: the session never existed.
		outcome.Failure = entity.FailureStartup
		outcome.Reason = fmt.Sprintf("session start failed: %v", err)
		log.Error("Session start failed", "error", err)
		return o.finish(ctx, outcome, start)
	}

	o.mu.Lock()
	o.session = session
	o.site = req.Site
	o.mu.Unlock()
	defer o.teardown()

	outcome = o.runStates(runCtx, session, req, outcome, log)

	outcome.PageTitle = session.Title()
	outcome.PageURL = session.CurrentURL()

	if !outcome.Success && outcome.Failure != entity.FailureCancelled {
		o.captureFailure(runCtx, session, outcome.ID, log)
	}
	return o.finish(ctx, outcome, start)
}

// RunBatch processes requests strictly sequentially with the longer pacing
// delay between them. One failing request does not abort the batch; a stop
// request does.
func (o *Orchestrator) RunBatch(ctx context.Context, reqs []entity.WorkflowRequest) []entity.WorkflowOutcome {
	outcomes := make([]entity.WorkflowOutcome, 0, len(reqs))

	for i, req := range reqs {
		if ctx.Err() != nil {
			outcomes = append(outcomes, entity.WorkflowOutcome{
				ID:      uuid.NewString(),
				Site:    req.Site,
				Kind:    req.Kind,
				Failure: entity.FailureCancelled,
				Reason:  "batch stopped",
			})
			continue
		}

		o.logger.Info("Batch item started", "index", i, "site", req.Site)
		outcomes = append(outcomes, o.Run(ctx, req))

		if i < len(reqs)-1 {
			o.pace(ctx, o.cfg.PaceMax)
		}
	}
	return outcomes
}

// Status reports whether a session is live and what it is looking at.
func (o *Orchestrator) Status() entity.SessionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return entity.SessionStatus{}
	}
	return entity.SessionStatus{
		Active:    true,
		Site:      o.site,
		PageURL:   o.session.CurrentURL(),
		PageTitle: o.session.Title(),
	}
}

// Stop cancels the running workflow at the next state boundary and tears
// the session down. It cannot interrupt an in-flight driver call, but the
// cancellation propagates into its bounded waits.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.teardown()
}

func (o *Orchestrator) runStates(ctx context.Context, session output.BrowserPort, req entity.WorkflowRequest, outcome entity.WorkflowOutcome, log output.LoggerPort) entity.WorkflowOutcome {
	current := stateSessionStarted

	advance := func(next state) bool {
		if ctx.Err() != nil {
			outcome.Failure = entity.FailureCancelled
			outcome.Reason = fmt.Sprintf("stopped before %s", next)
			return false
		}
		log.Debug("State transition", "from", current.String(), "to", next.String())
		current = next
		return true
	}

	// session_started → navigated
	if !advance(stateNavigated) {
		return outcome
	}
	if err := o.navigate(ctx, session, req.EntryURL); err != nil {
		outcome.Failure = entity.FailureNavigation
		outcome.Reason = fmt.Sprintf("navigation failed: %v", err)
		log.Error("Navigation failed", "url", req.EntryURL, "error", err)
		return outcome
	}

	// navigated → fields_filled
	if !advance(stateFieldsFilled) {
		return outcome
	}
	if failure, reason := o.fillFields(ctx, session, req, log); failure != entity.FailureNone {
		outcome.Failure = failure
		outcome.Reason = reason
		log.Error("Field population failed", "reason", reason)
		return outcome
	}

	// fields_filled → challenge_checked
	if !advance(stateChallengeChecked) {
		return outcome
	}
	challengeSeen, challengeAnswered := o.handleChallenge(ctx, session, req, log)

	// challenge_checked → submitted
	if !advance(stateSubmitted) {
		return outcome
	}
	if err := session.Click(ctx, req.Submit); err != nil {
		outcome.Failure = entity.FailureInteraction
		outcome.Reason = fmt.Sprintf("submit failed: %v", err)
		log.Error("Submit failed", "error", err)
		return outcome
	}
	o.pace(ctx, o.cfg.PaceMin)

	// submitted → verified
	if !advance(stateVerified) {
		return outcome
	}
	content, err := session.PageContent(ctx)
	if err != nil {
		outcome.Failure = entity.FailureVerification
		outcome.Reason = fmt.Sprintf("post-submit content unavailable: %v", err)
		return outcome
	}
	if !o.verify.Verify(content.HTML, req.SuccessIndicators, req.Kind) {
		// An unaccepted challenge explains the failure better than the
		// missing indicator does.
		if challengeSeen && !o.classifier.Solved(content.HTML) {
			outcome.Failure = entity.FailureChallenge
			outcome.Reason = "challenge answer not accepted"
			if !challengeAnswered {
				outcome.Reason = "challenge could not be solved"
			}
			return outcome
		}
		// A normal negative outcome, not a fault.
		outcome.Failure = entity.FailureVerification
		outcome.Reason = "no success indicator matched"
		return outcome
	}

	outcome.Success = true
	return outcome
}

func (o *Orchestrator) navigate(ctx context.Context, session output.BrowserPort, url string) error {
	if err := session.Navigate(ctx, url); err != nil {
		return err
	}
	return session.WaitReady(ctx, o.cfg.PageLoadTimeout)
}

// fillFields performs the declared interaction for every field present in
// both the field map and the resolved input values. A field that cannot be
// located is logged and skipped; only total failure to interact with any
// declared field escalates.
func (o *Orchestrator) fillFields(ctx context.Context, session output.BrowserPort, req entity.WorkflowRequest, log output.LoggerPort) (entity.FailureKind, string) {
	values, err := o.resolveValues(ctx, req)
	if err != nil {
		return entity.FailureCredentials, err.Error()
	}

	names := make([]string, 0, len(req.Fields))
	for name := range req.Fields {
		if _, ok := values[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return entity.FailureNone, ""
	}

	filled := 0
	for _, name := range names {
		field := req.Fields[name]
		if err := o.interact(ctx, session, field, values[name]); err != nil {
			log.Warn("Field interaction failed, skipping", "field", name, "error", err)
		} else {
			filled++
		}
		o.pace(ctx, o.cfg.PaceMin)
	}

	if filled == 0 {
		return entity.FailureInteraction, "no declared field could be interacted with"
	}
	return entity.FailureNone, ""
}

func (o *Orchestrator) interact(ctx context.Context, session output.BrowserPort, field entity.FieldDescriptor, value string) error {
	switch field.Interaction {
	case entity.InteractText:
		return session.Fill(ctx, field.Locator, value)
	case entity.InteractChoice:
		return session.SelectOption(ctx, field.Locator, value)
	case entity.InteractBoolean:
		checked, err := strconv.ParseBool(value)
		if err != nil {
			checked = value != ""
		}
		return session.SetChecked(ctx, field.Locator, checked)
	default:
		return fmt.Errorf("unknown interaction type %q", field.Interaction)
	}
}

// Common names for login fields, probed in order when binding a stored
// credential to the request's declared fields.
var (
	usernameAliases = []string{"username", "user", "login", "email"}
	passwordAliases = []string{"password", "pass", "secret"}
)

// resolveValues merges literal form values with a credential lookup when
// the request names one. Each credential part binds to the first declared
// field matching a common alias, without overriding a literal value.
func (o *Orchestrator) resolveValues(ctx context.Context, req entity.WorkflowRequest) (map[string]string, error) {
	values := make(map[string]string, len(req.Values)+2)
	for k, v := range req.Values {
		values[k] = v
	}

	if req.CredentialKey == "" {
		return values, nil
	}

	cred, err := o.storage.LookupCredential(ctx, req.Site, req.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("credential lookup for %s/%s failed: %w", req.Site, req.CredentialKey, err)
	}

	bind := func(aliases []string, value string) {
		for _, name := range aliases {
			if _, declared := req.Fields[name]; declared {
				if _, set := values[name]; !set {
					values[name] = value
				}
				return
			}
		}
	}
	bind(usernameAliases, cred.Username)
	bind(passwordAliases, cred.Secret)
	return values, nil
}

// handleChallenge is best-effort by policy: when no solver produces an
// answer, the workflow proceeds and the submit step is allowed to fail
// naturally. It reports whether a challenge was seen and whether an
// answer was written.
func (o *Orchestrator) handleChallenge(ctx context.Context, session output.BrowserPort, req entity.WorkflowRequest, log output.LoggerPort) (seen, answered bool) {
	content, err := session.PageContent(ctx)
	if err != nil {
		log.Warn("Challenge check skipped, content unavailable", "error", err)
		return false, false
	}

	detection := o.classifier.Detect(content.HTML)
	if !detection.Present {
		return false, false
	}
	log.Info("Challenge detected", "family", detection.Family)

	markup := o.classifier.Markup(content.HTML)

	imageLoc := challengeImageLoc
	if markup.ImageSrc != "" {
		imageLoc = entity.Locator{Strategy: entity.LocateByCSS, Value: fmt.Sprintf(`img[src=%q]`, markup.ImageSrc)}
	}

	var answer *entity.ChallengeAnswer
	switch detection.Family {
	case entity.FamilyText:
		answer = o.solveText(ctx, session, imageLoc, log)
	case entity.FamilyMath:
		answer = o.solveMath(ctx, session, imageLoc, log)
	case entity.FamilyImage:
		// Triage records its own audit entry; nothing to type in.
		o.triageImage(ctx, session, req, imageLoc, log)
		return true, false
	default:
		log.Warn("Challenge family is unsolvable, proceeding", "family", detection.Family)
	}

	if answer == nil {
		o.auditChallenge(ctx, req, detection.Family, "unsolved")
		return true, false
	}

	input := challengeInputLoc
	if markup.InputName != "" {
		input = entity.Locator{Strategy: entity.LocateByName, Value: markup.InputName}
	}
	if err := session.Fill(ctx, input, answer.Text); err != nil {
		log.Warn("Could not write challenge answer", "error", err)
		o.auditChallenge(ctx, req, detection.Family, "answer not written")
		return true, false
	}

	log.Info("Challenge answered", "family", answer.Family, "confidence", answer.Confidence)
	return true, true
}

func (o *Orchestrator) solveText(ctx context.Context, session output.BrowserPort, imageLoc entity.Locator, log output.LoggerPort) *entity.ChallengeAnswer {
	img, err := session.ElementImage(ctx, imageLoc)
	if err != nil {
		log.Warn("Challenge image not found", "error", err)
		return nil
	}

	answer, err := o.solver.SolveText(ctx, img)
	if err != nil {
		log.Warn("Text challenge unsolved", "error", err)
		return nil
	}
	return answer
}

func (o *Orchestrator) solveMath(ctx context.Context, session output.BrowserPort, imageLoc entity.Locator, log output.LoggerPort) *entity.ChallengeAnswer {
	// Plain-markup arithmetic first; fall back to reading it off the image.
	if text, err := session.ElementText(ctx, challengeTextLoc); err == nil && text != "" {
		if answer, err := o.solver.SolveMathText(text); err == nil {
			return answer
		}
	}

	img, err := session.ElementImage(ctx, imageLoc)
	if err != nil {
		log.Warn("Math challenge artifact not found", "error", err)
		return nil
	}

	answer, err := o.solver.SolveMath(ctx, img)
	if err != nil {
		log.Warn("Math challenge unsolved", "error", err)
		return nil
	}
	return answer
}

// triageImage extracts descriptive features from an unsolvable image
// challenge and records them for manual review.
func (o *Orchestrator) triageImage(ctx context.Context, session output.BrowserPort, req entity.WorkflowRequest, imageLoc entity.Locator, log output.LoggerPort) {
	img, err := session.ElementImage(ctx, imageLoc)
	if err != nil {
		log.Warn("Image challenge artifact not found", "error", err)
		return
	}

	features := challenge.ExtractFeatures(img)
	detail, _ := json.Marshal(features)
	log.Info("Image challenge features extracted",
		"width", features.Width,
		"height", features.Height,
		"edge_density", features.EdgeDensity,
		"corners", features.CornerCount,
	)
	o.auditChallenge(ctx, req, entity.FamilyImage, string(detail))
}

// captureFailure saves a page capture of the failed workflow for review.
func (o *Orchestrator) captureFailure(ctx context.Context, session output.BrowserPort, id string, log output.LoggerPort) {
	if o.cfg.ScreenshotDir == "" {
		return
	}

	shot, err := session.Screenshot(ctx)
	if err != nil {
		log.Warn("Failure capture skipped", "error", err)
		return
	}

	if err := os.MkdirAll(o.cfg.ScreenshotDir, 0755); err != nil {
		log.Warn("Screenshot dir unavailable", "error", err)
		return
	}

	name := fmt.Sprintf("%s_%s.%s", time.Now().Format("2006-01-02_15-04-05"), id, shot.Format)
	path := filepath.Join(o.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, shot.Data, 0644); err != nil {
		log.Warn("Screenshot write failed", "path", path, "error", err)
		return
	}
	log.Info("Failure screenshot saved", "path", path)
}

func (o *Orchestrator) auditChallenge(ctx context.Context, req entity.WorkflowRequest, family entity.ChallengeFamily, detail string) {
	err := o.storage.AppendAudit(ctx, req.Site, "challenge_"+string(family), entity.AuditFailed, detail)
	if err != nil {
		o.logger.Warn("Challenge audit append failed", "error", err)
	}
}

// finish stamps the duration, writes the audit entry, and logs the
// terminal outcome.
func (o *Orchestrator) finish(ctx context.Context, outcome entity.WorkflowOutcome, start time.Time) entity.WorkflowOutcome {
	outcome.Duration = time.Since(start)

	status := entity.AuditSuccess
	switch {
	case outcome.Success:
	case outcome.Failure == entity.FailureVerification:
		status = entity.AuditFailed
	default:
		status = entity.AuditError
	}

	if err := o.storage.AppendAudit(ctx, outcome.Site, string(outcome.Kind), status, outcome.Reason); err != nil {
		o.logger.Warn("Audit append failed", "error", err)
	}

	o.logger.Info("Workflow finished",
		"workflow", outcome.ID,
		"site", outcome.Site,
		"success", outcome.Success,
		"failure", string(outcome.Failure),
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return outcome
}

func (o *Orchestrator) teardown() {
	o.mu.Lock()
	session := o.session
	o.session = nil
	o.site = ""
	o.mu.Unlock()

	if session != nil {
		session.Close()
		o.logger.Info("Session released")
	}
}

// pace inserts the human-cadence delay between interactions; it returns
// early when the workflow is stopped.
func (o *Orchestrator) pace(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
