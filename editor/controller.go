// Package editor implements the per-user background editing workflow.
//
// The Controller interprets user intents against the user's current session
// step, calls the segmentation engine or the compositor, and stores the next
// step. A session is written only after an operation fully succeeds, so a
// failed intent never disturbs the state the user can retry from.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcleod/backdrop/compositor"
	"github.com/jmcleod/backdrop/segment"
	"github.com/jmcleod/backdrop/session"
)

// DefaultSegmentTimeout bounds a single call to the segmentation engine.
const DefaultSegmentTimeout = 60 * time.Second

// Intent is a user request.
type Intent string

const (
	IntentUploadPhoto      Intent = "upload_photo"
	IntentChangeBackground Intent = "change_background"
	IntentSolidBackground  Intent = "solid_background"
	IntentCustomBackground Intent = "custom_background"
	IntentCancel           Intent = "cancel"
)

// Outcome names what a successful intent did.
type Outcome string

const (
	OutcomeForegroundExtracted Outcome = "foreground_extracted"
	OutcomePalette             Outcome = "palette"
	OutcomeSolidApplied        Outcome = "solid_applied"
	OutcomeAwaitingBackground  Outcome = "awaiting_background"
	OutcomeCustomApplied       Outcome = "custom_applied"
	OutcomeCancelled           Outcome = "cancelled"
	OutcomeNothingToCancel     Outcome = "nothing_to_cancel"
)

// Request is one inbound intent. Image is required for IntentUploadPhoto and
// Color for IntentSolidBackground.
type Request struct {
	UserID string
	Intent Intent
	Color  string
	Image  []byte
}

// Result is the response to a successful intent. Image is a PNG when the
// intent produced one.
type Result struct {
	Outcome Outcome
	Step    session.Step
	Image   []byte
	Width   int
	Height  int
	Color   string
	Colors  []string
}

// UsageRecorder receives one event per successful background application.
type UsageRecorder interface {
	RecordEvent(ctx context.Context, userID string) error
}

// Observer receives per-intent and per-segmentation measurements.
type Observer interface {
	IntentHandled(intent, kind string, d time.Duration)
	SegmentationDone(d time.Duration, err error)
}

// Controller is the session state machine.
type Controller struct {
	store          session.Store
	gateway        segment.Gateway
	usage          UsageRecorder
	progress       Progress
	observer       Observer
	locks          *session.Locker
	segmentTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithUsageRecorder sets the ledger notified after each applied background.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(c *Controller) { c.usage = u }
}

// WithProgress sets the progress side channel.
func WithProgress(p Progress) Option {
	return func(c *Controller) { c.progress = p }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithSegmentTimeout bounds each segmentation call. Zero disables the bound.
func WithSegmentTimeout(d time.Duration) Option {
	return func(c *Controller) { c.segmentTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController returns a Controller over store and gateway.
func NewController(store session.Store, gateway segment.Gateway, opts ...Option) *Controller {
	c := &Controller{
		store:          store,
		gateway:        gateway,
		locks:          session.NewLocker(),
		segmentTimeout: DefaultSegmentTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.progress == nil {
		c.progress = LogProgress{Logger: c.logger}
	}
	c.logger = c.logger.With("component", "editor")
	return c
}

// Handle dispatches req to the operation for its intent. Intents for one
// user are processed one at a time in arrival order.
func (c *Controller) Handle(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := c.dispatch(ctx, req)
	kind := KindOf(err)
	if c.observer != nil {
		c.observer.IntentHandled(string(req.Intent), kind.String(), time.Since(start))
	}
	if err != nil {
		c.logger.InfoContext(ctx, "intent failed",
			"user_id", req.UserID, "intent", string(req.Intent), "kind", kind.String(), "error", err)
	}
	return res, err
}

func (c *Controller) dispatch(ctx context.Context, req Request) (Result, error) {
	switch req.Intent {
	case IntentUploadPhoto:
		return c.UploadPhoto(ctx, req.UserID, req.Image)
	case IntentChangeBackground:
		return c.ChangeBackground(ctx, req.UserID)
	case IntentSolidBackground:
		return c.ApplyColor(ctx, req.UserID, req.Color)
	case IntentCustomBackground:
		return c.ChooseCustomBackground(ctx, req.UserID)
	case IntentCancel:
		return c.Cancel(ctx, req.UserID)
	default:
		return Result{}, fmt.Errorf("%q: %w", req.Intent, ErrUnknownIntent)
	}
}

// Step returns the user's current session step.
func (c *Controller) Step(userID string) session.Step {
	if sess, ok := c.store.Get(userID); ok {
		return sess.Step
	}
	return session.StepNone
}

// UploadPhoto handles an uploaded photo. While the user is awaiting a custom
// background the photo becomes that background; otherwise its subject is
// extracted and cached as a new session.
func (c *Controller) UploadPhoto(ctx context.Context, userID string, img []byte) (Result, error) {
	unlock := c.locks.Lock(userID)
	defer unlock()

	c.progress.Notify(ctx, userID, StageReceived, 10)
	if sess, ok := c.store.Get(userID); ok && sess.Step == session.StepAwaitingBackground {
		return c.applyCustom(ctx, userID, sess, img)
	}
	return c.extract(ctx, userID, img)
}

func (c *Controller) extract(ctx context.Context, userID string, img []byte) (Result, error) {
	cfg, err := compositor.Probe(img)
	if err != nil {
		return Result{}, fmt.Errorf("uploaded photo: %w", err)
	}

	c.progress.Notify(ctx, userID, StageSegmenting, 30)
	res, err := c.segment(ctx, img)
	if err != nil {
		return Result{}, err
	}
	fg, err := compositor.DecodeForeground(res.Foreground)
	if err != nil {
		return Result{}, fmt.Errorf("%w: unusable engine output: %w", segment.ErrSegmentation, err)
	}
	if fg.Width() != cfg.Width || fg.Height() != cfg.Height {
		return Result{}, fmt.Errorf("%w: engine returned %dx%d for a %dx%d photo",
			segment.ErrSegmentation, fg.Width(), fg.Height(), cfg.Width, cfg.Height)
	}
	c.progress.Notify(ctx, userID, StageSegmented, 80)

	sess := session.New(res.Foreground, fg.Mask)
	c.store.Put(userID, sess)
	c.progress.Notify(ctx, userID, StageDone, 100)

	c.logger.DebugContext(ctx, "foreground extracted",
		"user_id", userID, "width", sess.Width, "height", sess.Height)
	return Result{
		Outcome: OutcomeForegroundExtracted,
		Step:    sess.Step,
		Image:   sess.Foreground,
		Width:   sess.Width,
		Height:  sess.Height,
		Colors:  compositor.Palette(),
	}, nil
}

func (c *Controller) segment(ctx context.Context, img []byte) (segment.Result, error) {
	if c.segmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.segmentTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := c.gateway.RemoveBackground(ctx, img)
	if c.observer != nil {
		c.observer.SegmentationDone(time.Since(start), err)
	}
	if err != nil {
		return segment.Result{}, asSegmentation(err)
	}
	return res, nil
}

func asSegmentation(err error) error {
	if KindOf(err) == KindSegmentation {
		return err
	}
	return fmt.Errorf("%w: %w", segment.ErrSegmentation, err)
}

func (c *Controller) applyCustom(ctx context.Context, userID string, sess *session.EditingSession, bg []byte) (Result, error) {
	c.progress.Notify(ctx, userID, StageCompositing, 50)
	out, err := compositor.Composite(sess.Foreground, bg, sess.Mask)
	if err != nil {
		return Result{}, fmt.Errorf("custom background: %w", err)
	}
	c.store.Delete(userID)
	c.recordUsage(ctx, userID)
	c.progress.Notify(ctx, userID, StageDone, 100)

	return Result{
		Outcome: OutcomeCustomApplied,
		Step:    session.StepNone,
		Image:   out,
		Width:   sess.Width,
		Height:  sess.Height,
	}, nil
}

// ChangeBackground lists the available solid colors for a user with an
// extracted subject. It does not change the session.
func (c *Controller) ChangeBackground(_ context.Context, userID string) (Result, error) {
	unlock := c.locks.Lock(userID)
	defer unlock()

	sess, ok := c.store.Get(userID)
	if !ok {
		return Result{}, ErrNoActiveSession
	}
	return Result{
		Outcome: OutcomePalette,
		Step:    sess.Step,
		Width:   sess.Width,
		Height:  sess.Height,
		Colors:  compositor.Palette(),
	}, nil
}

// ApplyColor composites the cached subject over a solid canvas. The session
// is kept so the user can try other colors; a user who was awaiting a custom
// background photo returns to choosing.
func (c *Controller) ApplyColor(ctx context.Context, userID, colorName string) (Result, error) {
	unlock := c.locks.Lock(userID)
	defer unlock()

	sess, ok := c.store.Get(userID)
	if !ok {
		return Result{}, ErrNoActiveSession
	}
	if !compositor.IsPaletteColor(colorName) {
		return Result{}, fmt.Errorf("%w: %q", compositor.ErrUnknownColor, colorName)
	}

	c.progress.Notify(ctx, userID, StageCanvas, 30)
	canvas, err := compositor.GenerateSolidCanvas(sess.Width, sess.Height, colorName)
	if err != nil {
		return Result{}, err
	}
	c.progress.Notify(ctx, userID, StageCompositing, 60)
	out, err := compositor.Composite(sess.Foreground, canvas, sess.Mask)
	if err != nil {
		return Result{}, fmt.Errorf("solid background: %w", err)
	}

	next := sess.WithStep(session.StepHasForeground)
	c.store.Put(userID, next)
	c.recordUsage(ctx, userID)
	c.progress.Notify(ctx, userID, StageDone, 100)

	return Result{
		Outcome: OutcomeSolidApplied,
		Step:    next.Step,
		Image:   out,
		Width:   sess.Width,
		Height:  sess.Height,
		Color:   colorName,
		Colors:  compositor.Palette(),
	}, nil
}

// ChooseCustomBackground makes the user's next uploaded photo the background.
func (c *Controller) ChooseCustomBackground(_ context.Context, userID string) (Result, error) {
	unlock := c.locks.Lock(userID)
	defer unlock()

	sess, ok := c.store.Get(userID)
	if !ok {
		return Result{}, ErrNoActiveSession
	}
	next := sess.WithStep(session.StepAwaitingBackground)
	c.store.Put(userID, next)
	return Result{
		Outcome: OutcomeAwaitingBackground,
		Step:    next.Step,
		Width:   next.Width,
		Height:  next.Height,
	}, nil
}

// Cancel discards the user's session. Cancelling without a session succeeds.
func (c *Controller) Cancel(_ context.Context, userID string) (Result, error) {
	unlock := c.locks.Lock(userID)
	defer unlock()

	if _, ok := c.store.Get(userID); !ok {
		return Result{Outcome: OutcomeNothingToCancel, Step: session.StepNone}, nil
	}
	c.store.Delete(userID)
	return Result{Outcome: OutcomeCancelled, Step: session.StepNone}, nil
}

func (c *Controller) recordUsage(ctx context.Context, userID string) {
	if c.usage == nil {
		return
	}
	if err := c.usage.RecordEvent(ctx, userID); err != nil {
		c.logger.ErrorContext(ctx, "recording usage failed", "user_id", userID, "error", err)
	}
}
