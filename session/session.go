// Package session holds the per-user editing sessions of the background
// editor. Sessions are volatile: they live in memory for the lifetime of the
// process and are never persisted.
package session

import (
	"image"
	"time"
)

// Step is the position of a user's editing session in the editor workflow.
type Step int

const (
	// StepNone means the user has no active session.
	StepNone Step = iota
	// StepHasForeground means a subject has been extracted and cached.
	StepHasForeground
	// StepAwaitingBackground means the next uploaded photo is used as the background.
	StepAwaitingBackground
)

func (s Step) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepHasForeground:
		return "has_foreground"
	case StepAwaitingBackground:
		return "awaiting_background_photo"
	default:
		return "unknown"
	}
}

// EditingSession is the cached result of one segmentation: the subject bytes,
// the alpha mask derived from them and their dimensions.
type EditingSession struct {
	Step           Step
	Foreground     []byte
	Mask           *image.Alpha
	Width          int
	Height         int
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// New returns a session in StepHasForeground. The foreground bytes are
// copied; mask and dimensions must have been derived from the same bytes.
func New(foreground []byte, mask *image.Alpha) *EditingSession {
	now := time.Now()
	b := mask.Bounds()
	return &EditingSession{
		Step:           StepHasForeground,
		Foreground:     append([]byte(nil), foreground...),
		Mask:           mask,
		Width:          b.Dx(),
		Height:         b.Dy(),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}

// WithStep returns a shallow copy of the session at the given step. Image
// buffers are shared; they are never mutated after construction.
func (s *EditingSession) WithStep(step Step) *EditingSession {
	cp := *s
	cp.Step = step
	cp.LastAccessedAt = time.Now()
	return &cp
}
