package editor

import (
	"errors"

	"github.com/jmcleod/backdrop/compositor"
	"github.com/jmcleod/backdrop/segment"
)

var (
	// ErrNoActiveSession indicates a background intent arrived before any
	// subject was extracted.
	ErrNoActiveSession = errors.New("no active editing session")
	// ErrUnknownIntent indicates an intent the controller does not handle.
	ErrUnknownIntent = errors.New("unknown intent")
)

// Kind classifies controller errors for presentation.
type Kind int

const (
	KindOK Kind = iota
	KindDecode
	KindUnknownColor
	KindEmptyImage
	KindSegmentation
	KindNoActiveSession
	KindUnknownIntent
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindDecode:
		return "decode_error"
	case KindUnknownColor:
		return "unknown_color"
	case KindEmptyImage:
		return "empty_image"
	case KindSegmentation:
		return "segmentation_failure"
	case KindNoActiveSession:
		return "no_active_session"
	case KindUnknownIntent:
		return "unknown_intent"
	default:
		return "internal"
	}
}

// KindOf returns the Kind of err. Segmentation is checked first because a
// segmentation failure may wrap a decode error from the engine's output.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrNoActiveSession):
		return KindNoActiveSession
	case errors.Is(err, segment.ErrSegmentation):
		return KindSegmentation
	case errors.Is(err, compositor.ErrUnknownColor):
		return KindUnknownColor
	case errors.Is(err, compositor.ErrEmptyImage):
		return KindEmptyImage
	case errors.Is(err, compositor.ErrDecode):
		return KindDecode
	case errors.Is(err, ErrUnknownIntent):
		return KindUnknownIntent
	default:
		return KindInternal
	}
}
