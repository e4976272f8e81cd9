// Package segment talks to the external background-segmentation engine.
//
// The engine is opaque: raw image bytes go in, the subject with an alpha
// channel comes out. Every failure is reported as ErrSegmentation so callers
// can match on a single kind.
package segment

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSegmentation indicates the engine failed or returned an unusable result.
	ErrSegmentation = errors.New("segmentation failed")
	// ErrUnavailable indicates the engine is temporarily refusing calls.
	ErrUnavailable = errors.New("segmentation service unavailable")
)

// Result is the extracted subject. Width and Height match the input image.
type Result struct {
	Foreground []byte
	Width      int
	Height     int
}

// Gateway removes the background from an image.
type Gateway interface {
	RemoveBackground(ctx context.Context, image []byte) (Result, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, image []byte) (Result, error)

func (f GatewayFunc) RemoveBackground(ctx context.Context, image []byte) (Result, error) {
	return f(ctx, image)
}

// failure wraps err as a segmentation failure unless it already is one.
func failure(err error) error {
	if errors.Is(err, ErrSegmentation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSegmentation, err)
}
