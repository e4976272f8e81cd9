package editor

import (
	"context"
	"log/slog"
)

// Stage is a checkpoint of the processing pipeline reported to the user.
type Stage string

const (
	StageReceived    Stage = "received"
	StageSegmenting  Stage = "segmenting"
	StageSegmented   Stage = "segmented"
	StageCanvas      Stage = "canvas"
	StageCompositing Stage = "compositing"
	StageDone        Stage = "done"
)

// Progress receives pipeline checkpoints. Implementations must not block;
// the pipeline never waits on them.
type Progress interface {
	Notify(ctx context.Context, userID string, stage Stage, percent int)
}

// ProgressFunc adapts a function to the Progress interface.
type ProgressFunc func(ctx context.Context, userID string, stage Stage, percent int)

func (f ProgressFunc) Notify(ctx context.Context, userID string, stage Stage, percent int) {
	f(ctx, userID, stage, percent)
}

// LogProgress writes checkpoints to a logger at debug level.
type LogProgress struct {
	Logger *slog.Logger
}

func (p LogProgress) Notify(ctx context.Context, userID string, stage Stage, percent int) {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	l.DebugContext(ctx, "progress", "user_id", userID, "stage", string(stage), "percent", percent)
}
