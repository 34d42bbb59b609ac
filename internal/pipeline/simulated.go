package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Harsh-BH/reel/internal/domain"
)

// DefaultCheckpoints are the progress values reported by the simulated pipeline.
var DefaultCheckpoints = []int{25, 60, 100}

// simulatedDuration is the media duration reported by the final simulated checkpoint.
const simulatedDuration = 120

// Checkpoint is a stage that waits for a fixed delay and reports a fixed progress value.
type Checkpoint struct {
	Progress int
	Delay    time.Duration
}

func (c *Checkpoint) Name() string {
	return fmt.Sprintf("checkpoint-%d", c.Progress)
}

func (c *Checkpoint) Run(ctx context.Context, item *domain.WorkItem) (Outcome, error) {
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-t.C:
		}
	}

	out := Outcome{Progress: c.Progress}
	if c.Progress >= domain.MaxProgress {
		d := simulatedDuration
		out.DurationSeconds = &d
		out.Metadata = map[string]any{"note": "Simulated worker output"}
	}
	return out, nil
}

// Checkpoints builds one Checkpoint stage per progress value.
func Checkpoints(delay time.Duration, progress ...int) []Stage {
	stages := make([]Stage, 0, len(progress))
	for _, p := range progress {
		stages = append(stages, &Checkpoint{Progress: p, Delay: delay})
	}
	return stages
}

// NewSimulated builds the default checkpoint pipeline.
func NewSimulated(delay time.Duration) *Pipeline {
	return New(Checkpoints(delay, DefaultCheckpoints...)...)
}
