// Package pipeline defines the processing stages a worker runs for a claimed job.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harsh-BH/reel/internal/domain"
)

// DefaultOutputFormat is recorded on results of pipelines that do not set one.
const DefaultOutputFormat = "hls"

// Outcome is what a stage reports once it finishes.
type Outcome struct {
	// Progress is the job progress reached after this stage, 0..100.
	Progress int
	// DurationSeconds is the media duration, when the stage learned it.
	DurationSeconds *int
	// Metadata is merged into the job result.
	Metadata map[string]any
}

// Stage is one named step of a pipeline. Run must return promptly once ctx is done.
type Stage interface {
	Name() string
	Run(ctx context.Context, item *domain.WorkItem) (Outcome, error)
}

// Pipeline is an ordered list of stages whose reported progress never decreases.
type Pipeline struct {
	Stages       []Stage
	OutputFormat string
}

// New builds a pipeline producing DefaultOutputFormat.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{Stages: stages, OutputFormat: DefaultOutputFormat}
}

var errEmptyPipeline = errors.New("pipeline: no stages")

// Validate checks that the pipeline has stages. Progress ordering is only known at run time
// and is enforced by the job lifecycle.
func (p *Pipeline) Validate() error {
	if p == nil || len(p.Stages) == 0 {
		return errEmptyPipeline
	}
	for i, s := range p.Stages {
		if s == nil {
			return fmt.Errorf("pipeline: stage %d is nil", i)
		}
	}
	return nil
}

// Summary accumulates stage outcomes into the data of a job result.
type Summary struct {
	DurationSeconds *int
	Metadata        map[string]any
}

// Add merges an outcome; later stages win on key collisions.
func (s *Summary) Add(o Outcome) {
	if o.DurationSeconds != nil {
		d := *o.DurationSeconds
		s.DurationSeconds = &d
	}
	if len(o.Metadata) == 0 {
		return
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any, len(o.Metadata))
	}
	for k, v := range o.Metadata {
		s.Metadata[k] = v
	}
}

// Registry selects a pipeline by file type, falling back to a default.
type Registry struct {
	fallback *Pipeline
	byType   map[domain.FileType]*Pipeline
}

func NewRegistry(fallback *Pipeline) *Registry {
	return &Registry{fallback: fallback, byType: make(map[domain.FileType]*Pipeline)}
}

// Register sets the pipeline for a file type.
func (r *Registry) Register(ft domain.FileType, p *Pipeline) {
	r.byType[ft] = p
}

// For returns the pipeline for a file type.
func (r *Registry) For(ft domain.FileType) *Pipeline {
	if p, ok := r.byType[ft]; ok {
		return p
	}
	return r.fallback
}
