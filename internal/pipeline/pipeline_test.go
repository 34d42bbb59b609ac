package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
)

func testItem(name string) *domain.WorkItem {
	return &domain.WorkItem{
		JobID:    uuid.New(),
		FileName: name,
		FileSize: 1024,
		FileType: domain.FileTypeVideo,
	}
}

func TestSimulated_DefaultCheckpoints(t *testing.T) {
	p := NewSimulated(0)
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.OutputFormat != "hls" {
		t.Errorf("expected hls output, got %s", p.OutputFormat)
	}

	var got []int
	var sum Summary
	for _, s := range p.Stages {
		out, err := s.Run(context.Background(), testItem("video.mp4"))
		if err != nil {
			t.Fatalf("%s: %v", s.Name(), err)
		}
		got = append(got, out.Progress)
		sum.Add(out)
	}

	want := []int{25, 60, 100}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d: expected %d, got %d", i, want[i], got[i])
		}
	}
	if sum.DurationSeconds == nil || *sum.DurationSeconds != 120 {
		t.Errorf("expected duration 120, got %v", sum.DurationSeconds)
	}
	if sum.Metadata["note"] == nil {
		t.Error("expected note in metadata")
	}
}

func TestCheckpoint_StopsOnCancel(t *testing.T) {
	c := &Checkpoint{Progress: 25, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, testItem("a.mp4"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestValidate_Empty(t *testing.T) {
	if err := New().Validate(); err == nil {
		t.Error("expected error for empty pipeline")
	}
	var p *Pipeline
	if err := p.Validate(); err == nil {
		t.Error("expected error for nil pipeline")
	}
}

func TestSummary_LaterStageWins(t *testing.T) {
	one, two := 10, 20
	var s Summary
	s.Add(Outcome{DurationSeconds: &one, Metadata: map[string]any{"a": 1, "b": 1}})
	s.Add(Outcome{Metadata: map[string]any{"b": 2}})
	s.Add(Outcome{DurationSeconds: &two})

	if *s.DurationSeconds != 20 {
		t.Errorf("expected duration 20, got %d", *s.DurationSeconds)
	}
	if s.Metadata["a"] != 1 || s.Metadata["b"] != 2 {
		t.Errorf("unexpected metadata: %v", s.Metadata)
	}
}

func TestRegistry_FallsBack(t *testing.T) {
	def := NewSimulated(0)
	audio := New(Checkpoints(0, 100)...)
	r := NewRegistry(def)
	r.Register(domain.FileTypeAudio, audio)

	if r.For(domain.FileTypeAudio) != audio {
		t.Error("expected audio pipeline")
	}
	if r.For(domain.FileTypeVideo) != def {
		t.Error("expected default pipeline for video")
	}
}

func TestLimitedBuffer(t *testing.T) {
	lb := limitedBuffer{limit: 10}
	n, err := lb.Write([]byte("hello world, this is too long"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 29 {
		t.Errorf("expected write to report full length 29, got %d", n)
	}
	if lb.String() != "hello worl" {
		t.Errorf("expected 'hello worl', got %q", lb.String())
	}
	if !lb.truncated {
		t.Error("expected truncated flag")
	}
	if got := truncateOutput(lb.String(), lb.truncated); !strings.HasSuffix(got, outputTruncatedMsg) {
		t.Errorf("expected truncation notice, got %q", got)
	}
}

// writeScript creates an executable shell script for command stage tests.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCommandStage_ParsesDuration(t *testing.T) {
	script := writeScript(t, `echo 42.4`)
	stage, err := NewCommandStage(script, t.TempDir(), 5*time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCommandStage: %v", err)
	}

	out, err := stage.Run(context.Background(), testItem("clip.mp4"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Progress != 100 {
		t.Errorf("expected progress 100, got %d", out.Progress)
	}
	if out.DurationSeconds == nil || *out.DurationSeconds != 42 {
		t.Errorf("expected duration 42, got %v", out.DurationSeconds)
	}
	if out.Metadata["tool"] != "tool.sh" {
		t.Errorf("expected tool name in metadata, got %v", out.Metadata["tool"])
	}
}

func TestCommandStage_ConfinesFileName(t *testing.T) {
	script := writeScript(t, `echo "$1"`)
	mediaDir := t.TempDir()
	stage, _ := NewCommandStage(script, mediaDir, 5*time.Second, 50, zap.NewNop())

	out, err := stage.Run(context.Background(), testItem("../../etc/passwd"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := filepath.Join(mediaDir, "passwd")
	if out.Metadata["output"] != want {
		t.Errorf("expected input %s, got %v", want, out.Metadata["output"])
	}
	if out.DurationSeconds != nil {
		t.Errorf("expected no duration for non-numeric output")
	}
}

func TestCommandStage_RejectsDirectoryNames(t *testing.T) {
	script := writeScript(t, `echo "$1"`)
	stage, _ := NewCommandStage(script, t.TempDir(), 5*time.Second, 100, zap.NewNop())

	for _, name := range []string{"..", ".", "/", "", "a/.."} {
		_, err := stage.Run(context.Background(), testItem(name))
		if !errors.Is(err, domain.ErrProcessingFailure) {
			t.Errorf("%q: expected ErrProcessingFailure, got %v", name, err)
		}
	}
}

func TestCommandStage_IgnoresOutOfRangeDuration(t *testing.T) {
	for _, printed := range []string{"1e300", "+Inf", "NaN", "-3"} {
		script := writeScript(t, "echo "+printed)
		stage, _ := NewCommandStage(script, t.TempDir(), 5*time.Second, 100, zap.NewNop())

		out, err := stage.Run(context.Background(), testItem("clip.mp4"))
		if err != nil {
			t.Fatalf("%s: Run: %v", printed, err)
		}
		if out.DurationSeconds != nil {
			t.Errorf("%s: expected no duration, got %d", printed, *out.DurationSeconds)
		}
	}
}

func TestCommandStage_NonZeroExit(t *testing.T) {
	script := writeScript(t, "echo decode error >&2\nexit 3")
	stage, _ := NewCommandStage(script, t.TempDir(), 5*time.Second, 100, zap.NewNop())

	_, err := stage.Run(context.Background(), testItem("clip.mp4"))
	if !errors.Is(err, domain.ErrProcessingFailure) {
		t.Fatalf("expected ErrProcessingFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "code 3") || !strings.Contains(err.Error(), "decode error") {
		t.Errorf("expected exit code and stderr in error, got %v", err)
	}
}

func TestCommandStage_Timeout(t *testing.T) {
	script := writeScript(t, "sleep 10")
	stage, _ := NewCommandStage(script, t.TempDir(), 100*time.Millisecond, 100, zap.NewNop())

	start := time.Now()
	_, err := stage.Run(context.Background(), testItem("clip.mp4"))
	if !errors.Is(err, domain.ErrProcessingFailure) {
		t.Fatalf("expected ErrProcessingFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("process group was not killed on timeout")
	}
}

func TestNewCommandStage_Empty(t *testing.T) {
	if _, err := NewCommandStage("   ", "/tmp", time.Second, 100, zap.NewNop()); err == nil {
		t.Error("expected error for empty command")
	}
}
