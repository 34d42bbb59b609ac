package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent memory exhaustion.
	maxOutputBytes = 64 * 1024 // 64 KB

	// outputTruncatedMsg is appended when output exceeds the limit.
	outputTruncatedMsg = "\n... output truncated (64 KB limit) ..."

	// waitDelay bounds how long Wait blocks on pipes after the process group is killed.
	waitDelay = 2 * time.Second

	// maxDurationSeconds is the largest duration the result column holds.
	maxDurationSeconds = math.MaxInt32
)

// CommandStage runs an external tool against the job's media file, for example
// "ffprobe -v error -show_entries format=duration -of csv=p=0". The file path is appended
// as the last argument. If the tool prints a number on stdout it is taken as the media
// duration in seconds.
type CommandStage struct {
	name     string
	argv     []string
	mediaDir string
	timeout  time.Duration
	progress int
	logger   *zap.Logger
}

// NewCommandStage parses a whitespace-separated command line.
func NewCommandStage(command, mediaDir string, timeout time.Duration, progress int, logger *zap.Logger) (*CommandStage, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("pipeline: empty stage command")
	}
	return &CommandStage{
		name:     filepath.Base(argv[0]),
		argv:     argv,
		mediaDir: mediaDir,
		timeout:  timeout,
		progress: progress,
		logger:   logger,
	}, nil
}

func (s *CommandStage) Name() string {
	return s.name
}

func (s *CommandStage) Run(ctx context.Context, item *domain.WorkItem) (Outcome, error) {
	// Only the base name is used so a submitted name cannot escape the media directory.
	base := filepath.Base(item.FileName)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return Outcome{}, fmt.Errorf("%w: %s: file name %q does not name a file",
			domain.ErrProcessingFailure, s.name, item.FileName)
	}
	input := filepath.Join(s.mediaDir, base)

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := append(append([]string{}, s.argv[1:]...), input)
	cmd := exec.CommandContext(runCtx, s.argv[0], args...)

	// Run in its own process group so the whole tree dies on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	stdout := limitedBuffer{limit: maxOutputBytes}
	stderr := limitedBuffer{limit: maxOutputBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	s.logger.Debug("Stage command finished",
		zap.String("job_id", item.JobID.String()),
		zap.String("stage", s.name),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)

	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Outcome{}, fmt.Errorf("%w: %s timed out after %s", domain.ErrProcessingFailure, s.name, s.timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Outcome{}, fmt.Errorf("%w: %s exited with code %d: %s",
				domain.ErrProcessingFailure, s.name, exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return Outcome{}, fmt.Errorf("%w: %s: %w", domain.ErrProcessingFailure, s.name, err)
	}

	output := strings.TrimSpace(stdout.String())
	out := Outcome{
		Progress: s.progress,
		Metadata: map[string]any{
			"tool":      s.name,
			"elapsedMs": elapsed.Milliseconds(),
			"output":    truncateOutput(output, stdout.truncated),
		},
	}
	if secs, perr := strconv.ParseFloat(output, 64); perr == nil && secs >= 0 && secs <= maxDurationSeconds {
		d := int(secs + 0.5)
		out.DurationSeconds = &d
	}
	return out, nil
}

// limitedBuffer is a bytes.Buffer that stops accepting writes after a limit.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (lb *limitedBuffer) Write(p []byte) (n int, err error) {
	if lb.truncated {
		return len(p), nil // discard silently
	}

	remaining := lb.limit - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return len(p), nil
	}

	if len(p) > remaining {
		lb.truncated = true
		lb.buf.Write(p[:remaining])
		return len(p), nil
	}

	return lb.buf.Write(p)
}

func (lb *limitedBuffer) String() string {
	return lb.buf.String()
}

// truncateOutput appends a truncation notice if the output was cut off.
func truncateOutput(s string, wasTruncated bool) string {
	if wasTruncated {
		return s + outputTruncatedMsg
	}
	return s
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
