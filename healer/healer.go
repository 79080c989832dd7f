package healer

import (
	"context"

	"go.uber.org/zap"

	"github.com/isdmx/mendbox/runtime"
	"github.com/isdmx/mendbox/sandbox"
)

// PatchGenerator proposes file replacements given the failing files and
// their error output. An empty map means no usable fix was produced.
type PatchGenerator interface {
	GeneratePatch(ctx context.Context, files sandbox.FileSet, stderr string) (map[string]string, error)
}

// Runner executes a file set and reports the result. *sandbox.Session
// satisfies it.
type Runner interface {
	Run(ctx context.Context, files sandbox.FileSet, entryPoint string) (runtime.ExecResult, error)
}

// State names the orchestrator's position in its lifecycle
type State string

// Session states
const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateExhausted State = "exhausted"
)

// Attempt is the immutable record of one repair iteration: the files as
// they were executed and what came of it
type Attempt struct {
	Index  int
	Files  sandbox.FileSet
	Result runtime.ExecResult
}

// Result is the complete record a healing session hands back: the caller
// always gets one, even on exhaustion
type Result struct {
	FinalFiles sandbox.FileSet
	History    []Attempt
	Success    bool
	LastStdout string
	LastStderr string
}

// Session drives the bounded repair loop: run the files, and while they
// fail, request a patch, merge it, and try again. It owns the working copy
// of the files and the attempt history for its lifetime.
type Session struct {
	logger      *zap.Logger
	runner      Runner
	generator   PatchGenerator
	entryPoint  string
	maxAttempts int

	files   sandbox.FileSet
	history []Attempt
	success bool
}

// Option defines a functional option for Session
type Option func(*Session)

// WithHistory seeds prior attempts, used when resuming a stored session
func WithHistory(history []Attempt) Option {
	return func(s *Session) {
		s.history = append([]Attempt(nil), history...)
	}
}

// NewSession creates a healing session over its own working copy of files
func NewSession(logger *zap.Logger, runner Runner, generator PatchGenerator, files sandbox.FileSet, entryPoint string, maxAttempts int, opts ...Option) *Session {
	s := &Session{
		logger:      logger,
		runner:      runner,
		generator:   generator,
		entryPoint:  entryPoint,
		maxAttempts: maxAttempts,
		files:       files.Clone(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Heal runs the repair loop until the program exits zero or the attempt
// budget is spent. Every attempt is recorded before its outcome is acted
// on. A patch that cannot be obtained or parsed still consumes the attempt;
// only precondition and infrastructure errors abort the loop.
func (s *Session) Heal(ctx context.Context) (Result, error) {
	for len(s.history) < s.maxAttempts && !s.success {
		index := len(s.history)

		res, err := s.runner.Run(ctx, s.files, s.entryPoint)
		if err != nil {
			return Result{}, err
		}
		s.history = append(s.history, Attempt{Index: index, Files: s.files.Clone(), Result: res})
		s.logger.Info("attempt finished",
			zap.Int("attempt", index),
			zap.Int("exit_code", res.ExitCode),
			zap.Bool("timed_out", res.TimedOut()))

		if res.ExitCode == 0 {
			s.success = true
			break
		}

		updates, err := s.generator.GeneratePatch(ctx, s.files, res.Stderr)
		switch {
		case err != nil:
			s.logger.Warn("patch generation failed, keeping files unchanged",
				zap.Int("attempt", index),
				zap.Error(err))
		case len(updates) == 0:
			s.logger.Warn("patch response contained no file updates",
				zap.Int("attempt", index))
		default:
			s.files.Merge(updates)
			s.logger.Info("patch merged",
				zap.Int("attempt", index),
				zap.Int("updated_files", len(updates)))
		}
	}

	return s.result(), nil
}

// SetMaxAttempts raises (or lowers) the attempt budget so an exhausted
// session can be resumed with the same files and history
func (s *Session) SetMaxAttempts(n int) {
	s.maxAttempts = n
}

// State reports where the session stands
func (s *Session) State() State {
	switch {
	case s.success:
		return StateSucceeded
	case len(s.history) >= s.maxAttempts:
		return StateExhausted
	default:
		return StateRunning
	}
}

// Files returns a copy of the current working files
func (s *Session) Files() sandbox.FileSet {
	return s.files.Clone()
}

// History returns a copy of the attempt records so far
func (s *Session) History() []Attempt {
	return append([]Attempt(nil), s.history...)
}

// Success reports whether any attempt exited zero
func (s *Session) Success() bool {
	return s.success
}

// Snapshot returns the session's outcome as it stands, without running
// anything. Useful for persisting progress when Heal aborts early.
func (s *Session) Snapshot() Result {
	return s.result()
}

func (s *Session) result() Result {
	r := Result{
		FinalFiles: s.files.Clone(),
		History:    append([]Attempt(nil), s.history...),
		Success:    s.success,
	}
	if len(s.history) > 0 {
		last := s.history[len(s.history)-1].Result
		r.LastStdout = last.Stdout
		r.LastStderr = last.Stderr
	}
	return r
}
