package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/mendbox/config"
	"github.com/isdmx/mendbox/runtime"
)

// ErrEntryPointMissing is returned when the designated entry point is not
// part of the file set. It fails fast, before any container interaction.
var ErrEntryPointMissing = errors.New("entry point not present in file set")

// Session owns one named container and composes file synchronization,
// dependency resolution and execution into a single Run operation. Sessions
// are not reused across unrelated projects; the owner destroys them.
type Session struct {
	logger      *zap.Logger
	rt          runtime.Runtime
	id          string
	execTimeout time.Duration
	inference   InferenceStrategy

	sync     *Synchronizer
	resolver *Resolver
	executor *Executor

	// hashSeen is the manifest hash of the last successful install this
	// session performed; repeat runs with it skip the marker read.
	hashSeen string
}

// SessionOption defines a functional option for Session
type SessionOption func(*Session)

// WithID pins the session id instead of generating one; used when resuming
// a stored session
func WithID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// WithExecTimeout overrides the configured execution timeout
func WithExecTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.execTimeout = d
	}
}

// WithInferenceStrategy replaces the resolver's default import-scan
// inference
func WithInferenceStrategy(strategy InferenceStrategy) SessionOption {
	return func(s *Session) {
		s.inference = strategy
	}
}

// NewSession creates a session with a fresh unique container name. The
// container itself is created lazily on the first Run call.
func NewSession(logger *zap.Logger, rt runtime.Runtime, cfg *config.Config, opts ...SessionOption) *Session {
	s := &Session{
		logger:      logger,
		rt:          rt,
		id:          "mendbox-" + uuid.New().String()[:8],
		execTimeout: cfg.GetTimeout(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.sync = NewSynchronizer(logger, rt)

	var resolverOpts []ResolverOption
	if s.inference != nil {
		resolverOpts = append(resolverOpts, WithInference(s.inference))
	}
	s.resolver = NewResolver(logger, rt, ResolverConfig{
		InstallTimeout: cfg.GetInstallTimeout(),
		ProbeTimeout:   time.Duration(cfg.Sandbox.ProbeTimeoutSec) * time.Second,
		GUIPreinstall:  cfg.Sandbox.GUIPreinstall,
	}, resolverOpts...)

	s.executor = NewExecutor(logger, rt, ExecutorConfig{
		Timeout:       s.execTimeout,
		ServerTimeout: time.Duration(cfg.Sandbox.ServerTimeoutSec) * time.Second,
	})

	return s
}

// ID returns the session's container name
func (s *Session) ID() string {
	return s.id
}

// Run executes the file set inside the session container: ensure the
// container is running, synchronize files, install dependencies, execute.
// A dependency install failure is terminal for the attempt; its result is
// returned and execution is skipped. When dependencies are inferred, the
// synthesized manifest is added to files so later repair iterations can see
// and patch it.
func (s *Session) Run(ctx context.Context, files FileSet, entryPoint string) (runtime.ExecResult, error) {
	if _, ok := files[entryPoint]; !ok {
		return runtime.ExecResult{}, fmt.Errorf("%w: %s", ErrEntryPointMissing, entryPoint)
	}

	if err := s.rt.EnsureRunning(ctx, s.id); err != nil {
		return runtime.ExecResult{}, err
	}

	decision := s.resolver.Resolve(files)
	if decision.Inferred {
		files[decision.Name] = decision.Content
	}

	if err := s.sync.Sync(ctx, s.id, files); err != nil {
		return runtime.ExecResult{}, err
	}

	res, skipped, err := s.resolver.Install(ctx, s.id, decision, s.hashSeen)
	if err != nil {
		return runtime.ExecResult{}, err
	}
	if !skipped && res.ExitCode != 0 {
		s.logger.Warn("dependency install failed, skipping execution",
			zap.String("session", s.id),
			zap.Int("exit_code", res.ExitCode))
		return res, nil
	}
	if decision.Found {
		s.hashSeen = decision.Hash
	}

	return s.executor.Execute(ctx, s.id, files, entryPoint)
}

// Destroy removes the session container. Safe to call more than once and on
// sessions that never ran.
func (s *Session) Destroy(ctx context.Context) error {
	return s.rt.Destroy(ctx, s.id)
}
