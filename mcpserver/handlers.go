package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/isdmx/mendbox/healer"
	"github.com/isdmx/mendbox/sandbox"
	"github.com/isdmx/mendbox/store"
)

type runResponse struct {
	SessionID  string `json:"session_id"`
	EntryPoint string `json:"entry_point"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
}

type healResponse struct {
	SessionID  string          `json:"session_id"`
	EntryPoint string          `json:"entry_point"`
	State      string          `json:"state"`
	Success    bool            `json:"success"`
	Attempts   int             `json:"attempts"`
	FinalFiles sandbox.FileSet `json:"final_files"`
	LastStdout string          `json:"last_stdout"`
	LastStderr string          `json:"last_stderr"`
}

type sessionSummary struct {
	SessionID   string `json:"session_id"`
	EntryPoint  string `json:"entry_point"`
	Status      string `json:"status"`
	Success     bool   `json:"success"`
	MaxAttempts int    `json:"max_attempts"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// handleRunProject handles the run_project tool
func (s *MCPServer) handleRunProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := filesArgument(request)
	if err != nil {
		return nil, err
	}

	entryPoint, result := s.entryPoint(request, files)
	if result != nil {
		return result, nil
	}

	var opts []sandbox.SessionOption
	if timeoutSec := request.GetInt("timeout_sec", 0); timeoutSec > 0 {
		opts = append(opts, sandbox.WithExecTimeout(time.Duration(timeoutSec)*time.Second))
	}

	sess := sandbox.NewSession(s.logger, s.runtime, s.config, opts...)
	defer s.destroy(ctx, sess)

	s.logger.Info("project run requested",
		zap.String("session_id", sess.ID()),
		zap.String("entry_point", entryPoint),
		zap.Int("files", len(files)))

	res, err := sess.Run(ctx, files, entryPoint)
	if err != nil {
		s.logger.Error("project run failed",
			zap.String("session_id", sess.ID()),
			zap.Error(err))
		return errorResult("Execution failed: %v", err), nil
	}

	s.logger.Info("project run completed",
		zap.String("session_id", sess.ID()),
		zap.Int("exit_code", res.ExitCode),
		zap.Int("stdout_len", len(res.Stdout)),
		zap.Int("stderr_len", len(res.Stderr)))

	return jsonResult(runResponse{
		SessionID:  sess.ID(),
		EntryPoint: entryPoint,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
	})
}

// handleHealProject handles the heal_project tool
func (s *MCPServer) handleHealProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := filesArgument(request)
	if err != nil {
		return nil, err
	}

	entryPoint, result := s.entryPoint(request, files)
	if result != nil {
		return result, nil
	}

	maxAttempts := request.GetInt("max_attempts", s.config.Healer.MaxAttempts)
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("max_attempts must be positive, got: %d", maxAttempts)
	}

	sess := sandbox.NewSession(s.logger, s.runtime, s.config)
	defer s.destroy(ctx, sess)

	s.logger.Info("healing requested",
		zap.String("session_id", sess.ID()),
		zap.String("entry_point", entryPoint),
		zap.Int("max_attempts", maxAttempts),
		zap.Int("files", len(files)))

	rec := &store.Record{
		ID:          sess.ID(),
		EntryPoint:  entryPoint,
		MaxAttempts: maxAttempts,
		FinalFiles:  files,
	}
	if err := s.store.CreateSession(rec); err != nil {
		s.logger.Error("failed to create session record",
			zap.String("session_id", sess.ID()),
			zap.Error(err))
		return errorResult("Session persistence failed: %v", err), nil
	}

	h := healer.NewSession(s.logger, sess, s.generator, files, entryPoint, maxAttempts)
	healResult, healErr := h.Heal(ctx)
	s.persist(sess.ID(), h, maxAttempts, 0)
	if healErr != nil {
		s.logger.Error("healing aborted",
			zap.String("session_id", sess.ID()),
			zap.Error(healErr))
		return errorResult("Healing failed: %v", healErr), nil
	}

	s.logger.Info("healing completed",
		zap.String("session_id", sess.ID()),
		zap.String("state", string(h.State())),
		zap.Bool("success", healResult.Success),
		zap.Int("attempts", len(healResult.History)))

	return jsonResult(healResponse{
		SessionID:  sess.ID(),
		EntryPoint: entryPoint,
		State:      string(h.State()),
		Success:    healResult.Success,
		Attempts:   len(healResult.History),
		FinalFiles: healResult.FinalFiles,
		LastStdout: healResult.LastStdout,
		LastStderr: healResult.LastStderr,
	})
}

// handleResumeSession handles the resume_session tool
func (s *MCPServer) handleResumeSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}

	extraAttempts := request.GetInt("extra_attempts", s.config.Healer.MaxAttempts)
	if extraAttempts <= 0 {
		return nil, fmt.Errorf("extra_attempts must be positive, got: %d", extraAttempts)
	}

	rec, err := s.store.GetSession(sessionID)
	if err != nil {
		return errorResult("Session lookup failed: %v", err), nil
	}
	if rec.Status == healer.StateSucceeded {
		return errorResult("Session %s already succeeded, nothing to resume", sessionID), nil
	}
	if len(rec.FinalFiles) == 0 {
		return errorResult("Session %s has no stored files", sessionID), nil
	}

	attempts, err := s.store.GetAttempts(sessionID)
	if err != nil {
		return errorResult("Session lookup failed: %v", err), nil
	}

	maxAttempts := len(attempts) + extraAttempts

	// Reusing the stored id keeps the container name stable, so a still
	// warm container from the previous heal is picked up as-is.
	sess := sandbox.NewSession(s.logger, s.runtime, s.config, sandbox.WithID(sessionID))
	defer s.destroy(ctx, sess)

	s.logger.Info("session resume requested",
		zap.String("session_id", sessionID),
		zap.Int("prior_attempts", len(attempts)),
		zap.Int("max_attempts", maxAttempts))

	h := healer.NewSession(s.logger, sess, s.generator, rec.FinalFiles, rec.EntryPoint, maxAttempts,
		healer.WithHistory(attempts))
	healResult, healErr := h.Heal(ctx)
	s.persist(sessionID, h, maxAttempts, len(attempts))
	if healErr != nil {
		s.logger.Error("healing aborted",
			zap.String("session_id", sessionID),
			zap.Error(healErr))
		return errorResult("Healing failed: %v", healErr), nil
	}

	s.logger.Info("session resume completed",
		zap.String("session_id", sessionID),
		zap.String("state", string(h.State())),
		zap.Bool("success", healResult.Success),
		zap.Int("attempts", len(healResult.History)))

	return jsonResult(healResponse{
		SessionID:  sessionID,
		EntryPoint: rec.EntryPoint,
		State:      string(h.State()),
		Success:    healResult.Success,
		Attempts:   len(healResult.History),
		FinalFiles: healResult.FinalFiles,
		LastStdout: healResult.LastStdout,
		LastStderr: healResult.LastStderr,
	})
}

// handleListSessions handles the list_sessions tool
func (s *MCPServer) handleListSessions(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got: %d", limit)
	}

	records, err := s.store.ListSessions(limit)
	if err != nil {
		return errorResult("Session listing failed: %v", err), nil
	}

	summaries := make([]sessionSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, sessionSummary{
			SessionID:   rec.ID,
			EntryPoint:  rec.EntryPoint,
			Status:      string(rec.Status),
			Success:     rec.Success,
			MaxAttempts: rec.MaxAttempts,
			CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:   rec.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	return jsonResult(summaries)
}

// entryPoint resolves the entry point from the request, falling back to
// detection over the file set. A non-nil result is an error to hand back.
func (s *MCPServer) entryPoint(request mcp.CallToolRequest, files sandbox.FileSet) (string, *mcp.CallToolResult) {
	if entry := request.GetString("entry_point", ""); entry != "" {
		return entry, nil
	}

	entry, err := sandbox.DetectEntryPoint(files)
	if err != nil {
		return "", errorResult("Entry point detection failed: %v", err)
	}
	return entry, nil
}

// persist stores attempts past the given index and refreshes the session
// row. Persistence problems are logged and do not fail the request.
func (s *MCPServer) persist(sessionID string, h *healer.Session, maxAttempts, stored int) {
	history := h.History()
	for _, attempt := range history[stored:] {
		if err := s.store.AddAttempt(sessionID, attempt); err != nil {
			s.logger.Warn("failed to persist attempt",
				zap.String("session_id", sessionID),
				zap.Int("attempt", attempt.Index),
				zap.Error(err))
		}
	}

	if err := s.store.FinishSession(sessionID, h.State(), maxAttempts, h.Snapshot()); err != nil {
		s.logger.Warn("failed to persist session outcome",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// destroy tears the session's container down, logging rather than failing
func (s *MCPServer) destroy(ctx context.Context, sess *sandbox.Session) {
	if err := sess.Destroy(ctx); err != nil {
		s.logger.Warn("sandbox cleanup failed",
			zap.String("session_id", sess.ID()),
			zap.Error(err))
	}
}

// filesArgument extracts the required files object from the request
func filesArgument(request mcp.CallToolRequest) (sandbox.FileSet, error) {
	raw, ok := request.GetArguments()["files"]
	if !ok {
		return nil, fmt.Errorf("files parameter is required")
	}

	entries, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("files must be an object mapping paths to contents")
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("files must not be empty")
	}

	files := make(sandbox.FileSet, len(entries))
	for path, content := range entries {
		text, ok := content.(string)
		if !ok {
			return nil, fmt.Errorf("content of %q must be a string", path)
		}
		files[path] = text
	}
	return files, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(payload),
			},
		},
	}, nil
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: fmt.Sprintf(format, args...),
			},
		},
		IsError: true,
	}
}
