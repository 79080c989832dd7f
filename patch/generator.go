package patch

import (
	"context"

	"go.uber.org/zap"

	"github.com/isdmx/mendbox/llm"
	"github.com/isdmx/mendbox/sandbox"
)

// Generator proposes file replacements by prompting an LLM with the failing
// project and its error output. It satisfies the healer's patch generator
// boundary.
type Generator struct {
	logger *zap.Logger
	client llm.Client
}

// NewGenerator creates a Generator backed by the given LLM client
func NewGenerator(logger *zap.Logger, client llm.Client) *Generator {
	return &Generator{logger: logger, client: client}
}

// GeneratePatch requests a fix for the failing files. A response without
// valid blocks yields an empty map; transport failures are returned as
// errors for the caller to degrade.
func (g *Generator) GeneratePatch(ctx context.Context, files sandbox.FileSet, stderr string) (map[string]string, error) {
	system, user := BuildPrompt(files, stderr)
	response, err := g.client.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	updates := Parse(response)
	g.logger.Info("patch generated",
		zap.Int("updates", len(updates)),
		zap.Int("response_bytes", len(response)))
	return updates, nil
}
