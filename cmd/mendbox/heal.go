package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/isdmx/mendbox/config"
	"github.com/isdmx/mendbox/healer"
	"github.com/isdmx/mendbox/llm/anthropic"
	"github.com/isdmx/mendbox/logger"
	"github.com/isdmx/mendbox/patch"
	"github.com/isdmx/mendbox/runtime"
	"github.com/isdmx/mendbox/sandbox"
)

var (
	healDir      string
	healEntry    string
	healAttempts int
	healOut      string
	healFormat   string
)

var healCmd = &cobra.Command{
	Use:   "heal",
	Short: "Repair a failing project with LLM-generated patches",
	Long: `Heal runs the project like run does, but when it exits non-zero the
error output is sent to an LLM, the returned file updates are merged into
the working copy and the project is executed again, until it exits cleanly
or the attempt budget is spent.

The healed files are written to --out when given; the report only ever
lists their paths. Requires the Anthropic API key in the environment
variable named by patchgen.api_key_env (default ANTHROPIC_API_KEY).`,
	RunE: runHeal,
}

func init() {
	healCmd.Flags().StringVar(&healDir, "dir", ".", "Project directory to heal")
	healCmd.Flags().StringVar(&healEntry, "entry", "", "Entry point file (auto-detected when omitted)")
	healCmd.Flags().IntVar(&healAttempts, "attempts", 0, "Attempt budget (defaults to configuration)")
	healCmd.Flags().StringVar(&healOut, "out", "", "Directory to write the healed files to")
	healCmd.Flags().StringVar(&healFormat, "format", "yaml", "Report format: yaml or json")
	rootCmd.AddCommand(healCmd)
}

func runHeal(cmd *cobra.Command, _ []string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stdout sync failures are unactionable

	rt, err := runtime.New(log, cfg)
	if err != nil {
		return err
	}

	apiKey := os.Getenv(cfg.PatchGen.APIKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("environment variable %s is not set", cfg.PatchGen.APIKeyEnv)
	}
	client := anthropic.New(apiKey, cfg.PatchGen.Model,
		anthropic.WithBaseURL(cfg.PatchGen.BaseURL),
		anthropic.WithMaxTokens(cfg.PatchGen.MaxTokens),
		anthropic.WithTimeout(time.Duration(cfg.PatchGen.TimeoutSec)*time.Second),
	)
	generator := patch.NewGenerator(log, client)

	files, err := sandbox.LoadDir(healDir)
	if err != nil {
		return err
	}

	entry := healEntry
	if entry == "" {
		if entry, err = sandbox.DetectEntryPoint(files); err != nil {
			return err
		}
	}

	attempts := healAttempts
	if attempts <= 0 {
		attempts = cfg.Healer.MaxAttempts
	}

	sess := sandbox.NewSession(log, rt, cfg)
	defer sess.Destroy(context.Background()) //nolint:errcheck // cleanup is best effort

	h := healer.NewSession(log, sess, generator, files, entry, attempts)
	result, err := h.Heal(cmd.Context())
	if err != nil {
		return err
	}

	if healOut != "" {
		if err := result.FinalFiles.WriteDir(healOut); err != nil {
			return fmt.Errorf("writing healed files: %w", err)
		}
	}

	return writeReport(cmd.OutOrStdout(), healFormat, newHealReport(sess.ID(), entry, h.State(), result))
}
