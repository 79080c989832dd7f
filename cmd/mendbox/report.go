package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/isdmx/mendbox/healer"
)

type runReport struct {
	SessionID  string `yaml:"session_id" json:"session_id"`
	EntryPoint string `yaml:"entry_point" json:"entry_point"`
	ExitCode   int    `yaml:"exit_code" json:"exit_code"`
	TimedOut   bool   `yaml:"timed_out" json:"timed_out"`
	Stdout     string `yaml:"stdout" json:"stdout"`
	Stderr     string `yaml:"stderr" json:"stderr"`
}

type attemptReport struct {
	Attempt  int    `yaml:"attempt" json:"attempt"`
	ExitCode int    `yaml:"exit_code" json:"exit_code"`
	TimedOut bool   `yaml:"timed_out" json:"timed_out"`
	Stdout   string `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Stderr   string `yaml:"stderr,omitempty" json:"stderr,omitempty"`
}

type healReport struct {
	SessionID  string          `yaml:"session_id" json:"session_id"`
	EntryPoint string          `yaml:"entry_point" json:"entry_point"`
	State      string          `yaml:"state" json:"state"`
	Success    bool            `yaml:"success" json:"success"`
	Attempts   []attemptReport `yaml:"attempts" json:"attempts"`
	FinalFiles []string        `yaml:"final_files" json:"final_files"`
	LastStdout string          `yaml:"last_stdout" json:"last_stdout"`
	LastStderr string          `yaml:"last_stderr" json:"last_stderr"`
}

func newHealReport(sessionID, entryPoint string, state healer.State, result healer.Result) healReport {
	attempts := make([]attemptReport, 0, len(result.History))
	for _, a := range result.History {
		attempts = append(attempts, attemptReport{
			Attempt:  a.Index,
			ExitCode: a.Result.ExitCode,
			TimedOut: a.Result.TimedOut(),
			Stdout:   a.Result.Stdout,
			Stderr:   a.Result.Stderr,
		})
	}

	return healReport{
		SessionID:  sessionID,
		EntryPoint: entryPoint,
		State:      string(state),
		Success:    result.Success,
		Attempts:   attempts,
		FinalFiles: result.FinalFiles.SortedPaths(),
		LastStdout: result.LastStdout,
		LastStderr: result.LastStderr,
	}
}

// writeReport renders v in the requested format, YAML by default
func writeReport(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		payload, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	default:
		return fmt.Errorf("unsupported format: %s, must be 'yaml' or 'json'", format)
	}
}
