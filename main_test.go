package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom_autopublisher/generator"
	"loom_autopublisher/ledger"
	"loom_autopublisher/pipeline"
)

type cliEnv struct {
	dir        string
	configPath string
	transcript string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		transcript: filepath.Join(dir, "transcript.txt"),
	}
	cfg := "site:\n  repo_dir: " + filepath.Join(dir, "site") + "\n" +
		"ledger_path: " + filepath.Join(dir, "ledger.db") + "\n" +
		"log_level: error\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	require.NoError(t, os.WriteFile(env.transcript, []byte("Invite teammates to your workspace in seconds"), 0o644))
	return env
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSynthesizeCommand(t *testing.T) {
	env := setupCLIEnv(t)
	out, err := execute(t, "--config", env.configPath, "synthesize", "--transcript", env.transcript, "--mock-llm")
	require.NoError(t, err)

	var rec generator.ContentRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "Invite teammates to your workspace in", rec.Title)
	assert.Equal(t, "invite-teammates-to-your-workspace-in", rec.Slug)
}

func TestSynthesizeCommandRequiresTranscript(t *testing.T) {
	env := setupCLIEnv(t)
	_, err := execute(t, "--config", env.configPath, "synthesize")
	require.Error(t, err)
}

func TestRunCommandDryRunRecordsHistory(t *testing.T) {
	env := setupCLIEnv(t)
	out, err := execute(t, "--config", env.configPath, "run", "--dry-run", "--mock-llm", "--transcript", env.transcript)
	require.NoError(t, err)

	var outcome pipeline.Outcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, "https://example.com/"+outcome.Content.Slug+".html", outcome.Page.URL)
	assert.True(t, strings.HasPrefix(outcome.Social.ID, "dry-"))
	require.NotNil(t, outcome.Intro)

	page := filepath.Join(env.dir, "site", "content", "walkthroughs", outcome.Content.Slug+".html")
	_, err = os.Stat(page)
	require.NoError(t, err)

	out, err = execute(t, "--config", env.configPath, "history", "--json")
	require.NoError(t, err)
	var runs []ledger.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, outcome.RunID, runs[0].ID)
	assert.Equal(t, ledger.StatusCompleted, runs[0].Status)

	out, err = execute(t, "--config", env.configPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, outcome.RunID)
	assert.Contains(t, out, "completed")
}

func TestRunCommandNeedsInput(t *testing.T) {
	env := setupCLIEnv(t)
	_, err := execute(t, "--config", env.configPath, "run", "--mock-llm")
	require.ErrorContains(t, err, "share URL or --transcript")
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "history")
	require.Error(t, err)
}
