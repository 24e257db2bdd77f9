package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom_autopublisher/publisher"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
llm:
  provider: openai
  model: gpt-4o
  attempts: 2
avatar:
  base_url: https://api.heygen.com
  poll_interval_seconds: 1.5
buffer:
  profiles: [abc, def]
site:
  repo_dir: /srv/site
  base_url: https://mysite.com
log_format: json
`)
	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.LLM.Attempts)
	assert.Equal(t, []string{"abc", "def"}, cfg.Buffer.Profiles)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "content/walkthroughs", cfg.Site.ContentDir)
	assert.Equal(t, "/srv/site/styles/variables.css", cfg.BrandCSSPath())

	pc := cfg.Publisher()
	assert.Equal(t, 1500*time.Millisecond, pc.AvatarPollInterval)
	assert.Equal(t, "https://api.heygen.com", pc.AvatarBaseURL)
	assert.Equal(t, "https://mysite.com", pc.SiteBaseURL)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"llm":{"provider":"deepseek","model":"deepseek-chat","base_url":"https://api.deepseek.com/v1"},"server_addr":":9090"}`)
	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "autopublisher.db", cfg.LedgerPath)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeFile(t, "config.yaml", "llm:\n  modle: typo\n"), false)
	require.Error(t, err)

	_, err = Load(writeFile(t, "config.json", `{"unknown": true}`), false)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := Load(missing, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(missing, false)
	require.Error(t, err)
}

func TestLoadEmptyYAMLUsesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", ""), false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateJoinsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "deepseek"
	cfg.LLM.Attempts = -1
	cfg.Avatar.TimeoutSeconds = -2
	cfg.LogLevel = "loud"
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{"base_url", "llm.attempts", "avatar.timeout_seconds", "log_level", "log_format"} {
		assert.ErrorContains(t, err, want)
	}

	cfg = Default()
	cfg.LLM.Provider = "anthropic"
	assert.ErrorContains(t, Validate(cfg), "not supported")

	assert.NoError(t, Validate(Default()))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(publisher.StaticCredentials{
		EnvLLMModel:  " gpt-4.1 ",
		EnvOpenAIKey: "sk-env",
	})
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)

	cfg = Default()
	cfg.LLM.APIKey = "sk-file"
	cfg.ApplyEnv(publisher.StaticCredentials{EnvOpenAIKey: "sk-env", EnvLLMModel: "  "})
	assert.Equal(t, "sk-file", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)

	assert.NotPanics(t, func() { Default().ApplyEnv(nil) })
}

func TestLoomTimeout(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60*time.Second, cfg.LoomTimeout())
	cfg.Loom.TimeoutSeconds = 5
	assert.Equal(t, 5*time.Second, cfg.LoomTimeout())
}

func TestBrandCSSPathAbsolute(t *testing.T) {
	cfg := Default()
	cfg.Site.BrandCSS = "/etc/brand.css"
	assert.Equal(t, "/etc/brand.css", cfg.BrandCSSPath())
}
