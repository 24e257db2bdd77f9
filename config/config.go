// Package config loads the autopublisher configuration from a JSON or YAML
// file and applies environment overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"loom_autopublisher/generator"
	"loom_autopublisher/publisher"
)

// Environment keys read by ApplyEnv. Sink credentials are not copied into
// the config; sinks look them up on every call.
const (
	EnvLLMModel  = "LLM_MODEL"
	EnvOpenAIKey = "OPENAI_API_KEY"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "config/config.yaml"

// Config is the whole configuration of one invocation.
type Config struct {
	LLM        LLMConfig     `json:"llm" yaml:"llm"`
	Loom       LoomConfig    `json:"loom" yaml:"loom"`
	YouTube    YouTubeConfig `json:"youtube" yaml:"youtube"`
	Avatar     AvatarConfig  `json:"avatar" yaml:"avatar"`
	Buffer     BufferConfig  `json:"buffer" yaml:"buffer"`
	Site       SiteConfig    `json:"site" yaml:"site"`
	ServerAddr string        `json:"server_addr,omitempty" yaml:"server_addr,omitempty"`
	LedgerPath string        `json:"ledger_path,omitempty" yaml:"ledger_path,omitempty"`
	LogLevel   string        `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat  string        `json:"log_format,omitempty" yaml:"log_format,omitempty"`
}

// LLMConfig selects the synthesis model.
type LLMConfig struct {
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Attempts is the total number of synthesis calls allowed when the model
	// output is unusable. Zero means one.
	Attempts int `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// LoomConfig points at the recording CDN.
type LoomConfig struct {
	CDNBaseURL     string `json:"cdn_base_url,omitempty" yaml:"cdn_base_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

type YouTubeConfig struct {
	UploadURL     string `json:"upload_url,omitempty" yaml:"upload_url,omitempty"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty" yaml:"thumbnail_url,omitempty"`
	PrivacyStatus string `json:"privacy_status,omitempty" yaml:"privacy_status,omitempty"`
}

type AvatarConfig struct {
	BaseURL             string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Voice               string  `json:"voice,omitempty" yaml:"voice,omitempty"`
	ModelID             string  `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	PollIntervalSeconds float64 `json:"poll_interval_seconds,omitempty" yaml:"poll_interval_seconds,omitempty"`
	TimeoutSeconds      float64 `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

type BufferConfig struct {
	Endpoint string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Profiles []string `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

// SiteConfig describes the static site repository.
type SiteConfig struct {
	RepoDir    string `json:"repo_dir,omitempty" yaml:"repo_dir,omitempty"`
	ContentDir string `json:"content_dir,omitempty" yaml:"content_dir,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// BrandCSS is relative to RepoDir unless absolute.
	BrandCSS string `json:"brand_css,omitempty" yaml:"brand_css,omitempty"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = generator.DefaultModel
	}
	if c.Site.RepoDir == "" {
		c.Site.RepoDir = "."
	}
	if c.Site.ContentDir == "" {
		c.Site.ContentDir = "content/walkthroughs"
	}
	if c.Site.BrandCSS == "" {
		c.Site.BrandCSS = "styles/variables.css"
	}
	if c.LedgerPath == "" {
		c.LedgerPath = "autopublisher.db"
	}
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Load reads the config at path. The format follows the extension: .yaml
// and .yml are YAML, anything else JSON. When allowMissing is set a missing
// file yields the defaults.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = decodeYAML(bytes.NewReader(data))
	default:
		cfg, err = decodeJSON(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func decodeJSON(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides the model name and LLM key from creds.
func (c *Config) ApplyEnv(creds publisher.Credentials) {
	if creds == nil {
		return
	}
	if v, ok := creds.Lookup(EnvLLMModel); ok && strings.TrimSpace(v) != "" {
		c.LLM.Model = strings.TrimSpace(v)
	}
	if v, ok := creds.Lookup(EnvOpenAIKey); ok && strings.TrimSpace(v) != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = strings.TrimSpace(v)
	}
}

var (
	validProviders = []string{"openai", "deepseek"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"text", "json"}
)

// Validate returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.LLM.Provider != "" && !slices.Contains(validProviders, cfg.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported; valid values: %s", cfg.LLM.Provider, strings.Join(validProviders, ", ")))
	}
	if cfg.LLM.Provider == "deepseek" && cfg.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)"))
	}
	if cfg.LLM.Attempts < 0 {
		errs = append(errs, fmt.Errorf("llm.attempts %d must not be negative", cfg.LLM.Attempts))
	}
	if cfg.Avatar.PollIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("avatar.poll_interval_seconds %.2f must not be negative", cfg.Avatar.PollIntervalSeconds))
	}
	if cfg.Avatar.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("avatar.timeout_seconds %.2f must not be negative", cfg.Avatar.TimeoutSeconds))
	}
	if cfg.Loom.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("loom.timeout_seconds %d must not be negative", cfg.Loom.TimeoutSeconds))
	}
	if cfg.LogLevel != "" && !slices.Contains(validLogLevels, strings.ToLower(cfg.LogLevel)) {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: %s", cfg.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	if cfg.LogFormat != "" && !slices.Contains(validFormats, strings.ToLower(cfg.LogFormat)) {
		errs = append(errs, fmt.Errorf("log_format %q is invalid; valid values: %s", cfg.LogFormat, strings.Join(validFormats, ", ")))
	}
	return errors.Join(errs...)
}

// LLMSettings returns the synthesis model settings.
func (c *Config) LLMSettings() *generator.LLMSettings {
	return &generator.LLMSettings{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Temperature: generator.DefaultTemperature,
	}
}

// Publisher returns the sink settings.
func (c *Config) Publisher() publisher.Config {
	return publisher.Config{
		YouTubeUploadURL:    c.YouTube.UploadURL,
		YouTubeThumbnailURL: c.YouTube.ThumbnailURL,
		YouTubePrivacy:      c.YouTube.PrivacyStatus,
		AvatarBaseURL:       c.Avatar.BaseURL,
		AvatarVoice:         c.Avatar.Voice,
		AvatarModelID:       c.Avatar.ModelID,
		AvatarPollInterval:  seconds(c.Avatar.PollIntervalSeconds),
		AvatarTimeout:       seconds(c.Avatar.TimeoutSeconds),
		BufferEndpoint:      c.Buffer.Endpoint,
		BufferProfiles:      c.Buffer.Profiles,
		SiteRepoDir:         c.Site.RepoDir,
		SiteContentDir:      c.Site.ContentDir,
		SiteBaseURL:         c.Site.BaseURL,
	}
}

// BrandCSSPath resolves the brand stylesheet location.
func (c *Config) BrandCSSPath() string {
	if c.Site.BrandCSS == "" || filepath.IsAbs(c.Site.BrandCSS) {
		return c.Site.BrandCSS
	}
	return filepath.Join(c.Site.RepoDir, c.Site.BrandCSS)
}

// LoomTimeout is the per-request timeout for asset downloads.
func (c *Config) LoomTimeout() time.Duration {
	if c.Loom.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Loom.TimeoutSeconds) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
