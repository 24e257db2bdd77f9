package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"loom_autopublisher/assets"
	"loom_autopublisher/config"
	"loom_autopublisher/generator"
	"loom_autopublisher/logging"
	"loom_autopublisher/observe"
	"loom_autopublisher/pipeline"
	"loom_autopublisher/publisher"
)

type commandContext struct {
	configFlag string
	logLevel   string
	logFormat  string
	verbose    bool

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

// ensureConfig loads the config once per invocation. Without --config the
// default path is optional.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.configFlag)
		allowMissing := path == ""
		if path == "" {
			path = config.DefaultPath
		}
		cfg, err := config.Load(path, allowMissing)
		if err != nil {
			c.configErr = err
			return
		}
		cfg.ApplyEnv(publisher.Environment)
		if c.logLevel != "" {
			cfg.LogLevel = c.logLevel
		}
		if c.verbose {
			cfg.LogLevel = "debug"
		}
		if c.logFormat != "" {
			cfg.LogFormat = c.logFormat
		}
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		if err != nil {
			c.configErr = err
			return
		}
		slog.SetDefault(logger)
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func buildLLM(cfg *config.Config, mock bool) (generator.LLMClient, error) {
	if mock {
		return generator.MockLLM{}, nil
	}
	switch cfg.LLM.Provider {
	case "openai", "deepseek":
		// DeepSeek speaks the OpenAI wire protocol; Validate already required base_url.
		return generator.NewOpenAILLMFromConfig(cfg.LLMSettings())
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

func (c *commandContext) buildSynthesizer(mock bool, metrics *observe.Metrics) (*generator.Synthesizer, error) {
	llm, err := buildLLM(c.config, mock)
	if err != nil {
		return nil, err
	}
	return generator.NewSynthesizer(llm,
		generator.WithLogger(c.logger.With("component", "synthesizer")),
		generator.WithMetrics(metrics),
	)
}

func (c *commandContext) buildOrchestrator(synth pipeline.ContentSynthesizer, metrics *observe.Metrics, recorder pipeline.Recorder) (*pipeline.Orchestrator, error) {
	cfg := c.config
	pub := publisher.New(cfg.Publisher(), publisher.Environment,
		publisher.WithLogger(c.logger.With("component", "publisher")),
		publisher.WithMetrics(metrics),
	)
	fetcher := assets.NewFetcher(&http.Client{Timeout: cfg.LoomTimeout()}, cfg.Loom.CDNBaseURL)

	opts := []pipeline.Option{
		pipeline.WithLogger(c.logger.With("component", "pipeline")),
		pipeline.WithMetrics(metrics),
		pipeline.WithSynthesisAttempts(cfg.LLM.Attempts),
	}
	if recorder != nil {
		opts = append(opts, pipeline.WithRecorder(recorder))
	}
	return pipeline.New(fetcher, synth, pub, opts...)
}

func (c *commandContext) brandStyle() generator.BrandStyle {
	style, err := generator.LoadBrandStyle(c.config.BrandCSSPath())
	if err != nil {
		c.logger.Warn("brand stylesheet unreadable; continuing without it", "path", c.config.BrandCSSPath(), "err", err)
		return ""
	}
	return style
}

// readTranscript loads a transcript file. .json files hold segments, anything
// else is plain text.
func readTranscript(path string) (generator.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return assets.DecodeTranscript(data)
	}
	return generator.RawTranscript(string(data)), nil
}
