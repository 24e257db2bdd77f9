package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"loom_autopublisher/observe"
)

// Synthesizer turns a transcript into a validated ContentRecord with a single
// model round-trip. It never retries on its own.
type Synthesizer struct {
	llm     LLMClient
	logger  *slog.Logger
	metrics *observe.Metrics
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records synthesis latency and recoveries.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Synthesizer) {
		s.metrics = m
	}
}

// NewSynthesizer returns a Synthesizer backed by llm.
func NewSynthesizer(llm LLMClient, opts ...Option) (*Synthesizer, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	s := &Synthesizer{llm: llm, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Synthesize builds the prompt, calls the model and validates its answer. On
// success every field of the returned record satisfies its constraints.
func (s *Synthesizer) Synthesize(ctx context.Context, transcript Transcript, style BrandStyle) (ContentRecord, error) {
	text := strings.TrimSpace(transcript.Text())
	if text == "" {
		return ContentRecord{}, fmt.Errorf("synthesize: empty transcript: %w", ErrInvalidInput)
	}

	start := time.Now()
	raw, err := s.llm.Complete(ctx, BuildContentPrompt(text, style))
	if err != nil {
		s.metrics.RecordSynthesis(ctx, time.Since(start), "llm_error")
		return ContentRecord{}, fmt.Errorf("synthesize: llm: %w", err)
	}

	rec, recovered, err := PostProcess(raw)
	if recovered {
		s.metrics.RecordRecovery(ctx)
		s.logger.Warn("model output needed brace extraction", "raw_len", len(raw))
	}
	if err != nil {
		s.metrics.RecordSynthesis(ctx, time.Since(start), "invalid_output")
		return ContentRecord{}, err
	}
	s.metrics.RecordSynthesis(ctx, time.Since(start), "ok")
	s.logger.Info("content synthesized", "slug", rec.Slug, "title_len", len([]rune(rec.Title)))
	return rec, nil
}
