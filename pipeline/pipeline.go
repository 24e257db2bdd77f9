// Package pipeline sequences asset acquisition, content synthesis and
// distribution for one recording.
//
// Acquisition fetches its three assets concurrently; every later stage runs
// strictly after the previous one because it consumes that stage's output.
// Each stage ends in a single terminal side effect, so a cancelled run can
// simply be started again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"loom_autopublisher/assets"
	"loom_autopublisher/generator"
	"loom_autopublisher/observe"
	"loom_autopublisher/publisher"
)

// Stage names a pipeline step.
type Stage string

const (
	StageAcquire    Stage = "acquire"
	StageSynthesize Stage = "synthesize"
	StageUpload     Stage = "upload"
	StageIntro      Stage = "intro"
	StagePublish    Stage = "publish"
	StageQueue      Stage = "queue"
)

// StageError wraps the failure of one stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Acquirer downloads the raw assets of a recording.
type Acquirer interface {
	Fetch(ctx context.Context, shareURL string) (*assets.Assets, error)
}

// ContentSynthesizer turns a transcript into a validated content record.
type ContentSynthesizer interface {
	Synthesize(ctx context.Context, transcript generator.Transcript, style generator.BrandStyle) (generator.ContentRecord, error)
}

// Distributor is the set of distribution sinks.
type Distributor interface {
	UploadVideo(ctx context.Context, v publisher.VideoUpload, dryRun bool) (publisher.Result, error)
	RenderIntro(ctx context.Context, req publisher.IntroRequest, dryRun bool) (publisher.Intro, error)
	PublishPage(ctx context.Context, page publisher.Page, dryRun bool) (publisher.Result, error)
	QueuePost(ctx context.Context, post publisher.SocialPost, dryRun bool) (publisher.Result, error)
}

// Recorder persists run progress. Recorder failures are logged, never
// propagated.
type Recorder interface {
	Begin(ctx context.Context, runID string, req Request) error
	Complete(ctx context.Context, runID string, out *Outcome) error
	Fail(ctx context.Context, runID string, stage Stage, err error) error
}

// DryRun forces simulated mode per sink.
type DryRun struct {
	Video  bool `json:"video"`
	Intro  bool `json:"intro"`
	Page   bool `json:"page"`
	Social bool `json:"social"`
}

// AllDryRun simulates every sink.
func AllDryRun() DryRun {
	return DryRun{Video: true, Intro: true, Page: true, Social: true}
}

// Request describes one pipeline run. When Transcript is set acquisition is
// skipped and VideoPath/ThumbnailPath supply the media.
type Request struct {
	RunID         string
	ShareURL      string
	Transcript    generator.Transcript
	VideoPath     string
	ThumbnailPath string
	BrandStyle    generator.BrandStyle
	DryRun        DryRun
	WithIntro     bool
	Profiles      []string
}

// Outcome collects the artifacts of a successful run.
type Outcome struct {
	RunID       string                  `json:"run_id"`
	RecordingID string                  `json:"recording_id,omitempty"`
	Content     generator.ContentRecord `json:"content"`
	Video       publisher.Result        `json:"video"`
	Intro       *publisher.Intro        `json:"intro,omitempty"`
	Page        publisher.Result        `json:"page"`
	Social      publisher.Result        `json:"social"`
}

// Orchestrator runs the pipeline. It holds no per-run state.
type Orchestrator struct {
	acquirer    Acquirer
	synthesizer ContentSynthesizer
	distributor Distributor
	recorder    Recorder
	logger      *slog.Logger
	metrics     *observe.Metrics
	attempts    int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records every run.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics counts finished runs.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSynthesisAttempts re-invokes synthesis up to n times in total when
// the model output is unusable. Defaults to 1.
func WithSynthesisAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.attempts = n
		}
	}
}

func New(acq Acquirer, synth ContentSynthesizer, dist Distributor, opts ...Option) (*Orchestrator, error) {
	if synth == nil {
		return nil, errors.New("pipeline: synthesizer is required")
	}
	if dist == nil {
		return nil, errors.New("pipeline: distributor is required")
	}
	o := &Orchestrator{
		acquirer:    acq,
		synthesizer: synth,
		distributor: dist,
		logger:      slog.Default(),
		attempts:    1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes every stage for req and returns the collected artifacts.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	logger := o.logger.With("run_id", req.RunID)
	if o.recorder != nil {
		if err := o.recorder.Begin(ctx, req.RunID, req); err != nil {
			logger.Warn("record run start failed", "err", err)
		}
	}

	out, stage, err := o.run(ctx, logger, req)
	if err != nil {
		o.metrics.RecordRun(ctx, "failed")
		logger.Error("pipeline failed", "stage", stage, "err", err)
		if o.recorder != nil {
			if recErr := o.recorder.Fail(context.WithoutCancel(ctx), req.RunID, stage, err); recErr != nil {
				logger.Warn("record run failure failed", "err", recErr)
			}
		}
		return nil, &StageError{Stage: stage, Err: err}
	}

	o.metrics.RecordRun(ctx, "ok")
	logger.Info("pipeline finished", "page", out.Page.URL, "video", out.Video.URL, "social_id", out.Social.ID)
	if o.recorder != nil {
		if err := o.recorder.Complete(ctx, req.RunID, out); err != nil {
			logger.Warn("record run completion failed", "err", err)
		}
	}
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, req Request) (*Outcome, Stage, error) {
	out := &Outcome{RunID: req.RunID}

	upload := publisher.VideoUpload{VideoPath: req.VideoPath, ThumbnailPath: req.ThumbnailPath}
	transcript := req.Transcript
	if len(transcript) == 0 {
		if o.acquirer == nil {
			return nil, StageAcquire, fmt.Errorf("no transcript given and no acquirer configured: %w", generator.ErrInvalidInput)
		}
		a, err := o.acquirer.Fetch(ctx, req.ShareURL)
		if err != nil {
			return nil, StageAcquire, err
		}
		out.RecordingID = a.ID
		transcript = a.Transcript
		upload.Video = a.Video
		upload.Thumbnail = a.Thumbnail
		logger.Info("assets acquired", "recording_id", a.ID, "video_bytes", len(a.Video), "segments", len(a.Transcript))
	}

	rec, err := o.synthesize(ctx, logger, transcript, req.BrandStyle)
	if err != nil {
		return nil, StageSynthesize, err
	}
	out.Content = rec

	upload.Title = rec.Title
	upload.Description = rec.Description
	if out.Video, err = o.distributor.UploadVideo(ctx, upload, req.DryRun.Video); err != nil {
		return nil, StageUpload, err
	}

	if req.WithIntro {
		intro, err := o.distributor.RenderIntro(ctx, publisher.IntroRequest{Script: rec.Teaser}, req.DryRun.Intro)
		if err != nil {
			return nil, StageIntro, err
		}
		out.Intro = &intro
	}

	if out.Page, err = o.distributor.PublishPage(ctx, publisher.PageFromRecord(rec, out.Video.URL), req.DryRun.Page); err != nil {
		return nil, StagePublish, err
	}

	post := publisher.SocialPost{
		Text:           rec.Teaser,
		TargetURL:      out.Page.URL,
		RemoteVideoURL: out.Video.URL,
		Profiles:       req.Profiles,
	}
	if out.Social, err = o.distributor.QueuePost(ctx, post, req.DryRun.Social); err != nil {
		return nil, StageQueue, err
	}
	return out, "", nil
}

func (o *Orchestrator) synthesize(ctx context.Context, logger *slog.Logger, t generator.Transcript, style generator.BrandStyle) (generator.ContentRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		rec, err := o.synthesizer.Synthesize(ctx, t, style)
		if err == nil {
			return rec, nil
		}
		lastErr = err
		if !generator.IsOutputError(err) || ctx.Err() != nil {
			break
		}
		if attempt < o.attempts {
			logger.Warn("synthesis output rejected; retrying", "attempt", attempt, "err", err)
		}
	}
	return generator.ContentRecord{}, lastErr
}
