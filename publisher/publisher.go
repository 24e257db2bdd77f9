package publisher

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"loom_autopublisher/observe"
)

const (
	defaultYouTubeUploadURL    = "https://www.googleapis.com/upload/youtube/v3/videos"
	defaultYouTubeThumbnailURL = "https://www.googleapis.com/upload/youtube/v3/thumbnails/set"
	defaultYouTubePrivacy      = "unlisted"
	defaultBufferEndpoint      = "https://api.bufferapp.com/1/updates/create.json"
	defaultAvatarVoice         = "jenny"
	defaultPollInterval        = 2500 * time.Millisecond
	defaultRenderTimeout       = 60 * time.Second
	defaultContentDir          = "content/walkthroughs"
	defaultHTTPTimeout         = 60 * time.Second
)

// Sink names used in results, logs and metrics.
const (
	SinkYouTube = "youtube"
	SinkHeyGen  = "heygen"
	SinkBuffer  = "buffer"
	SinkSite    = "site"
)

// Config holds the non-secret settings of all sinks.
type Config struct {
	YouTubeUploadURL    string
	YouTubeThumbnailURL string
	YouTubePrivacy      string

	// AvatarBaseURL is the HeyGen API root. Live renders fail fast without it.
	AvatarBaseURL      string
	AvatarVoice        string
	AvatarModelID      string
	AvatarPollInterval time.Duration
	AvatarTimeout      time.Duration

	BufferEndpoint string
	BufferProfiles []string

	SiteRepoDir    string
	SiteContentDir string
	SiteBaseURL    string
}

func (c Config) withDefaults() Config {
	if c.YouTubeUploadURL == "" {
		c.YouTubeUploadURL = defaultYouTubeUploadURL
	}
	if c.YouTubeThumbnailURL == "" {
		c.YouTubeThumbnailURL = defaultYouTubeThumbnailURL
	}
	if c.YouTubePrivacy == "" {
		c.YouTubePrivacy = defaultYouTubePrivacy
	}
	if c.AvatarVoice == "" {
		c.AvatarVoice = defaultAvatarVoice
	}
	if c.AvatarPollInterval <= 0 {
		c.AvatarPollInterval = defaultPollInterval
	}
	if c.AvatarTimeout <= 0 {
		c.AvatarTimeout = defaultRenderTimeout
	}
	if c.BufferEndpoint == "" {
		c.BufferEndpoint = defaultBufferEndpoint
	}
	if c.SiteRepoDir == "" {
		c.SiteRepoDir = "."
	}
	if c.SiteContentDir == "" {
		c.SiteContentDir = defaultContentDir
	}
	c.SiteBaseURL = strings.TrimRight(strings.TrimSpace(c.SiteBaseURL), "/")
	return c
}

// Result names the artifact produced by one sink call. Simulated and live
// identifiers are not interchangeable beyond being display strings.
type Result struct {
	Sink string `json:"sink"`
	Mode Mode   `json:"mode"`
	ID   string `json:"id,omitempty"`
	URL  string `json:"url,omitempty"`
	// Fallback is set when ID was generated locally because the remote
	// success response did not carry one.
	Fallback bool `json:"fallback,omitempty"`
}

// Publisher fans content out to the distribution sinks. Each call consults
// the credential gate afresh and keeps no state afterwards.
type Publisher struct {
	cfg     Config
	creds   Credentials
	client  *http.Client
	git     GitRunner
	logger  *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithHTTPClient overrides the HTTP client used by live sinks.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) {
		if c != nil {
			p.client = c
		}
	}
}

// WithGitRunner overrides how git commands are executed.
func WithGitRunner(g GitRunner) Option {
	return func(p *Publisher) {
		if g != nil {
			p.git = g
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records sink calls.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithClock overrides the clock used for page dates.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a Publisher. creds is consulted on every call; nil means no
// credentials, so every remote sink runs simulated.
func New(cfg Config, creds Credentials, opts ...Option) *Publisher {
	p := &Publisher{
		cfg:    cfg.withDefaults(),
		creds:  creds,
		client: &http.Client{Timeout: defaultHTTPTimeout},
		git:    ExecGit{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Publisher) decide(sink, key string, dryRun bool) Decision {
	d := Decide(p.creds, key, dryRun)
	p.logger.Info("sink mode selected", "sink", sink, "mode", d.Mode, "dry_run", dryRun)
	return d
}

func (p *Publisher) record(ctx context.Context, sink string, mode Mode, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordSinkCall(ctx, sink, string(mode), status)
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomID returns n pseudo-random lowercase alphanumerics.
func randomID(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}
