package publisher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"loom_autopublisher/generator"
)

const simulatedSiteURL = "https://example.com"

// Page is a walkthrough page for the static site.
type Page struct {
	HTML     string
	Slug     string
	Title    string
	VideoURL string
}

// PageFromRecord builds the page for a synthesized record.
func PageFromRecord(rec generator.ContentRecord, videoURL string) Page {
	return Page{HTML: rec.WalkthroughHTML, Slug: rec.Slug, Title: rec.Title, VideoURL: videoURL}
}

// GitRunner executes a git subcommand inside dir.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) error
}

// ExecGit runs the git executable found on PATH.
type ExecGit struct{}

func (ExecGit) Run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// SitePublisher writes a page into the site repository and returns its URL.
type SitePublisher interface {
	Publish(ctx context.Context, page Page) (Result, error)
}

type frontMatter struct {
	Title string `yaml:"title"`
	Date  string `yaml:"date"`
	YT    string `yaml:"yt"`
}

// PublishPage writes the page file. Live mode also commits and pushes it and
// returns the public URL under the site base URL; simulated mode returns a
// fixed example URL and never runs git.
func (p *Publisher) PublishPage(ctx context.Context, page Page, dryRun bool) (Result, error) {
	if !generator.ValidSlug(page.Slug) {
		return Result{}, fmt.Errorf("site publish: unusable slug %q: %w", page.Slug, generator.ErrInvalidInput)
	}
	d := p.decide(SinkSite, "", dryRun)
	res, err := p.publishSite(ctx, d, page)
	p.record(ctx, SinkSite, d.Mode, err)
	return res, err
}

func (p *Publisher) publishSite(ctx context.Context, d Decision, page Page) (Result, error) {
	sp, err := p.sitePublisher(d)
	if err != nil {
		return Result{}, err
	}
	return sp.Publish(ctx, page)
}

func (p *Publisher) sitePublisher(d Decision) (SitePublisher, error) {
	w := pageWriter{repoDir: p.cfg.SiteRepoDir, contentDir: p.cfg.SiteContentDir, now: p.now().Format("2006-01-02")}
	if !d.Live() {
		return simulatedSite{w: w}, nil
	}
	baseURL := p.cfg.SiteBaseURL
	if v, ok := lookupCredential(p.creds, SiteURLKey); ok {
		baseURL = strings.TrimRight(v, "/")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("site publish: %w", ErrSiteURLMissing)
	}
	return &gitSite{w: w, git: p.git, baseURL: baseURL}, nil
}

type pageWriter struct {
	repoDir    string
	contentDir string
	now        string
}

// write renders front matter plus body and stores it under the content dir.
func (w pageWriter) write(page Page) (string, error) {
	fm, err := yaml.Marshal(frontMatter{Title: page.Title, Date: w.now, YT: page.VideoURL})
	if err != nil {
		return "", fmt.Errorf("site publish: front matter: %w", err)
	}
	body, err := ensureHTML(page.HTML)
	if err != nil {
		return "", fmt.Errorf("site publish: render body: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(body)

	path, err := filepath.Abs(filepath.Join(w.repoDir, w.contentDir, page.Slug+".html"))
	if err != nil {
		return "", fmt.Errorf("site publish: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("site publish: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("site publish: %w", err)
	}
	return path, nil
}

type simulatedSite struct {
	w pageWriter
}

func (s simulatedSite) Publish(_ context.Context, page Page) (Result, error) {
	path, err := s.w.write(page)
	if err != nil {
		return Result{}, err
	}
	return Result{Sink: SinkSite, Mode: ModeSimulated, ID: path, URL: fmt.Sprintf("%s/%s.html", simulatedSiteURL, page.Slug)}, nil
}

type gitSite struct {
	w       pageWriter
	git     GitRunner
	baseURL string
}

func (g *gitSite) Publish(ctx context.Context, page Page) (Result, error) {
	path, err := g.w.write(page)
	if err != nil {
		return Result{}, err
	}
	steps := [][]string{
		{"add", path},
		{"commit", "-m", "feat(walk): " + page.Slug},
		{"push"},
	}
	for _, args := range steps {
		if err := g.git.Run(ctx, g.w.repoDir, args...); err != nil {
			return Result{}, fmt.Errorf("site publish: %w", err)
		}
	}
	return Result{Sink: SinkSite, Mode: ModeLive, ID: path, URL: fmt.Sprintf("%s/%s.html", g.baseURL, page.Slug)}, nil
}
