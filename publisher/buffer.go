package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"loom_autopublisher/generator"
)

const (
	simulatedIDPrefix = "dry-"
	// fallbackIDPrefix marks identifiers minted locally after a remote
	// success response without one.
	fallbackIDPrefix = "local-"
)

// SocialPost is a scheduled social update pointing at the published page.
type SocialPost struct {
	Text           string
	TargetURL      string
	RemoteVideoURL string
	// Profiles overrides the configured destination profile IDs.
	Profiles []string
}

// SocialQueuer schedules a social post and returns its update ID.
type SocialQueuer interface {
	Queue(ctx context.Context, post SocialPost) (Result, error)
}

// QueuePost queues post on Buffer, or returns a placeholder update ID when
// simulated.
func (p *Publisher) QueuePost(ctx context.Context, post SocialPost, dryRun bool) (Result, error) {
	if strings.TrimSpace(post.Text) == "" {
		return Result{}, fmt.Errorf("buffer: text required: %w", generator.ErrInvalidInput)
	}
	if len(post.Profiles) == 0 {
		post.Profiles = p.cfg.BufferProfiles
	}
	d := p.decide(SinkBuffer, BufferTokenKey, dryRun)
	res, err := p.socialQueuer(d).Queue(ctx, post)
	p.record(ctx, SinkBuffer, d.Mode, err)
	if err == nil && res.Fallback {
		p.metrics.RecordFallbackID(ctx, SinkBuffer)
		p.logger.Warn("buffer response had no update_id; using local identifier", "id", res.ID)
	}
	return res, err
}

func (p *Publisher) socialQueuer(d Decision) SocialQueuer {
	if !d.Live() {
		return simulatedQueuer{}
	}
	return &bufferQueuer{client: p.client, token: d.Token, endpoint: p.cfg.BufferEndpoint}
}

type simulatedQueuer struct{}

func (simulatedQueuer) Queue(_ context.Context, _ SocialPost) (Result, error) {
	return Result{Sink: SinkBuffer, Mode: ModeSimulated, ID: simulatedIDPrefix + randomID(6)}, nil
}

type bufferQueuer struct {
	client   *http.Client
	token    string
	endpoint string
}

type bufferCreateResp struct {
	UpdateID string `json:"update_id"`
	Updates  []struct {
		ID string `json:"id"`
	} `json:"updates"`
}

func (b *bufferQueuer) Queue(ctx context.Context, post SocialPost) (Result, error) {
	form := url.Values{}
	text := post.Text
	if post.TargetURL != "" {
		text = fmt.Sprintf("%s ▶ %s", post.Text, post.TargetURL)
	}
	form.Set("text", text)
	if post.RemoteVideoURL != "" {
		form.Set("media[video]", post.RemoteVideoURL)
	}
	for _, id := range post.Profiles {
		form.Add("profile_ids[]", id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	q := req.URL.Query()
	q.Set("access_token", b.token)
	req.URL.RawQuery = q.Encode()

	resp, err := b.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("buffer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("buffer: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &QueueError{Status: resp.StatusCode, Body: trimBody(raw)}
	}

	var data bufferCreateResp
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return Result{}, fmt.Errorf("buffer: decode response: %w", err)
		}
	}
	id := data.UpdateID
	if id == "" && len(data.Updates) > 0 {
		id = data.Updates[0].ID
	}
	if id == "" {
		return Result{Sink: SinkBuffer, Mode: ModeLive, ID: fallbackIDPrefix + uuid.NewString()[:8], Fallback: true}, nil
	}
	return Result{Sink: SinkBuffer, Mode: ModeLive, ID: id}, nil
}
