package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"loom_autopublisher/generator"
)

const (
	// IntroScriptLimit is the longest script accepted for an intro.
	IntroScriptLimit = 300
	// SimulatedIntroSize is the length of the placeholder intro payload.
	SimulatedIntroSize = 256
	simulatedIntroSeed = 42
)

// IntroRequest describes a short avatar intro. Empty Voice and ModelID fall
// back to the configured defaults.
type IntroRequest struct {
	Script  string
	Voice   string
	ModelID string
}

// Intro is a rendered avatar video.
type Intro struct {
	Mode  Mode   `json:"mode"`
	Video []byte `json:"-"`
}

// AvatarRenderer renders an intro video from a script.
type AvatarRenderer interface {
	Render(ctx context.Context, req IntroRequest) (Intro, error)
}

// RenderIntro renders an avatar intro, or returns a deterministic placeholder
// payload when simulated.
func (p *Publisher) RenderIntro(ctx context.Context, req IntroRequest, dryRun bool) (Intro, error) {
	script := strings.TrimSpace(req.Script)
	if script == "" {
		return Intro{}, fmt.Errorf("heygen: script required: %w", generator.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(script); n > IntroScriptLimit {
		return Intro{}, fmt.Errorf("heygen: script is %d chars, limit %d: %w", n, IntroScriptLimit, generator.ErrInvalidInput)
	}
	req.Script = script
	if req.Voice == "" {
		req.Voice = p.cfg.AvatarVoice
	}
	if req.ModelID == "" {
		req.ModelID = p.cfg.AvatarModelID
	}

	d := p.decide(SinkHeyGen, HeyGenTokenKey, dryRun)
	intro, err := p.avatarRenderer(d).Render(ctx, req)
	p.record(ctx, SinkHeyGen, d.Mode, err)
	return intro, err
}

func (p *Publisher) avatarRenderer(d Decision) AvatarRenderer {
	if !d.Live() {
		return simulatedRenderer{}
	}
	return &heygenRenderer{
		client:       p.client,
		token:        d.Token,
		baseURL:      strings.TrimRight(p.cfg.AvatarBaseURL, "/"),
		pollInterval: p.cfg.AvatarPollInterval,
		timeout:      p.cfg.AvatarTimeout,
	}
}

type simulatedRenderer struct{}

func (simulatedRenderer) Render(_ context.Context, _ IntroRequest) (Intro, error) {
	return Intro{Mode: ModeSimulated, Video: SimulatedIntroBytes()}, nil
}

// SimulatedIntroBytes returns the placeholder intro payload. The generator
// is reseeded on every call so the output is byte-identical across calls.
func SimulatedIntroBytes() []byte {
	rnd := rand.New(rand.NewPCG(simulatedIntroSeed, simulatedIntroSeed))
	out := make([]byte, SimulatedIntroSize)
	for i := range out {
		out[i] = byte(rnd.IntN(256))
	}
	return out
}

type heygenRenderer struct {
	client       *http.Client
	token        string
	baseURL      string
	pollInterval time.Duration
	timeout      time.Duration
}

type heygenGenerateReq struct {
	VideoInputs []heygenVideoInput `json:"video_inputs"`
	Dimension   heygenDimension    `json:"dimension"`
}

type heygenVideoInput struct {
	Character heygenCharacter `json:"character"`
	Voice     heygenVoice     `json:"voice"`
}

type heygenCharacter struct {
	Type        string `json:"type"`
	AvatarID    string `json:"avatar_id,omitempty"`
	AvatarStyle string `json:"avatar_style"`
}

type heygenVoice struct {
	Type      string `json:"type"`
	InputText string `json:"input_text"`
	VoiceID   string `json:"voice_id"`
}

type heygenDimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type heygenError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

type heygenGenerateResp struct {
	Error *heygenError `json:"error"`
	Data  struct {
		VideoID string `json:"video_id"`
	} `json:"data"`
}

type heygenStatusResp struct {
	Data struct {
		Status   string       `json:"status"`
		VideoURL string       `json:"video_url"`
		Error    *heygenError `json:"error"`
	} `json:"data"`
}

func (h *heygenRenderer) Render(ctx context.Context, req IntroRequest) (Intro, error) {
	if h.baseURL == "" {
		return Intro{}, &RenderError{Reason: "live render requested", Err: ErrRenderNotImplemented}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	videoID, err := h.submit(ctx, req)
	if err != nil {
		return Intro{}, err
	}
	videoURL, err := h.poll(ctx, videoID)
	if err != nil {
		return Intro{}, err
	}
	data, err := h.download(ctx, videoURL)
	if err != nil {
		return Intro{}, err
	}
	return Intro{Mode: ModeLive, Video: data}, nil
}

func (h *heygenRenderer) submit(ctx context.Context, req IntroRequest) (string, error) {
	payload := heygenGenerateReq{
		VideoInputs: []heygenVideoInput{{
			Character: heygenCharacter{Type: "avatar", AvatarID: req.ModelID, AvatarStyle: "normal"},
			Voice:     heygenVoice{Type: "text", InputText: req.Script, VoiceID: req.Voice},
		}},
		Dimension: heygenDimension{Width: 1280, Height: 720},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v2/video/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var data heygenGenerateResp
	if err := h.doJSON(httpReq, "submit", &data); err != nil {
		return "", err
	}
	if data.Error != nil && data.Error.Message != "" {
		return "", &RenderError{Reason: "submit rejected: " + data.Error.Message}
	}
	if data.Data.VideoID == "" {
		return "", &RenderError{Reason: "submit response missing video_id"}
	}
	return data.Data.VideoID, nil
}

// poll checks the job status every pollInterval until it finishes, fails or
// ctx expires.
func (h *heygenRenderer) poll(ctx context.Context, videoID string) (string, error) {
	statusURL := h.baseURL + "/v1/video_status.get?" + url.Values{"video_id": {videoID}}.Encode()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", &RenderError{Reason: fmt.Sprintf("video %s not ready after %s", videoID, h.timeout), Err: ctx.Err()}
			}
			return "", ctx.Err()
		case <-timer.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return "", err
		}
		var data heygenStatusResp
		if err := h.doJSON(req, "status", &data); err != nil {
			if ctx.Err() != nil {
				continue
			}
			return "", err
		}
		switch data.Data.Status {
		case "completed":
			if data.Data.VideoURL == "" {
				return "", &RenderError{Reason: "completed video has no url"}
			}
			return data.Data.VideoURL, nil
		case "failed":
			reason := "render failed"
			if data.Data.Error != nil && data.Data.Error.Message != "" {
				reason += ": " + data.Data.Error.Message
			}
			return "", &RenderError{Reason: reason}
		}
		timer.Reset(h.pollInterval)
	}
}

func (h *heygenRenderer) download(ctx context.Context, videoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &RenderError{Reason: "download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RenderError{Reason: "download", Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RenderError{Reason: "download", Err: err}
	}
	return data, nil
}

func (h *heygenRenderer) doJSON(req *http.Request, op string, out any) error {
	req.Header.Set("X-Api-Key", h.token)
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return &RenderError{Reason: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RenderError{Reason: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RenderError{Reason: op + ": " + trimBody(raw), Status: resp.StatusCode}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RenderError{Reason: op + ": decode response", Err: err}
	}
	return nil
}
