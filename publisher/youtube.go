package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"loom_autopublisher/generator"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// simulatedWatchPrefix marks watch URLs produced without an upload.
const simulatedWatchPrefix = "https://youtube.com/watch?v=dry-"

// VideoUpload describes the video to publish. Video wins over VideoPath;
// the same holds for the thumbnail fields.
type VideoUpload struct {
	Video         []byte
	VideoPath     string
	Title         string
	Description   string
	Thumbnail     []byte
	ThumbnailPath string
}

// VideoHost uploads a video and returns its watch URL.
type VideoHost interface {
	Upload(ctx context.Context, v VideoUpload) (Result, error)
}

// UploadVideo uploads v to YouTube, or returns a placeholder watch URL when
// simulated.
func (p *Publisher) UploadVideo(ctx context.Context, v VideoUpload, dryRun bool) (Result, error) {
	if strings.TrimSpace(v.Title) == "" {
		return Result{}, fmt.Errorf("youtube upload: title required: %w", generator.ErrInvalidInput)
	}
	d := p.decide(SinkYouTube, YouTubeTokenKey, dryRun)
	res, err := p.videoHost(d).Upload(ctx, v)
	p.record(ctx, SinkYouTube, d.Mode, err)
	return res, err
}

func (p *Publisher) videoHost(d Decision) VideoHost {
	if !d.Live() {
		return simulatedVideoHost{}
	}
	return &youtubeHost{
		client:       p.client,
		token:        d.Token,
		uploadURL:    p.cfg.YouTubeUploadURL,
		thumbnailURL: p.cfg.YouTubeThumbnailURL,
		privacy:      p.cfg.YouTubePrivacy,
	}
}

type simulatedVideoHost struct{}

func (simulatedVideoHost) Upload(_ context.Context, _ VideoUpload) (Result, error) {
	id := "dry-" + randomID(7)
	return Result{Sink: SinkYouTube, Mode: ModeSimulated, ID: id, URL: "https://youtube.com/watch?v=" + id}, nil
}

type youtubeHost struct {
	client       *http.Client
	token        string
	uploadURL    string
	thumbnailURL string
	privacy      string
}

type videoResource struct {
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

type videoInsertResp struct {
	ID string `json:"id"`
}

func (h *youtubeHost) Upload(ctx context.Context, v VideoUpload) (Result, error) {
	video, err := mediaBytes(v.Video, v.VideoPath)
	if err != nil {
		return Result{}, fmt.Errorf("youtube upload: read video: %w", err)
	}
	if len(video) == 0 {
		return Result{}, fmt.Errorf("youtube upload: video required: %w", generator.ErrInvalidInput)
	}

	id, err := h.insertVideo(ctx, v, video)
	if err != nil {
		return Result{}, err
	}

	thumb, err := mediaBytes(v.Thumbnail, v.ThumbnailPath)
	if err != nil {
		return Result{}, fmt.Errorf("youtube thumbnail: read: %w", err)
	}
	if len(thumb) > 0 {
		if err := h.setThumbnail(ctx, id, thumb); err != nil {
			return Result{}, err
		}
	}
	return Result{Sink: SinkYouTube, Mode: ModeLive, ID: id, URL: watchURLPrefix + id}, nil
}

// insertVideo sends metadata and media in one multipart/related request.
func (h *youtubeHost) insertVideo(ctx context.Context, v VideoUpload, video []byte) (string, error) {
	var meta videoResource
	meta.Snippet.Title = v.Title
	meta.Snippet.Description = v.Description
	meta.Status.PrivacyStatus = h.privacy
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	metaPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return "", err
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return "", err
	}
	videoPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"video/mp4"}})
	if err != nil {
		return "", err
	}
	if _, err := videoPart.Write(video); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.uploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
	q := req.URL.Query()
	q.Set("uploadType", "multipart")
	q.Set("part", "snippet,status")
	req.URL.RawQuery = q.Encode()

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("youtube upload: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UploadError{Op: "upload", Status: resp.StatusCode, Body: trimBody(raw)}
	}
	var data videoInsertResp
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("youtube upload: decode response: %w", err)
	}
	if data.ID == "" {
		return "", &UploadError{Op: "upload", Status: resp.StatusCode, Body: "response missing video id"}
	}
	return data.ID, nil
}

func (h *youtubeHost) setThumbnail(ctx context.Context, videoID string, thumb []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.thumbnailURL, bytes.NewReader(thumb))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", http.DetectContentType(thumb))
	req.URL.RawQuery = url.Values{"videoId": {videoID}}.Encode()

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("youtube thumbnail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &UploadError{Op: "thumbnail", Status: resp.StatusCode, Body: trimBody(raw)}
	}
	return nil
}

// IsSimulatedWatchURL reports whether u was produced by a simulated upload.
func IsSimulatedWatchURL(u string) bool {
	return strings.HasPrefix(u, simulatedWatchPrefix)
}

func mediaBytes(data []byte, path string) ([]byte, error) {
	if len(data) > 0 || path == "" {
		return data, nil
	}
	return os.ReadFile(path)
}
