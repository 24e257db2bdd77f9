package publisher

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrRenderNotImplemented is returned when a live avatar render is requested
// but no render backend is configured.
var ErrRenderNotImplemented = errors.New("live avatar rendering not available; configure avatar.base_url or use dry run")

// ErrSiteURLMissing is returned by a live page publish without a base URL.
var ErrSiteURLMissing = errors.New("SITE_URL must be set for real publish")

const bodyLimit = 200

// UploadError reports a rejected live video upload.
type UploadError struct {
	Op     string
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("youtube %s: http %d: %s", e.Op, e.Status, e.Body)
}

// RenderError reports a failed avatar intro render.
type RenderError struct {
	Reason string
	Status int
	Err    error
}

func (e *RenderError) Error() string {
	msg := "heygen: " + e.Reason
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RenderError) Unwrap() error { return e.Err }

// QueueError reports a rejected social post.
type QueueError struct {
	Status int
	Body   string
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("buffer API returned %d: %s", e.Status, e.Body)
}

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if utf8.RuneCountInString(s) <= bodyLimit {
		return s
	}
	return string([]rune(s)[:bodyLimit]) + "..."
}
