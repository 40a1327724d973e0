// Package vision talks to an object-detection server (a YOLO inference
// endpoint) so that a photo of a real object can become a spelling lesson.
//
// The server accepts a multipart POST with the image in the "file" field and
// answers with detections in one of three shapes: a bare array, an object
// with a "detections" array, or an object with a "predictions" array. Each
// detection carries its label as "label", "class" or "name" and its score as
// "confidence" or "score". Detect normalises all of them.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultCheckTimeout = 2 * time.Second

	// MaxDetections caps the number of labels Detect returns.
	MaxDetections = 5
)

// ErrNoDetections is returned by Detect when the server found nothing usable.
var ErrNoDetections = errors.New("vision: no detections")

// Detection is one recognised object.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Option configures a Detector.
type Option func(*Detector)

// WithTimeout sets the timeout for detection requests. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(det *Detector) {
		if c != nil {
			det.client = c
		}
	}
}

// Detector sends images to a detection endpoint. It is safe for concurrent
// use.
type Detector struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// New returns a Detector for the given endpoint URL
// (e.g. "http://localhost:8501/infer/image/objv1").
func New(endpoint string, opts ...Option) (*Detector, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("vision: endpoint must not be empty")
	}
	d := &Detector{
		endpoint: endpoint,
		timeout:  defaultTimeout,
		client:   &http.Client{},
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Endpoint returns the configured endpoint URL.
func (d *Detector) Endpoint() string { return d.endpoint }

// Available reports whether the detection server answers. A 405 response to
// the HEAD probe still means the server is up.
func (d *Detector) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		slog.Debug("vision: endpoint unreachable", "endpoint", d.endpoint, "err", err)
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 300 || resp.StatusCode == http.StatusMethodNotAllowed
}

// Detect uploads image and returns up to MaxDetections distinct labels,
// highest confidence first. filename defaults to "image.jpg".
func (d *Detector) Detect(ctx context.Context, image io.Reader, filename string) ([]Detection, error) {
	if filename == "" {
		filename = "image.jpg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("vision: create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("vision: read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("vision: close multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("vision: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: POST %s: %w", d.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision: POST %s returned status %d", d.endpoint, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vision: read response: %w", err)
	}
	dets, err := parseDetections(raw)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, ErrNoDetections
	}
	return dets, nil
}

// rawDetection accepts every field spelling the known servers use.
type rawDetection struct {
	Label      string   `json:"label"`
	Class      string   `json:"class"`
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence"`
	Score      *float64 `json:"score"`
}

func (r rawDetection) normalise() Detection {
	label := r.Label
	if label == "" {
		label = r.Class
	}
	if label == "" {
		label = r.Name
	}
	var conf float64
	switch {
	case r.Confidence != nil:
		conf = *r.Confidence
	case r.Score != nil:
		conf = *r.Score
	}
	return Detection{Label: strings.ToLower(strings.TrimSpace(label)), Confidence: conf}
}

// parseDetections decodes any of the supported response shapes, sorts by
// confidence, drops unlabeled and duplicate entries and keeps the top
// MaxDetections.
func parseDetections(raw []byte) ([]Detection, error) {
	raw = bytes.TrimSpace(raw)
	var items []rawDetection
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("vision: decode detections: %w", err)
		}
	} else {
		var wrapped struct {
			Detections  []rawDetection `json:"detections"`
			Predictions []rawDetection `json:"predictions"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("vision: decode detections: %w", err)
		}
		items = wrapped.Detections
		if items == nil {
			items = wrapped.Predictions
		}
	}

	dets := make([]Detection, 0, len(items))
	for _, it := range items {
		if d := it.normalise(); d.Label != "" {
			dets = append(dets, d)
		}
	}
	slices.SortStableFunc(dets, func(a, b Detection) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	seen := make(map[string]bool, len(dets))
	out := dets[:0]
	for _, d := range dets {
		if seen[d.Label] {
			continue
		}
		seen[d.Label] = true
		out = append(out, d)
		if len(out) == MaxDetections {
			break
		}
	}
	return out, nil
}

// Narration returns the sentence spoken after a successful detection,
// offering to spell the most confident label.
func Narration(dets []Detection, lang string) string {
	if len(dets) == 0 {
		return NoDetectionMessage(lang)
	}
	first := dets[0].Label
	second := ""
	if len(dets) > 1 {
		second = dets[1].Label
	}
	n := len(dets)
	if strings.HasPrefix(strings.ToLower(lang), "fr") {
		plural := ""
		if n > 1 {
			plural = "s"
		}
		seen := first
		if second != "" {
			seen += " et " + second
		}
		return fmt.Sprintf("Super ! Je vois %d chose%s ! J'aperçois %s ! Tu veux apprendre à écrire %s ?", n, plural, seen, first)
	}
	plural := ""
	if n > 1 {
		plural = "s"
	}
	seen := "a " + first
	if second != "" {
		seen += " and a " + second
	}
	return fmt.Sprintf("Wow! I can see %d thing%s! I spy %s! Do you want to learn how to spell %s?", n, plural, seen, first)
}

// NoDetectionMessage is spoken when nothing could be recognised.
func NoDetectionMessage(lang string) string {
	if strings.HasPrefix(strings.ToLower(lang), "fr") {
		return "Hmm, je ne vois pas bien. Essaie de te rapprocher ou d'utiliser une image plus lumineuse !"
	}
	return "Hmm, I couldn't quite see that. Try moving closer or using a brighter picture!"
}
