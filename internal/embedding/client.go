package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/touch-guard/internal/camera"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	imageEndpoint       = "/embed/image"
	requestTimeout      = 30 * time.Second
	maxErrorBody        = 4 << 10
)

// Client asks an embedding server for the feature vector of each frame.
type Client struct {
	endpoint string
	dim      int
	http     *http.Client
}

// NewClient creates a client for the embedding server at baseURL.
// A positive dim makes Infer reject vectors of any other length.
func NewClient(baseURL string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		endpoint: strings.TrimSuffix(baseURL, "/") + imageEndpoint,
		dim:      dim,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding server: status %d: %s", e.Code, e.Body)
}

type embedResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Infer uploads the frame as the multipart "file" field and returns the vector.
func (c *Client) Infer(ctx context.Context, frame camera.Frame) ([]float32, error) {
	body, contentType, err := frameForm(frame.Data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	switch {
	case len(out.Embedding) == 0:
		return nil, errors.New("empty embedding returned")
	case c.dim > 0 && len(out.Embedding) != c.dim:
		return nil, fmt.Errorf("embedding server returned %d dimensions, expected %d", len(out.Embedding), c.dim)
	}
	return out.Embedding, nil
}

// frameForm encodes data as a single-file multipart body.
func frameForm(data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame"`)
	h.Set("Content-Type", detectMIMEType(data))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write frame: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// detectMIMEType sniffs the image format. Anything that is not an image is
// sent as an opaque octet stream.
func detectMIMEType(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "application/octet-stream"
}
