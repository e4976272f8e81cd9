package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
)

const (
	removePath = "/api/remove"
	// maxResultSize caps the response body read from the engine.
	maxResultSize = 64 << 20
)

// HTTPClient calls a rembg-compatible HTTP service. The image is POSTed as
// multipart field "file" and the response body is the PNG subject.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Gateway = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the engine at baseURL.
// If client is nil a client with a 60 second timeout is used.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (c *HTTPClient) RemoveBackground(ctx context.Context, img []byte) (Result, error) {
	if len(img) == 0 {
		return Result{}, fmt.Errorf("%w: empty input", ErrSegmentation)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "upload")
	if err != nil {
		return Result{}, failure(err)
	}
	if _, err := part.Write(img); err != nil {
		return Result{}, failure(err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, failure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+removePath, &body)
	if err != nil {
		return Result{}, failure(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "image/png")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, failure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: engine returned status %d", ErrSegmentation, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultSize+1))
	if err != nil {
		return Result{}, failure(err)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: empty response", ErrSegmentation)
	}
	if len(data) > maxResultSize {
		return Result{}, fmt.Errorf("%w: response exceeds %d bytes", ErrSegmentation, maxResultSize)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: undecodable result: %w", ErrSegmentation, err)
	}
	if in, _, err := image.DecodeConfig(bytes.NewReader(img)); err == nil &&
		(in.Width != cfg.Width || in.Height != cfg.Height) {
		return Result{}, fmt.Errorf("%w: result is %dx%d, input is %dx%d",
			ErrSegmentation, cfg.Width, cfg.Height, in.Width, in.Height)
	}
	return Result{Foreground: data, Width: cfg.Width, Height: cfg.Height}, nil
}
