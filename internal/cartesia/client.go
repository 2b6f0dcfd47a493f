package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/maauso/infill-eval/internal/transcript"
)

// Static errors for Cartesia client operations.
var (
	// ErrAPIKeyNotSet is returned by every call when no API key was configured.
	ErrAPIKeyNotSet = errors.New("cartesia: CARTESIA_API_KEY is not set")
	// ErrInvalidBaseURL is returned when the base URL cannot be parsed.
	ErrInvalidBaseURL = errors.New("cartesia: invalid base URL")
	// ErrNoVoiceID is returned when a clone response carries no voice id.
	ErrNoVoiceID = errors.New("cartesia: clone returned no voice id")
	// ErrVoiceIDRequired is returned when an infill request has no voice id.
	ErrVoiceIDRequired = errors.New("cartesia: voice id is required")
	// ErrTranscriptRequired is returned when an infill request has no transcript.
	ErrTranscriptRequired = errors.New("cartesia: transcript is required")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("cartesia: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("cartesia: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("cartesia: request failed")
)

const (
	defaultBaseURL = "https://api.cartesia.ai"
	defaultVersion = "2025-04-16"
)

// HTTPClient talks to the Cartesia REST API. Calls are made one at a time and
// are never retried.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	version    string
	timeout    time.Duration
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = u
	}
}

// WithVersion sets the Cartesia-Version header.
func WithVersion(v string) ClientOption {
	return func(hc *HTTPClient) {
		hc.version = v
	}
}

// WithTimeout sets the overall timeout of each request. Zero keeps the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.timeout = d
	}
}

// NewClient creates a new Cartesia HTTP client.
// A missing API key is not an error here: the harness warns at startup and
// the first API call fails with ErrAPIKeyNotSet.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:    defaultBaseURL,
		version:    defaultVersion,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.version == "" {
		c.version = defaultVersion
	}
	if u, err := url.Parse(c.baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.baseURL)
	}

	return c, nil
}

// HasAPIKey reports whether an API key is configured.
func (c *HTTPClient) HasAPIKey() bool {
	return c.apiKey != ""
}

// Transcribe uploads an audio file to the speech-to-text endpoint and returns
// the word timestamps exactly as the service reported them, whitespace tokens
// included.
func (c *HTTPClient) Transcribe(ctx context.Context, audioPath string, opts transcript.TranscribeOptions) (transcript.Sequence, error) {
	if opts.Model == "" {
		opts.Model = "ink-whisper"
	}
	if opts.Granularity == "" {
		opts.Granularity = "word"
	}

	f, err := os.Open(audioPath) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("cartesia: open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	form := newForm()
	form.file("file", filepath.Base(audioPath), f)
	form.field("model", opts.Model)
	if opts.Language != "" {
		form.field("language", opts.Language)
	}
	form.field("timestamp_granularities[]", opts.Granularity)

	var resp sttResponse
	if err := c.postJSON(ctx, "/stt", form, &resp); err != nil {
		return nil, err
	}

	words := make(transcript.Sequence, 0, len(resp.Words))
	for _, w := range resp.Words {
		words = append(words, w.toWord())
	}
	return words, nil
}

// CloneVoice creates a voice from an audio sample and returns its id.
func (c *HTTPClient) CloneVoice(ctx context.Context, sample io.Reader, opts CloneOptions) (string, error) {
	if opts.Filename == "" {
		opts.Filename = "sample.wav"
	}

	form := newForm()
	form.file("clip", opts.Filename, sample)
	form.field("name", opts.Name)
	if opts.Description != "" {
		form.field("description", opts.Description)
	}
	if opts.Language != "" {
		form.field("language", opts.Language)
	}

	var resp cloneResponse
	if err := c.postJSON(ctx, "/voices/clone", form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", ErrNoVoiceID
	}
	return resp.ID, nil
}

// Infill synthesizes audio that bridges req.Left and req.Right while speaking
// req.Transcript. The caller must close the returned stream.
func (c *HTTPClient) Infill(ctx context.Context, req InfillRequest) (io.ReadCloser, error) {
	if req.VoiceID == "" {
		return nil, ErrVoiceIDRequired
	}
	if req.Transcript == "" {
		return nil, ErrTranscriptRequired
	}
	if req.ModelID == "" {
		req.ModelID = "sonic-2"
	}
	if req.Format == (OutputFormat{}) {
		req.Format = DefaultOutputFormat()
	}
	if req.ContextExt == "" {
		req.ContextExt = ".wav"
	}

	form := newForm()
	if req.Left != nil {
		form.file("left_audio", "left"+req.ContextExt, req.Left)
	}
	if req.Right != nil {
		form.file("right_audio", "right"+req.ContextExt, req.Right)
	}
	form.field("model_id", req.ModelID)
	if req.Language != "" {
		form.field("language", req.Language)
	}
	form.field("transcript", req.Transcript)
	form.field("voice_id", req.VoiceID)
	form.field("output_format[container]", req.Format.Container)
	if req.Format.Encoding != "" {
		form.field("output_format[encoding]", req.Format.Encoding)
	}
	if req.Format.SampleRate > 0 {
		form.field("output_format[sample_rate]", strconv.Itoa(req.Format.SampleRate))
	}
	if req.Format.BitRate > 0 {
		form.field("output_format[bit_rate]", strconv.Itoa(req.Format.BitRate))
	}

	resp, err := c.post(ctx, "/infill/bytes", form)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// postJSON posts form to path and decodes a JSON response into result.
func (c *HTTPClient) postJSON(ctx context.Context, path string, form *multipartForm, result interface{}) error {
	resp, err := c.post(ctx, path, form)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("cartesia: decode %s response: %w", path, err)
	}
	return nil
}

// post sends form and returns the response when the status is 2xx.
// On success the caller owns resp.Body.
func (c *HTTPClient) post(ctx context.Context, path string, form *multipartForm) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	body, contentType, err := form.close()
	if err != nil {
		return nil, fmt.Errorf("cartesia: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("cartesia: create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", c.version)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia: request %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		switch {
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))
		default:
			return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
		}
	}

	return resp, nil
}

// multipartForm buffers a multipart body and remembers the first write error.
type multipartForm struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *multipartForm {
	f := &multipartForm{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *multipartForm) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *multipartForm) file(name, filename string, r io.Reader) {
	if f.err != nil {
		return
	}
	part, err := f.w.CreateFormFile(name, filename)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = io.Copy(part, r)
}

func (f *multipartForm) close() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}
