// Package agentclient talks to the remote shopping agent over HTTP: chat
// turns, approval resumes, speech and browser screenshots.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bowerhall/roomchat/internal/chat"
)

var ErrNoBody = errors.New("agent response has no body")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent error (status %d): %s", e.Code, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartTurn posts the conversation and returns the event stream body. The
// caller must close it.
func (c *Client) StartTurn(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error) {
	return c.stream(ctx, "/api/chat", req)
}

// Resume answers a pending interrupt and returns the event stream body.
func (c *Client) Resume(ctx context.Context, req chat.ResumeRequest) (io.ReadCloser, error) {
	return c.stream(ctx, "/api/chat/resume", req)
}

func (c *Client) stream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	resp, err := c.postJSON(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Synthesize returns the agent's text-to-speech audio for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.postJSON(ctx, "/api/voice/tts", map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

// Transcribe uploads recorded audio and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/voice/transcribe", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	return out.Text, nil
}

// Screenshot fetches the latest frame of a browser worker ("a" or "b").
func (c *Client) Screenshot(ctx context.Context, worker string) (chat.Screenshot, error) {
	path := "/api/browser/screenshot"
	if worker != "" && worker != "a" {
		path += "-" + worker
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return chat.Screenshot{}, err
	}

	resp, err := c.do(req)
	if err != nil {
		return chat.Screenshot{}, err
	}
	defer resp.Body.Close()

	var shot chat.Screenshot
	if err := json.NewDecoder(resp.Body).Decode(&shot); err != nil {
		return chat.Screenshot{}, fmt.Errorf("decode screenshot: %w", err)
	}
	return shot, nil
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// do sends req and turns non-2xx and bodiless responses into errors.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	return resp, nil
}
