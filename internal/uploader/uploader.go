package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"chatnest/internal/protocol"
)

// SavePhotoPath is the relay endpoint photos are posted to.
const SavePhotoPath = "/api/save_photo"

var httpTimeout = 60 * time.Second

// Client posts encoded photos to the relay and returns an absolute photo URL.
type Client struct {
	base string
	http *http.Client
}

// New derives the HTTP base from the websocket URL the chat connects to.
func New(wsURL string) (*Client, error) {
	base, err := HTTPBaseFromJoinURL(wsURL)
	if err != nil {
		return nil, err
	}
	return &Client{base: base, http: &http.Client{Timeout: httpTimeout}}, nil
}

func (c *Client) Base() string {
	return c.base
}

func (c *Client) Upload(ctx context.Context, photo string) (string, error) {
	var resp protocol.SavePhotoResponse
	if err := c.doJSONRequest(ctx, http.MethodPost, c.base+SavePhotoPath, protocol.SavePhotoRequest{Photo: photo}, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		if resp.Error != "" {
			return "", errors.New(resp.Error)
		}
		return "", errors.New("Failed to upload photo")
	}
	if resp.PhotoURL == "" {
		return "", errors.New("Failed to upload photo")
	}
	return c.resolve(resp.PhotoURL), nil
}

// resolve turns a relay-relative photo path into a link peers can open.
func (c *Client) resolve(ref string) string {
	if strings.HasPrefix(ref, "/") {
		return c.base + ref
	}
	return ref
}

func (c *Client) doJSONRequest(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(readResponseError(resp.StatusCode, data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func readResponseError(status int, data []byte) string {
	var parsed protocol.SavePhotoResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return fmt.Sprintf("server returned %d", status)
}

// HTTPBaseFromJoinURL maps ws://host/ws to http://host.
func HTTPBaseFromJoinURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
