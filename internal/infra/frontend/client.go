package frontend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/keydesk/internal/core/service"
)

// DefaultTimeout bounds one bridge call.
const DefaultTimeout = 10 * time.Second

// ErrDisabled is returned by Disabled for every delivery.
var ErrDisabled = errors.New("frontend: no bridge configured")

// Client provides HTTP communication with the frontend bridge.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	client    *http.Client
}

var (
	_ service.Courier        = (*Client)(nil)
	_ service.ChannelGateway = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token with every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTLSConfig sets the TLS configuration used for https bridges.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = cfg
		c.client.Transport = t
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a bridge client.
func New(server string, opts ...Option) *Client {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &Client{
		baseURL:   baseURL,
		userAgent: "keydesk",
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type deliverRequest struct {
	RecipientID string `json:"recipient_id"`
	DisplayName string `json:"display_name,omitempty"`
	Key         string `json:"key"`
}

// Deliver asks the bridge to send keyID to the recipient by direct message.
func (c *Client) Deliver(ctx context.Context, recipient service.Recipient, keyID string) error {
	resp, err := c.post(ctx, "/v1/deliver", deliverRequest{
		RecipientID: recipient.ID,
		DisplayName: recipient.DisplayName,
		Key:         keyID,
	})
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}

type activityResponse struct {
	ParticipantMessages bool `json:"participant_messages"`
}

// HasParticipantMessages asks the bridge whether a non-bot, non-admin
// member wrote in the channel since the given instant.
func (c *Client) HasParticipantMessages(ctx context.Context, channelID string, since time.Time) (bool, error) {
	path := channelPath(channelID, "activity") + "?since=" + strconv.FormatInt(since.UnixMilli(), 10)
	resp, err := c.get(ctx, path)
	if err != nil {
		return false, err
	}
	var out activityResponse
	if err := parseResponse(resp, &out); err != nil {
		return false, err
	}
	return out.ParticipantMessages, nil
}

type noticeRequest struct {
	Text string `json:"text"`
}

// PostNotice posts a system notice into the channel.
func (c *Client) PostNotice(ctx context.Context, channelID, text string) error {
	resp, err := c.post(ctx, channelPath(channelID, "notice"), noticeRequest{Text: text})
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}

// DeleteChannel removes the channel.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	resp, err := c.post(ctx, channelPath(channelID, "delete"), nil)
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}

func channelPath(channelID, action string) string {
	return "/v1/channels/" + url.PathEscape(channelID) + "/" + action
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("frontend: create request: %w", err)
	}

	c.addHeaders(req)
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("frontend: marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("frontend: create request: %w", err)
	}

	c.addHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("frontend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// addHeaders adds authentication and common headers.
func (c *Client) addHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", c.userAgent)
}

// StatusError is a non-2xx bridge response.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("frontend: status %d: [%s] %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("frontend: status %d", e.Status)
}

// parseResponse parses a JSON response body into the target struct.
func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		se := &StatusError{Status: resp.StatusCode}
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errResp); err == nil {
			se.Code, se.Message = errResp.Code, errResp.Message
		}
		return se
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("frontend: parse response: %w", err)
		}
	}
	return nil
}
