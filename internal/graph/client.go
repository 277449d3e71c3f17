package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tOgg1/pagechat/internal/logging"
	"github.com/tOgg1/pagechat/internal/models"
)

// DefaultBaseURL is the versioned Graph API root.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

const (
	conversationFields = "participants,messages{message,from,created_time}"
	messageFields      = "message,from,created_time"
	maxErrorBody       = 64 << 10
)

// Client errors.
var (
	ErrMissingPageID      = errors.New("graph: page id is required")
	ErrMissingAccessToken = errors.New("graph: access token is required")
	ErrMissingRecipient   = errors.New("graph: recipient id is required")
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	PageID      string
	AccessToken string
	Timeout     time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The configured timeout is not
// applied to a supplied client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client talks to the Graph API on behalf of one page.
type Client struct {
	baseURL string
	pageID  string
	token   string
	timeout time.Duration
	http    *http.Client
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewClient builds a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.PageID) == "" {
		return nil, ErrMissingPageID
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, ErrMissingAccessToken
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL: base,
		pageID:  cfg.PageID,
		token:   cfg.AccessToken,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		logger:  logging.Component("graph"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PageID returns the operator page ID.
func (c *Client) PageID() string {
	return c.pageID
}

// ListConversations lists the page's conversations with their latest
// messages embedded.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationNode, error) {
	q := url.Values{}
	q.Set("fields", conversationFields)
	body, err := c.get(ctx, "/"+url.PathEscape(c.pageID)+"/conversations", q)
	if err != nil {
		return nil, err
	}
	var env listEnvelope[ConversationNode]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return env.Data, nil
}

// ListMessages lists a conversation's messages. A positive limit caps the
// page size. Nodes carrying the reserved pending prefix are dropped.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]MessageNode, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, models.ErrInvalidConversationID
	}
	q := url.Values{}
	q.Set("fields", messageFields)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.get(ctx, "/"+url.PathEscape(conversationID)+"/messages", q)
	if err != nil {
		return nil, err
	}
	var env listEnvelope[MessageNode]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	nodes := env.Data[:0]
	for _, node := range env.Data {
		if models.IsPendingID(node.ID) {
			c.logger.Warn().Str("message_id", node.ID).Msg("dropping provider message with reserved id prefix")
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// SendMessage sends a text reply to a recipient PSID.
func (c *Client) SendMessage(ctx context.Context, recipientID, text string) (*SendResult, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, ErrMissingRecipient
	}
	payload, err := json.Marshal(sendRequest{
		MessagingType: "RESPONSE",
		Recipient:     sendRecipient{ID: recipientID},
		Message:       sendMessageBody{Text: text},
	})
	if err != nil {
		return nil, fmt.Errorf("encode send request: %w", err)
	}

	endpoint := c.baseURL + "/" + url.PathEscape(c.pageID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	result := &SendResult{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return nil, fmt.Errorf("decode send response: %w", err)
		}
	}
	c.logger.Debug().
		Str("recipient_id", recipientID).
		Str("message_id", result.MessageID).
		Msg("message sent")
	return result, nil
}

// get issues a GET, collapsing identical concurrent requests. The shared
// request outlives any single caller's cancellation and is bounded by the
// client timeout; each caller stops waiting when its own ctx is done.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	key := path + "?" + q.Encode()
	q.Set("access_token", c.token)
	endpoint := c.baseURL + path + "?" + q.Encode()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		return c.do(req)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("graph GET %s: %w", path, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Str("key", key).Msg("shared in-flight graph request")
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the full URL including the token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = logging.RedactURL(uerr.URL)
		}
		return nil, fmt.Errorf("graph %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", logging.RedactURL(req.URL.String())).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("graph request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read graph response: %w", err)
	}
	return body, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		apiErr.Code = env.Error.Code
	}
	return apiErr
}

// ProviderMessage extracts the provider's error message, or "" when err is
// not a Graph application error.
func ProviderMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
