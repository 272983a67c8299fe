package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"marketlink/internal/domain/entity"
	"marketlink/internal/domain/repository"
	apperrors "marketlink/pkg/errors"
)

// Client implements repository.Backend against the marketplace REST API. All
// requests carry the bearer token supplied at construction and are bounded by
// the http.Client's timeout; timeouts are reported the same way as any other
// recoverable failure.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *errorInfo      `json:"error,omitempty"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type unreadTotalData struct {
	Count int `json:"count"`
}

type messagePageData struct {
	Items   []*entity.Message `json:"items"`
	HasMore bool              `json:"has_more"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

var _ repository.Backend = (*Client)(nil)

func (c *Client) ListThreads(ctx context.Context) ([]*entity.Thread, error) {
	var threads []*entity.Thread
	if err := c.do(ctx, http.MethodGet, "/v1/threads", nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

func (c *Client) UnreadTotal(ctx context.Context) (int, error) {
	var data unreadTotalData
	if err := c.do(ctx, http.MethodGet, "/v1/threads/unread-count", nil, &data); err != nil {
		return 0, err
	}
	return data.Count, nil
}

func (c *Client) ListMessages(ctx context.Context, threadID string, page, pageSize int) ([]*entity.Message, bool, error) {
	path := fmt.Sprintf("/v1/threads/%s/messages?page=%s&limit=%s",
		url.PathEscape(threadID), strconv.Itoa(page), strconv.Itoa(pageSize))

	var data messagePageData
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, false, err
	}
	return data.Items, data.HasMore, nil
}

func (c *Client) SendMessage(ctx context.Context, threadID, content string) (*entity.Message, error) {
	path := fmt.Sprintf("/v1/threads/%s/messages", url.PathEscape(threadID))

	var msg entity.Message
	if err := c.do(ctx, http.MethodPost, path, sendMessageRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) MarkThreadRead(ctx context.Context, threadID string) error {
	path := fmt.Sprintf("/v1/threads/%s/read", url.PathEscape(threadID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// do issues one request and decodes the response envelope into out. Failures
// map onto the AppError taxonomy so callers can branch on codes instead of
// transport details.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperrors.Internal("failed to encode request", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return apperrors.Internal("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return apperrors.Timeout("request timed out", err)
		}
		return apperrors.Unavailable("backend unreachable", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperrors.Internal("failed to decode response", err)
	}

	if !env.Success || resp.StatusCode >= 400 {
		code := "INTERNAL_ERROR"
		message := "request failed"
		if env.Error != nil {
			code = env.Error.Code
			message = env.Error.Message
		}
		return apperrors.New(code, message, resp.StatusCode, nil)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperrors.Internal("failed to decode response data", err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
