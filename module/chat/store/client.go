package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ChatSync/logger"
	"ChatSync/module/chat/model"
	"ChatSync/tools/errs"
	"ChatSync/tools/ids"

	"go.uber.org/zap"
)

const (
	defaultHttpTimeout        = 15 * time.Second
	defaultHttpConnectTimeout = 5 * time.Second
	defaultHttpTlsTimeout     = 5 * time.Second

	// cap on how much of an error body ends up in the error detail
	maxErrorBody = 512
)

func defaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHttpTimeout
	}
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Client talks to the Message Store API. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client, mostly for tests.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.http = defaultClient(d) } }

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimPrefix(token, "Bearer "),
		http:    defaultClient(0),
		log:     logger.Named("store"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListMessages reads one page of a channel, newest first, exactly as the server returns it.
func (c *Client) ListMessages(ctx context.Context, channelID string, page, limit int) (*model.Page, error) {
	if channelID == "" || page < 1 || limit < 1 {
		return nil, errs.ErrArgs.WrapMsg("list messages", "channel", channelID, "page", page, "limit", limit)
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/channels/%s/messages?%s", url.PathEscape(channelID), q.Encode())

	out := &model.Page{}
	if err := c.do(ctx, http.MethodGet, path, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateMessage(ctx context.Context, draft model.Draft) (*model.Message, error) {
	if draft.UUID == "" || draft.ChannelID == "" {
		return nil, errs.ErrArgs.WrapMsg("create message", "uuid", draft.UUID, "channel", draft.ChannelID)
	}
	out := &model.Message{}
	if err := c.do(ctx, http.MethodPost, "/messages", draft, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateMessage(ctx context.Context, uuid string, patch model.Patch) (*model.Message, error) {
	if uuid == "" {
		return nil, errs.ErrArgs.WrapMsg("update message", "uuid", uuid)
	}
	out := &model.Message{}
	if err := c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(uuid), patch, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, uuid string) error {
	if uuid == "" {
		return errs.ErrArgs.WrapMsg("delete message", "uuid", uuid)
	}
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(uuid), nil, nil)
}

// do sends args as JSON and decodes the response into result when result is non-nil.
func (c *Client) do(ctx context.Context, method, path string, args any, result any) error {
	var body io.Reader
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return errs.ErrArgs.WrapMsg("encode request", "err", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errs.ErrArgs.WrapMsg("build request", "err", err)
	}
	reqID := ids.GenerateString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if args != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	r, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("req_id", reqID), zap.String("method", method), zap.String("path", path), zap.Error(err))
		return errs.ErrNetwork.WrapMsg(method+" "+path, "err", err)
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	c.log.Debug("request done",
		zap.String("req_id", reqID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", r.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if r.StatusCode < 200 || r.StatusCode > 299 {
		// the response body is the error message
		msg := strings.TrimSpace(string(responseBodyBytes))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return errs.ErrStatus.WrapMsg(method+" "+path, "status", r.StatusCode, "body", msg)
	}
	if err != nil {
		return errs.ErrNetwork.WrapMsg(method+" "+path, "err", err)
	}
	if result == nil || r.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(responseBodyBytes, result); err != nil {
		return errs.ErrDecode.WrapMsg(method+" "+path, "err", err)
	}
	return nil
}
