// Package httpclient wraps every outbound call to the Surely backend:
// header construction, bearer injection, timeout, status classification and
// bounded retry with linear backoff.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"surely-client/internal/nav"
	xerrors "surely-client/internal/pkg/errors"
	"surely-client/internal/pkg/sanitize"
	"surely-client/internal/routes"
	"surely-client/internal/tokenstore"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3
	backoffUnit    = time.Second
)

// Response is a successful (2xx) reply. Data is the decoded body: parsed
// JSON when the content type says JSON, a best-effort JSON parse otherwise,
// falling back to the raw text. Raw always holds the original bytes.
type Response struct {
	StatusCode int
	Data       any
	Raw        []byte
}

// DecodeJSON unmarshals the raw body into out.
func (r *Response) DecodeJSON(out any) error {
	if err := json.Unmarshal(r.Raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type Client struct {
	http      *http.Client
	baseURL   string
	tokens    *tokenstore.Store
	navigator nav.Navigator
	logger    *zap.Logger

	// Anti-forgery token, generated once per process.
	antiForgery string

	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(baseURL string, tokens *tokenstore.Store, navigator nav.Navigator, logger *zap.Logger) *Client {
	return &Client{
		http:        &http.Client{},
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokens:      tokens,
		navigator:   navigator,
		logger:      logger,
		antiForgery: ulid.Make().String(),
		timeout:     defaultTimeout,
		maxRetries:  defaultRetries,
		backoff:     backoffUnit,
		sleep:       sleepCtx,
	}
}

// SetTimeout overrides the per-request wall-clock timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SetRetryPolicy overrides the retry count and backoff unit.
func (c *Client) SetRetryPolicy(maxRetries int, backoff time.Duration) {
	c.maxRetries = maxRetries
	c.backoff = backoff
}

// Do performs one logical request. Transient failures (5xx, transport
// errors) are retried up to the retry budget with linear backoff before the
// final error is surfaced; expired sessions and timeouts are never retried.
func (c *Client) Do(ctx context.Context, method, path string, body any, includeAuth bool) (*Response, error) {
	payload, err := c.encodeBody(method, body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: attempt * unit.
			if err := c.sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
				return nil, xerrors.New(xerrors.KindNetwork, "request cancelled")
			}
			c.logger.Debug("retrying request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
			)
		}

		resp, err := c.doOnce(ctx, method, path, payload, includeAuth)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !xerrors.Retryable(err) {
			return nil, err
		}
	}

	c.logger.Warn("request failed after retries",
		zap.String("method", method),
		zap.String("path", path),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, includeAuth bool) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, xerrors.New(xerrors.KindRequest, fmt.Sprintf("invalid request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CSRF-Token", c.antiForgery)
	req.Header.Set("X-Request-ID", uuid.New().String())
	if includeAuth {
		if token, ok := c.tokens.Read(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err, reqCtx) {
			return nil, xerrors.New(xerrors.KindTimeout, "")
		}
		return nil, xerrors.New(xerrors.KindNetwork, "")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, xerrors.New(xerrors.KindNetwork, "")
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return &Response{
			StatusCode: res.StatusCode,
			Data:       decodeBody(res.Header.Get("Content-Type"), raw),
			Raw:        raw,
		}, nil
	}
	return nil, c.classify(ctx, res.StatusCode, raw)
}

// classify maps a non-2xx status onto the error taxonomy. A 401 on a
// protected route additionally tears the session down and replaces the
// navigation with the login page; on public routes it must not.
func (c *Client) classify(ctx context.Context, status int, raw []byte) error {
	msg := serverMessage(raw)

	switch {
	case status == http.StatusUnauthorized:
		if routes.IsProtected(c.navigator.Path()) {
			c.tokens.Clear(ctx)
			c.navigator.Replace(routes.Login)
		}
		return xerrors.WithStatus(xerrors.KindSessionExpired, msg, status)
	case status == http.StatusForbidden:
		return xerrors.WithStatus(xerrors.KindForbidden, msg, status)
	case status == http.StatusNotFound:
		return xerrors.WithStatus(xerrors.KindNotFound, msg, status)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return xerrors.WithStatus(xerrors.KindValidation, msg, status)
	case status >= 500:
		return xerrors.WithStatus(xerrors.KindServer, msg, status)
	default:
		return xerrors.WithStatus(xerrors.KindRequest, msg, status)
	}
}

func (c *Client) encodeBody(method string, body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		payload, err := sanitize.JSONBody(body)
		if err != nil {
			return nil, xerrors.New(xerrors.KindRequest, err.Error())
		}
		return payload, nil
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, xerrors.New(xerrors.KindRequest, err.Error())
		}
		return payload, nil
	}
}

func decodeBody(contentType string, raw []byte) any {
	var data any
	if strings.Contains(contentType, "application/json") {
		if err := json.Unmarshal(raw, &data); err == nil {
			return data
		}
		return string(raw)
	}
	// Best-effort parse: some endpoints return JSON with a text content type.
	if err := json.Unmarshal(raw, &data); err == nil {
		return data
	}
	return string(raw)
}

// serverMessage extracts a display message from an error body.
func serverMessage(raw []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}

func isTimeout(err error, ctx context.Context) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
