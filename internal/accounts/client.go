// Package accounts talks to the remote account service (credential verification) and
// roster service (pairings of scheduled games) over HTTP.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-match/internal/domain"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("accounts api error: status=%d body=%s", e.Status, e.Body)
}

type verifyRequest struct {
	Credential string `json:"credential"`
}

type verifyResponse struct {
	PlayerID string `json:"player_id"`
}

// Authenticate asks the account service who owns credential.
func (c *Client) Authenticate(ctx context.Context, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", domain.Errf(domain.KindAuth, "credential missing")
	}
	var resp verifyResponse
	err := c.doJSON(ctx, fasthttp.MethodPost, "/sessions/verify", verifyRequest{Credential: credential}, &resp, true)
	var se *StatusError
	switch {
	case errors.As(err, &se) && (se.Status == fasthttp.StatusUnauthorized || se.Status == fasthttp.StatusForbidden):
		return "", domain.Errf(domain.KindAuth, "invalid credential")
	case err != nil:
		return "", fmt.Errorf("verify credential: %w", err)
	case resp.PlayerID == "":
		return "", domain.Errf(domain.KindAuth, "invalid credential")
	}
	return resp.PlayerID, nil
}

type pairingResponse struct {
	GameID      string `json:"game_id"`
	WhiteID     string `json:"white_id"`
	BlackID     string `json:"black_id"`
	TimeControl string `json:"time_control"`
}

// Pairing fetches the seed of gameID. A 404 reports found=false.
func (c *Client) Pairing(ctx context.Context, gameID string) (domain.Pairing, bool, error) {
	var resp pairingResponse
	err := c.doJSON(ctx, fasthttp.MethodGet, "/games/"+url.PathEscape(gameID)+"/pairing", nil, &resp, true)
	var se *StatusError
	if errors.As(err, &se) && se.Status == fasthttp.StatusNotFound {
		return domain.Pairing{}, false, nil
	}
	if err != nil {
		return domain.Pairing{}, false, fmt.Errorf("fetch pairing %s: %w", gameID, err)
	}
	var tc domain.TimeControl
	if strings.TrimSpace(resp.TimeControl) != "" {
		if tc, err = domain.ParseTimeControl(resp.TimeControl); err != nil {
			return domain.Pairing{}, false, fmt.Errorf("pairing %s: %w", gameID, err)
		}
	}
	return domain.Pairing{GameID: gameID, WhiteID: resp.WhiteID, BlackID: resp.BlackID, TimeControl: tc}, true, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 0 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = &StatusError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			if out != nil {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
