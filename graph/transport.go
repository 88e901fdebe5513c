package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JA50N14/course_reports/config"
	"github.com/JA50N14/course_reports/internal/auth"
)

type GraphListResponse[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

const (
	graphBaseURL       = "https://graph.microsoft.com/v1.0"
	refreshTokenWindow = time.Minute * 5
	maxRetries         = 5
)

// TokenSource hands out Graph access tokens.
type TokenSource func(ctx context.Context) (auth.AccessTokenResponse, error)

// Client talks to one SharePoint drive. It is safe for concurrent use.
type Client struct {
	cfg     config.GraphConfig
	http    *http.Client
	logger  *slog.Logger
	baseURL string
	source  TokenSource

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg *config.ApiConfig) *Client {
	creds := auth.Credentials{
		TenantID:        cfg.Graph.TenantID,
		ClientID:        cfg.Graph.ClientID,
		PrivateKeyPath:  cfg.Graph.PrivateKeyPath,
		CertificatePath: cfg.Graph.CertificatePath,
	}
	source := func(ctx context.Context) (auth.AccessTokenResponse, error) {
		return auth.GetGraphAccessToken(ctx, cfg.Client, creds)
	}
	return newClient(cfg.Graph, cfg.Client, cfg.Logger, graphBaseURL, source)
}

func newClient(g config.GraphConfig, hc *http.Client, logger *slog.Logger, baseURL string, source TokenSource) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: g, http: hc, logger: logger, baseURL: baseURL, source: source, sleep: sleepCtx}
}

// accessToken returns a token valid for at least refreshTokenWindow.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expiresAt) > refreshTokenWindow {
		return c.token, nil
	}
	tokenResp, err := c.source(ctx)
	if err != nil {
		return "", err
	}
	c.token = tokenResp.AccessToken
	c.expiresAt = time.Now().UTC().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context error: %w", ctx.Err())
	}
}

func do[T any](ctx context.Context, c *Client, buildReq func(ctx context.Context) (*http.Request, error)) (T, error) {
	var zero T

	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := buildReq(ctx)
		if err != nil {
			return zero, fmt.Errorf("build request: %w", err)
		}

		result, retryable, wait, err := doOnce[T](req, c)
		if err == nil {
			return result, nil
		}

		if !retryable {
			return zero, err
		}

		//exponential backoff if server does not provide Retry-After
		if wait == 0 {
			wait = backoff(attempt + 1)
		}
		c.logger.Warn("graph request failed, retrying", "url", req.URL.String(), "attempt", attempt+1, "wait", wait, "err", err)

		if err := c.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("max retries exceeded")
}

func doOnce[T any](req *http.Request, c *Client) (T, bool, time.Duration, error) {
	var zero T
	var retryAfter time.Duration

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, true, retryAfter, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return zero, true, retryAfter, fmt.Errorf("graph api error: status=%d", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return zero, false, retryAfter, fmt.Errorf("graph api error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return zero, false, retryAfter, fmt.Errorf("decode response: %w", err)
	}

	return result, false, retryAfter, nil
}

// listAll follows @odata.nextLink until the listing is exhausted.
func listAll[T any](ctx context.Context, c *Client, buildReq func(ctx context.Context) (*http.Request, error)) ([]T, error) {
	var all []T

	for {
		page, err := do[GraphListResponse[T]](ctx, c, buildReq)
		if err != nil {
			return nil, fmt.Errorf("sending request: %w", err)
		}
		all = append(all, page.Value...)

		if page.NextLink == "" {
			return all, nil
		}

		nextLink := page.NextLink
		buildReq = func(ctx context.Context) (*http.Request, error) {
			return c.newRequest(ctx, http.MethodGet, nextLink, nil)
		}
	}
}

func backoff(attempt int) time.Duration {
	base := time.Second
	max := 30 * time.Second

	d := time.Duration(1<<attempt) * base
	if d > max {
		d = max
	}

	jitter := time.Duration(rand.Int63n(int64(d / 2)))

	return d/2 + jitter
}
