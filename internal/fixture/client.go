// Package fixture creates and removes backend resources through the REST
// API so UI scenarios start from known state and leave none behind.
package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.linode.com/v4"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second.
	DefaultRateLimit = 10

	// DefaultSettleDelay is how long a volume delete waits after the last
	// Linode delete. The bound is empirical.
	DefaultSettleDelay = 20 * time.Second

	// DefaultVolumeRetries is how many extra attempts a volume delete gets.
	DefaultVolumeRetries = 3

	// DefaultStatusPoll is the interval for WaitForLinodeStatus.
	DefaultStatusPoll = 5 * time.Second

	pageSize = 100
)

// Client talks to the API on behalf of one credential.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
	validate    *validator.Validate
	settleDelay time.Duration
	retries     uint64
	statusPoll  time.Duration

	mu               sync.Mutex
	tracked          []Resource
	lastLinodeDelete time.Time
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom API root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithSettleDelay sets how long volume deletes wait after a Linode delete.
func WithSettleDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.settleDelay = d
	}
}

// WithVolumeRetries sets how many times a failed volume delete is retried.
func WithVolumeRetries(n uint64) ClientOption {
	return func(c *Client) {
		c.retries = n
	}
}

// WithStatusPoll sets the polling interval for status waits.
func WithStatusPoll(d time.Duration) ClientOption {
	return func(c *Client) {
		c.statusPoll = d
	}
}

// NewClient creates a client authenticating with token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:      zap.NewNop(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		settleDelay: DefaultSettleDelay,
		retries:     DefaultVolumeRetries,
		statusPoll:  DefaultStatusPoll,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do performs one request. A non-2xx response becomes an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", zap.String("method", method), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return newAPIError(method, path, resp.StatusCode, data)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

type pageResponse[T any] struct {
	Data    []T `json:"data"`
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	Results int `json:"results"`
}

// list fetches every page of a collection.
func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("page_size", strconv.Itoa(pageSize))

		var resp pageResponse[T]
		if err := c.do(ctx, http.MethodGet, path+"?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		if resp.Pages <= page {
			return all, nil
		}
	}
}

func (c *Client) check(kind Kind, opts interface{}) error {
	if err := c.validate.Struct(opts); err != nil {
		return fmt.Errorf("invalid %s options: %w", kind, err)
	}
	return nil
}
