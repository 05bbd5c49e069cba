package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	DefaultBaseURL    = "https://discord.com/api/v10"
	DefaultMaxRetries = 3

	// Attempt n waits n*n times this before being sent.
	RetryBackoffUnit = 500 * time.Millisecond

	WebsocketReadLimit = 512 << 20
)

var UserAgent = "DiscordBot (https://github.com/WelcomerTeam/Sandwich-Gateway, 1.0.0)"

// Client executes requests against the platform's REST API through a shared RateLimiter.
type Client struct {
	Logger zerolog.Logger

	HTTP        *http.Client
	RateLimiter *RateLimiter

	BaseURL    string
	UserAgent  string
	MaxRetries int

	token string
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.BaseURL = baseURL }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.HTTP = client }
}

func WithRateLimiter(rl *RateLimiter) ClientOption {
	return func(c *Client) { c.RateLimiter = rl }
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.Logger = logger }
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) { c.UserAgent = userAgent }
}

func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) { c.MaxRetries = maxRetries }
}

// NewClient makes a new client. An empty token sends requests without an Authorization header.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		Logger:     zerolog.Nop(),
		HTTP:       http.DefaultClient,
		BaseURL:    DefaultBaseURL,
		UserAgent:  UserAgent,
		MaxRetries: DefaultMaxRetries,
		token:      token,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.RateLimiter == nil {
		c.RateLimiter = NewRateLimiter()
	}

	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}

	return c
}

// RequestOptions are the optional parts of a request.
type RequestOptions struct {
	Query   url.Values
	Headers http.Header

	// Files are sent as file_0..file_N with JSON in payload_json.
	Files []*File
	JSON  any

	// Reason is sent as the audit log reason.
	Reason string

	// MaxRetries overrides the client's attempt count when positive.
	MaxRetries int
}

// Response is a fully read HTTP response.
type Response struct {
	Header     http.Header
	Body       []byte
	StatusCode int
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := sandwichjson.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Request sends a request, retrying on rate limits and server errors.
func (c *Client) Request(ctx context.Context, route Route, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	maxRetries := c.MaxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			restRetryCount.Inc()

			if err := sleepContext(ctx, time.Duration(attempt*attempt)*RetryBackoffUnit); err != nil {
				return nil, err
			}
		}

		resp, retry, err := c.attempt(ctx, route, opts)
		if !retry {
			return resp, err
		}

		c.Logger.Debug().
			Err(err).
			Str("route", route.String()).
			Int("attempt", attempt).
			Msg("Retrying request")

		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, route.String(), maxRetries, lastErr)
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", ErrRetriesExhausted, route.String(), maxRetries)
}

// FetchJSON sends a request and decodes the response into out.
func (c *Client) FetchJSON(ctx context.Context, route Route, opts *RequestOptions, out any) error {
	resp, err := c.Request(ctx, route, opts)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	return resp.Decode(out)
}

// GatewayBot returns the gateway URL, recommended shard count and session start limit.
func (c *Client) GatewayBot(ctx context.Context) (*discord.GatewayBot, error) {
	gateway := &discord.GatewayBot{}

	err := c.FetchJSON(ctx, NewRoute(http.MethodGet, "/gateway/bot", RouteScope{}), nil, gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway bot: %w", err)
	}

	return gateway, nil
}

// Gateway returns the gateway URL without requiring authorization.
func (c *Client) Gateway(ctx context.Context) (*discord.Gateway, error) {
	gateway := &discord.Gateway{}

	err := c.FetchJSON(ctx, NewRoute(http.MethodGet, "/gateway", RouteScope{}), nil, gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway: %w", err)
	}

	return gateway, nil
}

// SpawnSocket dials a websocket connection to u.
func (c *Client) SpawnSocket(ctx context.Context, u string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: http.Header{"User-Agent": []string{c.UserAgent}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to websocket: %w", err)
	}

	conn.SetReadLimit(WebsocketReadLimit)

	return conn, nil
}

// attempt performs a single try. retry reports whether the caller should try again.
func (c *Client) attempt(ctx context.Context, route Route, opts *RequestOptions) (resp *Response, retry bool, err error) {
	body, contentType, err := prepareBody(opts)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, c.BaseURL+route.Path, body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	if len(opts.Query) > 0 {
		req.URL.RawQuery = opts.Query.Encode()
	}

	for key, values := range opts.Headers {
		req.Header[key] = values
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	req.Header.Set("User-Agent", c.UserAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if opts.Reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(opts.Reason))
	}

	bucket, err := c.RateLimiter.Acquire(ctx, route.Bucket)
	if err != nil {
		return nil, false, err
	}

	defer bucket.Release()

	res, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		restRequestCount.WithLabelValues(route.Method, "error").Inc()

		return nil, true, fmt.Errorf("failed to do request: %w", err)
	}

	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	resp = &Response{
		Header:     res.Header,
		Body:       data,
		StatusCode: res.StatusCode,
	}

	restRequestCount.WithLabelValues(route.Method, strconv.Itoa(res.StatusCode)).Inc()

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		if headerInt(res.Header, "X-RateLimit-Remaining", 1) == 0 {
			resetAfter := headerSeconds(res.Header, "X-RateLimit-Reset-After")

			c.Logger.Debug().
				Str("bucket", route.Bucket).
				Dur("reset_after", resetAfter).
				Msg("Bucket exhausted")

			restRatelimitCount.WithLabelValues("exhausted").Inc()
			bucket.Defer(resetAfter)
		}

		return resp, false, nil
	case res.StatusCode == http.StatusTooManyRequests:
		// Only responses that passed through the platform's own load balancers
		// carry Via. Without it the limit came from the edge and retrying will not help.
		if res.Header.Get("Via") == "" {
			restRatelimitCount.WithLabelValues("edge").Inc()

			return nil, false, NewRestError(req, resp)
		}

		var tooManyRequests discord.TooManyRequests
		if err := sandwichjson.Unmarshal(data, &tooManyRequests); err != nil {
			c.Logger.Warn().Err(err).Str("route", route.String()).Msg("Failed to decode rate limit body")
		}

		retryAfter := secondsToDuration(tooManyRequests.RetryAfter)

		if tooManyRequests.Global {
			restRatelimitCount.WithLabelValues("global").Inc()

			if err := c.RateLimiter.SetGlobalLock(retryAfter); err != nil {
				if !errors.Is(err, ErrGlobalLockAlreadyLocked) {
					return nil, false, err
				}

				c.Logger.Debug().Str("route", route.String()).Msg("Global rate limit already in effect")
			}
		} else {
			restRatelimitCount.WithLabelValues("bucket").Inc()
			bucket.Defer(retryAfter)
		}

		c.Logger.Warn().
			Str("route", route.String()).
			Bool("global", tooManyRequests.Global).
			Dur("retry_after", retryAfter).
			Msg("Hit rate limit")

		return nil, true, NewRestError(req, resp)
	case res.StatusCode >= 500:
		return nil, true, NewRestError(req, resp)
	default:
		return nil, false, NewRestError(req, resp)
	}
}

// prepareBody builds a multipart form when files are attached, otherwise a JSON body.
func prepareBody(opts *RequestOptions) (body io.Reader, contentType string, err error) {
	if len(opts.Files) == 0 {
		if opts.JSON == nil {
			return nil, "", nil
		}

		payload, err := sandwichjson.Marshal(opts.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal json body: %w", err)
		}

		return bytes.NewReader(payload), "application/json", nil
	}

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	for i, file := range opts.Files {
		if err := file.Reset(); err != nil {
			return nil, "", err
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", multipartDisposition("file_"+strconv.Itoa(i), file.Filename()))

		if file.ContentType != "" {
			header.Set("Content-Type", file.ContentType)
		} else {
			header.Set("Content-Type", "application/octet-stream")
		}

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}

		if _, err := io.Copy(part, file.Reader); err != nil {
			return nil, "", fmt.Errorf("failed to write file %s: %w", file.Name, err)
		}
	}

	if opts.JSON != nil {
		payload, err := sandwichjson.Marshal(opts.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal payload_json: %w", err)
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="payload_json"`)
		header.Set("Content-Type", "application/json")

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create payload_json part: %w", err)
		}

		if _, err := part.Write(payload); err != nil {
			return nil, "", fmt.Errorf("failed to write payload_json: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf, writer.FormDataContentType(), nil
}
