// Package apiclient is the authenticated HTTP pipeline to the finance API: token
// resolution, bearer header, timeouts, 401 refresh-and-retry and error normalisation.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-miniapp-session/internal/config"
	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/internal/metrics"
	"github.com/jrsteele09/go-miniapp-session/token"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20

	HeaderRequestID = "X-Request-Id"
)

type Client struct {
	baseURL string
	http    *http.Client
	tokens  *token.Store
	timeout time.Duration
	log     zerolog.Logger
	metrics *metrics.Collectors
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTimeout overrides the per-request timeout from config.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func New(cfg config.APIConfig, tokens *token.Store, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.GetBaseURL(), "/"),
		http:    &http.Client{},
		tokens:  tokens,
		timeout: cfg.GetRequestTimeout(),
		log:     zerolog.Nop(),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Tokens exposes the token store the client authenticates with.
func (c *Client) Tokens() *token.Store {
	return c.tokens
}

type requestOptions struct {
	noCache bool
	noAuth  bool
}

type RequestOption func(*requestOptions)

// WithNoCache forces no-cache headers on a read.
func WithNoCache() RequestOption {
	return func(o *requestOptions) {
		o.noCache = true
	}
}

// WithoutAuth sends the request without a bearer token.
func WithoutAuth() RequestOption {
	return func(o *requestOptions) {
		o.noAuth = true
	}
}

type response struct {
	status int
	body   []byte
}

// Request sends one API call and decodes the JSON response into T. A 401 is answered
// with a single-flight refresh and exactly one retry, except on the refresh endpoint.
// 204 and 304 produce an empty T: an empty slice or map, or the zero struct.
func Request[T any](ctx context.Context, c *Client, method, endpoint string, body any, opts ...RequestOption) (T, error) {
	var zero T
	ro := requestOptions{}
	for _, opt := range opts {
		opt(&ro)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return zero, &Error{Kind: KindValidation, Message: "cannot encode request", Err: err}
		}
	}

	accessToken := ""
	if !ro.noAuth {
		accessToken = c.tokens.GetValidToken(ctx)
	}

	resp, err := c.do(ctx, method, endpoint, payload, accessToken, ro)
	if err != nil {
		return zero, err
	}

	if resp.status == http.StatusUnauthorized && endpoint != EndpointRefresh && !ro.noAuth {
		if resp, err = c.retryAfterRefresh(ctx, method, endpoint, payload, ro); err != nil {
			return zero, err
		}
	}

	return decode[T](resp)
}

func (c *Client) retryAfterRefresh(ctx context.Context, method, endpoint string, payload []byte, ro requestOptions) (*response, error) {
	if c.tokens.RefreshToken() == "" {
		c.tokens.Clear(ctx)
		return nil, &Error{Kind: KindAuthInvalid, Status: http.StatusUnauthorized, Err: errors.ErrNoRefreshToken}
	}

	pair, err := c.tokens.RefreshAccessToken(ctx)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && (apiErr.Kind == KindTransport || apiErr.Kind == KindTimeout) {
			return nil, apiErr
		}
		if errors.Is(err, errors.ErrTimeout) {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		c.log.Info().Str("endpoint", endpoint).Err(err).Msg("session expired, refresh rejected")
		return nil, &Error{Kind: KindAuthExpired, Status: http.StatusUnauthorized, Err: err}
	}

	c.log.Debug().Str("endpoint", endpoint).Msg("retrying request after token refresh")
	resp, err := c.do(ctx, method, endpoint, payload, pair.AccessToken, ro)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized {
		c.tokens.Clear(ctx)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, accessToken string, ro requestOptions) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "cannot build request", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if ro.noCache || method != http.MethodGet {
		req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		req.Header.Set("Pragma", "no-cache")
	}
	requestID := uuid.New().String()
	req.Header.Set(HeaderRequestID, requestID)

	log := c.log.With().Str("method", method).Str("endpoint", endpoint).Str("request_id", requestID).Logger()

	httpResp, err := c.http.Do(req)
	if err != nil {
		c.count(endpoint, "error")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Err(err).Msg("request timed out")
			return nil, &Error{Kind: KindTimeout, Message: errors.ErrTimeout.Error(), Err: err}
		}
		log.Warn().Err(err).Msg("request failed")
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		c.count(endpoint, "error")
		return nil, &Error{Kind: KindTransport, Status: httpResp.StatusCode, Message: "cannot read response", Err: err}
	}

	c.count(endpoint, statusClass(httpResp.StatusCode))
	log.Debug().Int("status", httpResp.StatusCode).Msg("api response")
	return &response{status: httpResp.StatusCode, body: body}, nil
}

func (c *Client) count(endpoint, status string) {
	if c.metrics != nil {
		c.metrics.Requests.WithLabelValues(endpoint, status).Inc()
	}
}

func decode[T any](resp *response) (T, error) {
	var out T
	switch {
	case resp.status == http.StatusNoContent || resp.status == http.StatusNotModified:
		return emptyValue[T](), nil
	case resp.status >= 200 && resp.status < 300:
		if len(bytes.TrimSpace(resp.body)) == 0 {
			return emptyValue[T](), nil
		}
		if err := json.Unmarshal(resp.body, &out); err != nil {
			return out, &Error{Kind: KindServer, Status: resp.status, Message: "malformed response", Err: err}
		}
		return out, nil
	default:
		return out, newStatusError(resp.status, resp.body)
	}
}

// emptyValue is the "nothing changed" value for T: empty list, empty map or zero object.
func emptyValue[T any]() T {
	var out T
	t := reflect.TypeOf(out)
	if t == nil {
		return out
	}
	switch t.Kind() {
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0).Interface().(T)
	case reflect.Map:
		return reflect.MakeMap(t).Interface().(T)
	case reflect.Pointer:
		return reflect.New(t.Elem()).Interface().(T)
	}
	return out
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
