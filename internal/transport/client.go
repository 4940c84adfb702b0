package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/spachava753/convergence/internal/metrics"
	"github.com/spachava753/convergence/internal/models"
	"github.com/spachava753/convergence/internal/util"
)

// Transport issues the storage operations a trial needs.
type Transport interface {
	// Write PUTs payload and returns the write record. Writer is left empty
	// for the caller to fill in.
	Write(ctx context.Context, ref models.ObjectRef, opts models.RequestOptions, payload []byte) (models.WriteRecord, error)

	// Read samples the object once. Non-2xx statuses are reported in the
	// sample, not as errors.
	Read(ctx context.Context, ref models.ObjectRef, target models.ReadTarget) (models.ReadSample, error)

	// Delete removes the object and returns the response status.
	Delete(ctx context.Context, ref models.ObjectRef, opts models.RequestOptions) (int, error)
}

// Options configures a Client.
type Options struct {
	RegionHeader     string
	ConsistentHeader string
	// CacheBust appends a unique nocache query parameter to every request.
	CacheBust bool
	Timeout   time.Duration
	// RequestsPerSecond limits outgoing requests. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is the HTTP implementation of Transport.
type Client struct {
	httpClient *http.Client
	signer     Signer
	limiter    *rate.Limiter
	opts       Options
	logger     *slog.Logger
}

var _ Transport = (*Client)(nil)

// NewClient creates a transport client.
func NewClient(opts Options, signer Signer, logger *slog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if signer == nil {
		signer = UnsignedSigner{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: httpClient,
		signer:     signer,
		limiter:    limiter,
		opts:       opts,
		logger:     logger,
	}
}

// Write implements Transport.
func (c *Client) Write(ctx context.Context, ref models.ObjectRef, opts models.RequestOptions, payload []byte) (models.WriteRecord, error) {
	sum := sha256.Sum256(payload)
	rec := models.WriteRecord{
		Region:     opts.Region,
		Consistent: opts.Consistent,
		Payload:    payload,
		Digest:     hex.EncodeToString(sum[:]),
	}

	resp, err := c.do(ctx, http.MethodPut, ref, opts, payload)
	if err != nil {
		return rec, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	rec.StatusCode = resp.StatusCode
	rec.ETag = util.NormalizeETag(resp.Header.Get("ETag"))
	return rec, nil
}

// Read implements Transport.
func (c *Client) Read(ctx context.Context, ref models.ObjectRef, target models.ReadTarget) (models.ReadSample, error) {
	opts := target.Options()
	switch target.Read {
	case models.ReadHead, "":
		sample, err := c.head(ctx, ref, opts)
		sample.Target = target
		return sample, err
	case models.ReadGet:
		sample, err := c.get(ctx, ref, opts)
		sample.Target = target
		return sample, err
	case models.ReadHeadGet:
		head, err := c.head(ctx, ref, opts)
		if err != nil {
			head.Target = target
			return head, err
		}
		sample, err := c.get(ctx, ref, opts)
		sample.Target = target
		sample.HeadStatusCode = head.StatusCode
		return sample, err
	default:
		return models.ReadSample{Target: target}, fmt.Errorf("unknown read mode %q", target.Read)
	}
}

// Delete implements Transport.
func (c *Client) Delete(ctx context.Context, ref models.ObjectRef, opts models.RequestOptions) (int, error) {
	resp, err := c.do(ctx, http.MethodDelete, ref, opts, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) head(ctx context.Context, ref models.ObjectRef, opts models.RequestOptions) (models.ReadSample, error) {
	resp, err := c.do(ctx, http.MethodHead, ref, opts, nil)
	if err != nil {
		return models.ReadSample{}, err
	}
	defer resp.Body.Close()

	sample := models.ReadSample{
		StatusCode: resp.StatusCode,
		ETag:       util.NormalizeETag(resp.Header.Get("ETag")),
	}
	length, err := contentLength(resp)
	if err != nil {
		return sample, &Error{Op: http.MethodHead, URL: ref.URL(), Err: err}
	}
	sample.ContentLength = length
	return sample, nil
}

func (c *Client) get(ctx context.Context, ref models.ObjectRef, opts models.RequestOptions) (models.ReadSample, error) {
	resp, err := c.do(ctx, http.MethodGet, ref, opts, nil)
	if err != nil {
		return models.ReadSample{}, err
	}
	defer resp.Body.Close()

	sample := models.ReadSample{
		StatusCode: resp.StatusCode,
		ETag:       util.NormalizeETag(resp.Header.Get("ETag")),
	}
	length, err := contentLength(resp)
	if err != nil {
		return sample, &Error{Op: http.MethodGet, URL: ref.URL(), Err: err}
	}
	sample.ContentLength = length

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sample, &Error{Op: http.MethodGet, URL: ref.URL(), Err: fmt.Errorf("reading body: %w", classifyDoError(err))}
	}
	if length >= 0 && int64(len(body)) != length {
		return sample, &Error{
			Op:  http.MethodGet,
			URL: ref.URL(),
			Err: fmt.Errorf("%w: body has %d bytes, content-length %d", ErrMalformedResponse, len(body), length),
		}
	}
	if sample.Found() {
		sample.Body = body
		sample.HasBody = true
	}
	return sample, nil
}

// do builds, signs and sends one request. The caller owns the response body.
func (c *Client) do(ctx context.Context, method string, ref models.ObjectRef, opts models.RequestOptions, payload []byte) (*http.Response, error) {
	target := ref.URL()
	if c.opts.CacheBust {
		target += "?nocache=" + uuid.NewString()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Op: method, URL: target, Err: fmt.Errorf("creating request: %w", err)}
	}
	if payload != nil {
		req.ContentLength = int64(len(payload))
	}
	c.applyHeaders(req, opts)

	// Signatures carry a timestamp, so sign only once the limiter lets the
	// request through.
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Op: method, URL: target, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}
	if err := c.signer.Sign(ctx, req, payloadHash(payload)); err != nil {
		return nil, &Error{Op: method, URL: target, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	region := regionLabel(opts.Region)
	metrics.TransportLatency.WithLabelValues(method, region).Observe(elapsed.Seconds())
	if err != nil {
		metrics.TransportRequests.WithLabelValues(method, region, "error").Inc()
		c.logger.Debug("storage request failed", "method", method, "region", region, "error", err)
		return nil, &Error{Op: method, URL: target, Err: classifyDoError(err)}
	}

	metrics.TransportRequests.WithLabelValues(method, region, statusClass(resp.StatusCode)).Inc()
	c.logger.Debug("storage request",
		"method", method,
		"region", region,
		"consistent", opts.Consistent,
		"status", resp.StatusCode,
		"duration_ms", float64(elapsed.Microseconds())/1000)
	return resp, nil
}

func (c *Client) applyHeaders(req *http.Request, opts models.RequestOptions) {
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if opts.Region != "" {
		req.Header.Set(c.opts.RegionHeader, opts.Region)
	}
	if opts.Consistent {
		req.Header.Set(c.opts.ConsistentHeader, "true")
	}
}

// contentLength returns the declared length, or -1 when absent.
func contentLength(resp *http.Response) (int64, error) {
	raw := resp.Header.Get("Content-Length")
	if raw == "" {
		return resp.ContentLength, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return -1, fmt.Errorf("%w: content-length %q", ErrMalformedResponse, raw)
	}
	return n, nil
}

func regionLabel(region string) string {
	if region == "" {
		return "default"
	}
	return region
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
