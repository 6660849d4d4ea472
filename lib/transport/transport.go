/*
Package transport contains the HTTP plumbing shared by the SOAP and REST
bindings: TLS trust, request timeouts, rate limiting and tracing.
*/
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/thompsy/go-cx-client/lib"
	"github.com/thompsy/go-cx-client/lib/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/thompsy/go-cx-client/lib/transport"

// Config contains the options of the HTTP transport.
type Config struct {
	// Insecure disables TLS certificate verification.
	Insecure bool

	// CACertFile is a PEM bundle trusted in addition to the system roots.
	CACertFile string

	// ClientCertFile and ClientKeyFile enable mutual TLS when both are set.
	ClientCertFile string
	ClientKeyFile  string

	// Timeout bounds every single request. Zero means no timeout.
	Timeout time.Duration

	// RequestsPerSecond limits the request rate. Zero or negative disables
	// rate limiting.
	RequestsPerSecond float64
	Burst             int
}

// Client sends HTTP requests to the remote service.
type Client struct {
	http    *http.Client
	limiter *RateLimiter
	tracer  trace.Tracer
}

// New constructs a Client from the given configuration.
func New(c Config) (*Client, error) {
	tlsConfig, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = tlsConfig
	return &Client{
		http: &http.Client{
			Transport: t,
			Timeout:   c.Timeout,
		},
		limiter: NewRateLimiter(c.RequestsPerSecond, c.Burst),
		tracer:  otel.Tracer(tracerName),
	}, nil
}

func (c Config) tlsConfig() (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: c.Insecure, //nolint:gosec // explicitly requested
	}

	if c.CACertFile != "" {
		caCert, err := os.ReadFile(c.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load CA cert: %w", err)
		}
		caPool, err := x509.SystemCertPool()
		if err != nil {
			caPool = x509.NewCertPool()
		}
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to add CA cert from %s: no certificates found", c.CACertFile)
		}
		config.RootCAs = caPool
	}

	if c.ClientCertFile != "" || c.ClientKeyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(c.ClientCertFile, c.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert: %w", err)
		}
		config.Certificates = []tls.Certificate{clientCert}
	}
	return config, nil
}

// Do sends req after waiting for the rate limiter. Network failures are
// returned as *lib.TransportError; the caller owns the response body and is
// responsible for interpreting the status code.
func (c *Client) Do(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "cxclient."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
		))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter wait failed")
		return nil, &lib.TransportError{Op: op, Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		metrics.ObserveRequest(op, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, &lib.TransportError{Op: op, Err: err}
	}

	metrics.ObserveRequest(op, resp.StatusCode, time.Since(start))
	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("http.status", resp.Status),
	)
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}

// Close releases the idle connections of the client.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
