package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/thompsy/go-cx-client/lib"
	"github.com/thompsy/go-cx-client/lib/poll"
	"github.com/thompsy/go-cx-client/lib/rest"
	"github.com/thompsy/go-cx-client/lib/sdk"
	"github.com/thompsy/go-cx-client/lib/transport"
)

const (
	// DefaultReportTimeout is the report generation timeout in seconds.
	DefaultReportTimeout = 500

	// DefaultReportInterval is the delay between report status queries.
	DefaultReportInterval = 2 * time.Second
)

// Config contains the options of a Client.
type Config struct {
	URL      string
	Username string
	Password string

	// Insecure disables TLS certificate verification.
	Insecure bool

	// CACertFile, ClientCertFile and ClientKeyFile are optional PEM files,
	// see transport.Config.
	CACertFile     string
	ClientCertFile string
	ClientKeyFile  string

	// RequestTimeout bounds every single request.
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int

	ScanInterval   time.Duration
	OSAInterval    time.Duration
	ReportInterval time.Duration

	// ReportTimeout is the report generation timeout in seconds. Report
	// waits are always bounded: zero or negative selects DefaultReportTimeout.
	ReportTimeout int64

	// MaxRetries is the number of consecutive failed status queries
	// tolerated by a wait.
	MaxRetries int

	// Instrument records Prometheus metrics for every wait.
	Instrument bool

	clock poll.Clock
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = poll.DefaultInterval
	}
	if c.OSAInterval <= 0 {
		c.OSAInterval = poll.DefaultInterval
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = DefaultReportInterval
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = DefaultReportTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = poll.DefaultMaxRetries
	}
	return c
}

// Client talks to one server through its SOAP SDK and its OSA REST API.
type Client struct {
	cfg  Config
	http *transport.Client
	sdk  *sdk.Client
	rest *rest.Client

	// soap holds the SDK session id, osa the cookie based REST session.
	soap *Session
	osa  *Session
}

// NewClient constructs a new client with the given configuration. It does not
// contact the server.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", cfg.URL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: missing host", cfg.URL)
	}

	cfg = cfg.withDefaults()
	t, err := transport.New(transport.Config{
		Insecure:          cfg.Insecure,
		CACertFile:        cfg.CACertFile,
		ClientCertFile:    cfg.ClientCertFile,
		ClientKeyFile:     cfg.ClientKeyFile,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Insecure {
		log.Warn("TLS certificate verification is disabled")
	}

	c := &Client{
		cfg:  cfg,
		http: t,
		sdk:  sdk.New(cfg.URL, t),
		rest: rest.New(cfg.URL, cfg.Username, cfg.Password, t),
	}
	c.soap = NewSession("sdk", c.sdkLogin)
	c.osa = NewSession("osa", func(ctx context.Context) (string, error) {
		return "", c.rest.Login(ctx)
	})
	return c, nil
}

func (c *Client) sdkLogin(ctx context.Context) (string, error) {
	data, err := c.sdk.Login(ctx, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return "", fmt.Errorf("failed to login: %w", err)
	}
	if !data.IsSuccesfull || data.SessionID == "" {
		return "", fmt.Errorf("failed to login: %s: %w", data.ErrorMessage, lib.ErrAuth)
	}
	return data.SessionID, nil
}

// CheckServerConnectivity verifies that the SDK web service answers at the
// configured server url.
func (c *Client) CheckServerConnectivity(ctx context.Context) error {
	if err := c.sdk.Ping(ctx); err != nil {
		log.WithError(err).WithField("url", c.cfg.URL).Debug("server connectivity check failed")
		return fmt.Errorf("failed to validate server address %s: %w", c.cfg.URL, err)
	}
	return nil
}

// LoginToServer opens a new SDK session, replacing any previous one.
func (c *Client) LoginToServer(ctx context.Context) error {
	_, err := c.soap.Refresh(ctx)
	return err
}

// Close forgets both sessions and releases idle connections.
func (c *Client) Close() error {
	c.soap.Invalidate()
	c.osa.Invalidate()
	c.http.Close()
	return nil
}

// sdkToken returns the SDK session id, logging in first if needed.
func (c *Client) sdkToken(ctx context.Context) (string, error) {
	token, err := c.soap.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("no session: %w", err)
	}
	return token, nil
}
