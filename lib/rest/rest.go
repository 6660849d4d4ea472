/*
Package rest is the client of the OSA REST API. The API authenticates with
cookies: every cookie set by the server is replayed on later requests and the
CSRF token cookie is echoed back as a request header.
*/
package rest

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

	log "github.com/sirupsen/logrus"
	"github.com/thompsy/go-cx-client/lib"
	"github.com/thompsy/go-cx-client/lib/transport"
)

const (
	// RootPath is the location of the REST API relative to the server URL.
	RootPath = "/CxRestAPI"

	// CSRFTokenHeader names both the cookie carrying the CSRF token and the
	// header it is echoed in.
	CSRFTokenHeader = "CXCSRFToken"

	// MaxItems is the page size used to fetch all libraries or vulnerabilities at once.
	MaxItems = 1000000

	authenticationPath   = "auth/login"
	osaScanPath          = "osa/scans"
	osaSummaryPath       = "osa/reports"
	osaLibrariesPath     = "osa/libraries"
	osaVulnerabilityPath = "osa/vulnerabilities"
)

// Client talks to the REST API of one server with one set of credentials.
type Client struct {
	root     string
	username string
	password string
	http     *transport.Client

	mu        sync.Mutex
	cookies   map[string]*http.Cookie
	order     []string
	csrfToken string
}

// New returns a Client for the server at baseURL.
func New(baseURL, username, password string, t *transport.Client) *Client {
	return &Client{
		root:     strings.TrimRight(baseURL, "/") + RootPath + "/",
		username: username,
		password: password,
		http:     t,
		cookies:  make(map[string]*http.Cookie),
	}
}

// Login opens a new session, discarding any cookies of the previous one.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	c.cookies = make(map[string]*http.Cookie)
	c.order = nil
	c.csrfToken = ""
	c.mu.Unlock()

	const op, msg = "auth/login", "failed to login"
	resp, err := c.do(ctx, op, msg, http.MethodPost, authenticationPath, nil,
		loginRequest{UserName: c.username, Password: c.password})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = validateResponse(resp, http.StatusOK, msg)
	if err != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: %w", lib.ErrAuth, err)
	}
	return err
}

// CreateOSAScan submits the given dependency digests for analysis.
func (c *Client) CreateOSAScan(ctx context.Context, projectID int64, files []OSAFile) (CreateOSAScanResponse, error) {
	const op, msg = "osa/scans", "failed to create OSA scan"
	var out CreateOSAScanResponse
	err := c.exchange(ctx, op, msg, http.MethodPost, osaScanPath, nil, createOSAScanRequest{
		ProjectID:   projectID,
		Origin:      OriginMaven,
		HashedFiles: files,
	}, http.StatusAccepted, &out)
	return out, err
}

// GetOSAScanStatus returns the current status of an OSA scan.
func (c *Client) GetOSAScanStatus(ctx context.Context, scanID string) (OSAScanStatus, error) {
	const op, msg = "osa/scans/{id}", "failed to get OSA scan status"
	var out OSAScanStatus
	err := c.exchange(ctx, op, msg, http.MethodGet, osaScanPath+"/"+url.PathEscape(scanID), nil, nil, http.StatusOK, &out)
	return out, err
}

// GetOSAScanSummaryResults returns the summary of a finished OSA scan.
func (c *Client) GetOSAScanSummaryResults(ctx context.Context, scanID string) (OSASummaryResults, error) {
	const op, msg = "osa/reports", "failed to get OSA scan summary results"
	var out OSASummaryResults
	q := url.Values{"scanId": {scanID}}
	err := c.exchange(ctx, op, msg, http.MethodGet, osaSummaryPath, q, nil, http.StatusOK, &out)
	return out, err
}

// GetOSALibraries lists every library found by an OSA scan.
func (c *Client) GetOSALibraries(ctx context.Context, scanID string) ([]Library, error) {
	const op, msg = "osa/libraries", "failed to get OSA libraries"
	var out []Library
	err := c.exchange(ctx, op, msg, http.MethodGet, osaLibrariesPath, pageQuery(scanID), nil, http.StatusOK, &out)
	return out, err
}

// GetOSAVulnerabilities lists every vulnerability found by an OSA scan.
func (c *Client) GetOSAVulnerabilities(ctx context.Context, scanID string) ([]CVE, error) {
	const op, msg = "osa/vulnerabilities", "failed to get OSA vulnerabilities"
	var out []CVE
	err := c.exchange(ctx, op, msg, http.MethodGet, osaVulnerabilityPath, pageQuery(scanID), nil, http.StatusOK, &out)
	return out, err
}

func pageQuery(scanID string) url.Values {
	return url.Values{
		"scanId":       {scanID},
		"itemsPerPage": {strconv.Itoa(MaxItems)},
	}
}

// exchange sends a request, checks the response status and decodes the JSON
// response body into out. op names the endpoint in traces and metrics, msg
// prefixes the returned errors.
func (c *Client) exchange(ctx context.Context, op, msg, method, path string, query url.Values, in interface{}, expected int, out interface{}) error {
	resp, err := c.do(ctx, op, msg, method, path, query, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := validateResponse(resp, expected, msg); err != nil {
		return err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, &lib.TransportError{Op: op, Err: err})
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.WithError(err).WithField("body", string(data)).Debug("failed to parse JSON response")
		return &lib.ProtocolError{Op: msg, Message: "failed to parse JSON response: " + err.Error()}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, msg, method, path string, query url.Values, in interface{}) (*http.Response, error) {
	u := c.root + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	contentType := "v=1"
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", msg, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json;v=1"
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", msg, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	c.decorate(req)

	resp, err := c.http.Do(ctx, op, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	c.remember(resp)
	return resp, nil
}

// decorate adds the session cookies and the CSRF token to req.
func (c *Client) decorate(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.order {
		req.AddCookie(c.cookies[name])
	}
	if c.csrfToken != "" {
		req.Header.Set(CSRFTokenHeader, c.csrfToken)
	}
}

// remember keeps the cookies set by resp for later requests.
func (c *Client) remember(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range resp.Cookies() {
		if _, ok := c.cookies[ck.Name]; !ok {
			c.order = append(c.order, ck.Name)
		}
		c.cookies[ck.Name] = &http.Cookie{Name: ck.Name, Value: ck.Value}
		if ck.Name == CSRFTokenHeader {
			c.csrfToken = ck.Value
		}
	}
}

// validateResponse returns a *lib.ProtocolError when resp does not have the
// expected status, carrying the flattened response body as message.
func validateResponse(resp *http.Response, expected int, msg string) error {
	if resp.StatusCode == expected {
		return nil
	}
	data, _ := io.ReadAll(resp.Body)
	body := strings.NewReplacer("{", "", "}", "", "\r\n", " ", "\n", " ").Replace(string(data))
	body = strings.ReplaceAll(body, "  ", "")
	return &lib.ProtocolError{Op: msg, StatusCode: resp.StatusCode, Message: body}
}
