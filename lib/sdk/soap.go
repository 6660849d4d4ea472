/*
Package sdk is a minimal SOAP 1.1 binding for the CxSDKWebService endpoint.
It only moves envelopes: every method returns the raw response including its
IsSuccesfull flag, leaving the decision of what an unsuccessful response
means to the caller. Network failures are returned as *lib.TransportError,
SOAP faults and unexpected HTTP statuses as *lib.ProtocolError.
*/
package sdk

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/thompsy/go-cx-client/lib"
	"github.com/thompsy/go-cx-client/lib/transport"
)

const (
	// Namespace is the XML namespace of the SDK web service.
	Namespace = "http://Checkmarx.com/v7"

	// Path is the location of the SDK web service relative to the server URL.
	Path = "/cxwebinterface/sdk/CxSDKWebService.asmx"

	soapNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
)

type requestEnvelope struct {
	XMLName xml.Name    `xml:"soap:Envelope"`
	Soap    string      `xml:"xmlns:soap,attr"`
	Body    requestBody `xml:"soap:Body"`
}

type requestBody struct {
	Content interface{}
}

type responseEnvelope struct {
	Body struct {
		Fault   *fault `xml:"Fault"`
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

type fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// Client talks to the SDK web service of one server.
type Client struct {
	endpoint string
	http     *transport.Client
}

// New returns a Client for the server at baseURL.
func New(baseURL string, t *transport.Client) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + Path,
		http:     t,
	}
}

// Endpoint returns the URL of the SDK web service.
func (c *Client) Endpoint() string { return c.endpoint }

// Ping checks that the SDK web service answers at its expected location.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(ctx, "ping", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &lib.ProtocolError{Op: "ping", StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

// call sends in as the body of a SOAP request for action and decodes the
// body of the response into out.
func (c *Client) call(ctx context.Context, action string, in, out interface{}) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	env := requestEnvelope{Soap: soapNamespace, Body: requestBody{Content: in}}
	if err := xml.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", fmt.Sprintf("%q", Namespace+"/"+action))

	resp, err := c.http.Do(ctx, action, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &lib.TransportError{Op: action, Err: err}
	}

	var renv responseEnvelope
	if err := xml.Unmarshal(data, &renv); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &lib.ProtocolError{Op: action, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}
		return &lib.ProtocolError{Op: action, Message: "failed to parse response: " + err.Error()}
	}
	if f := renv.Body.Fault; f != nil {
		return &lib.ProtocolError{Op: action, StatusCode: resp.StatusCode, Message: strings.TrimSpace(f.Code + " " + f.String)}
	}
	if resp.StatusCode != http.StatusOK {
		return &lib.ProtocolError{Op: action, StatusCode: resp.StatusCode, Message: resp.Status}
	}

	if err := xml.Unmarshal(renv.Body.Content, out); err != nil {
		return &lib.ProtocolError{Op: action, Message: "failed to parse response: " + err.Error()}
	}
	return nil
}
