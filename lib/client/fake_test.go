package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/require"
	"github.com/thompsy/go-cx-client/lib/rest"
	"github.com/thompsy/go-cx-client/lib/sdk"
)

const testSessionID = "session-42"

// dropConnection in a status script makes the server close the connection
// without answering.
const dropConnection = "drop"

// fakeServer implements just enough of the SOAP SDK and the OSA REST API for
// the client tests. Scripted status answers are served in order, the last
// one repeating once the script is exhausted.
type fakeServer struct {
	mtx sync.Mutex

	password string
	calls    map[string]int
	bodies   map[string]string

	scanStatuses   []string
	reportStatuses []string
	osaStates      []rest.State
	presets        string
	report         []byte
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		password: "secret",
		calls:    map[string]int{},
		bodies:   map[string]string{},
		presets: `<Preset><ID>1</ID><PresetName>All</PresetName></Preset>` +
			`<Preset><ID>17</ID><PresetName>High Security</PresetName></Preset>` +
			`<Preset><ID>36</ID><PresetName>Checkmarx Default</PresetName></Preset>`,
		report: []byte("<CxXMLResults/>"),
	}
}

func (f *fakeServer) count(name string) int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.calls[name]
}

func (f *fakeServer) body(name string) string {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.bodies[name]
}

// next returns the n-th scripted answer.
func next[T any](script []T, n int) T {
	if n > len(script) {
		n = len(script)
	}
	return script[n-1]
}

func soapEnvelope(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
		body + `</soap:Body></soap:Envelope>`
}

func soapResult(action, inner string) string {
	return soapEnvelope(fmt.Sprintf(`<%[1]sResponse xmlns="http://Checkmarx.com/v7"><%[1]sResult>%[2]s</%[1]sResult></%[1]sResponse>`, action, inner))
}

func (f *fakeServer) soap(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(strings.Trim(r.Header.Get("SOAPAction"), `"`), sdk.Namespace+"/")
	data, _ := io.ReadAll(r.Body)

	f.mtx.Lock()
	f.calls[action]++
	n := f.calls[action]
	f.bodies[action] = string(data)
	f.mtx.Unlock()

	ok := `<IsSuccesfull>true</IsSuccesfull>`
	var inner string
	switch action {
	case "Login":
		if !strings.Contains(string(data), "<Pass>"+f.password+"</Pass>") {
			inner = `<IsSuccesfull>false</IsSuccesfull><ErrorMessage>Invalid credentials</ErrorMessage>`
		} else {
			inner = ok + `<SessionId>` + testSessionID + `</SessionId>`
		}
	case "Scan":
		inner = ok + `<ProjectID>3</ProjectID><RunId>run-1</RunId>`
	case "GetStatusOfSingleScan":
		st := next(f.scanStatuses, n)
		if st == "" {
			inner = `<IsSuccesfull>false</IsSuccesfull><ErrorMessage>session expired</ErrorMessage>`
		} else {
			inner = ok + `<RunId>run-1</RunId><CurrentStatus>` + st + `</CurrentStatus><StageMessage>stage says ` + st + `</StageMessage>`
		}
	case "CreateScanReport":
		inner = ok + `<ID>77</ID>`
	case "GetScanReportStatus":
		inner = next(f.reportStatuses, n)
		if inner == dropConnection {
			panic(http.ErrAbortHandler)
		}
	case "GetScanReport":
		inner = ok + `<ScanResults>` + base64.StdEncoding.EncodeToString(f.report) + `</ScanResults>`
	case "GetPresetList":
		inner = ok + `<PresetList>` + f.presets + `</PresetList>`
	case "GetAssociatedGroupsList":
		inner = ok + `<GroupList><Group><ID>g-1</ID><GroupName>CxServer\SP\Company\Users</GroupName></Group></GroupList>`
	case "GetProjectScannedDisplayData":
		inner = ok + `<ProjectScannedList><ProjectScannedDisplayData><ProjectID>3</ProjectID><ProjectName>demo</ProjectName>` +
			`<LastScanID>1001</LastScanID><HighVulnerabilities>4</HighVulnerabilities></ProjectScannedDisplayData></ProjectScannedList>`
	default:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, soapEnvelope(`<soap:Fault><faultcode>soap:Client</faultcode><faultstring>unknown action</faultstring></soap:Fault>`))
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprint(w, soapResult(action, inner))
}

func (f *fakeServer) osaLogin(w http.ResponseWriter, r *http.Request) {
	f.mtx.Lock()
	f.calls["osa login"]++
	f.mtx.Unlock()

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password != f.password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: rest.CSRFTokenHeader, Value: "csrf"})
	w.WriteHeader(http.StatusOK)
}

func (f *fakeServer) osaAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(rest.CSRFTokenHeader) != "csrf" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeServer) router() http.Handler {
	r := chi.NewRouter()
	r.Get(sdk.Path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post(sdk.Path, f.soap)
	r.Route(rest.RootPath, func(r chi.Router) {
		r.Post("/auth/login", f.osaLogin)
		r.Group(func(r chi.Router) {
			r.Use(f.osaAuth)
			r.Post("/osa/scans", func(w http.ResponseWriter, r *http.Request) {
				render.Status(r, http.StatusAccepted)
				render.JSON(w, r, rest.CreateOSAScanResponse{ScanID: "osa-1"})
			})
			r.Get("/osa/scans/{scanID}", func(w http.ResponseWriter, r *http.Request) {
				f.mtx.Lock()
				f.calls["osa status"]++
				n := f.calls["osa status"]
				f.mtx.Unlock()
				render.JSON(w, r, rest.OSAScanStatus{ID: chi.URLParam(r, "scanID"), State: next(f.osaStates, n)})
			})
			r.Get("/osa/reports", func(w http.ResponseWriter, r *http.Request) {
				render.JSON(w, r, rest.OSASummaryResults{TotalLibraries: 9, HighVulnerabilityLibraries: 1})
			})
			r.Get("/osa/libraries", func(w http.ResponseWriter, r *http.Request) {
				render.JSON(w, r, []rest.Library{{ID: "l-1", Name: "guava"}, {ID: "l-2", Name: "jackson"}})
			})
			r.Get("/osa/vulnerabilities", func(w http.ResponseWriter, r *http.Request) {
				render.JSON(w, r, []rest.CVE{{ID: "c-1", CveName: "CVE-2020-8908"}})
			})
		})
	})
	return r
}

// stepClock advances time only when Sleep is called.
type stepClock struct {
	mtx sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(d)
	return nil
}

// setup starts f and returns a client talking to it with short intervals.
func setup(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		URL:            srv.URL,
		Username:       "admin",
		Password:       "secret",
		RequestTimeout: 5 * time.Second,
		ScanInterval:   time.Millisecond,
		OSAInterval:    time.Millisecond,
		ReportInterval: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
