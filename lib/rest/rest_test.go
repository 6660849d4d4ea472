package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/require"
	"github.com/thompsy/go-cx-client/lib"
	"github.com/thompsy/go-cx-client/lib/transport"
)

type fakeOSA struct {
	logins      int32
	lastCreate  createOSAScanRequest
	contentType string
	itemsParam  string
}

func (f *fakeOSA) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("cxCookie")
		if err != nil || ck.Value != "session-1" || r.Header.Get(CSRFTokenHeader) != "csrf-1" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"messageCode": "12563", "messageDetails": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeOSA) router() http.Handler {
	r := chi.NewRouter()
	r.Route(RootPath, func(r chi.Router) {
		r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&f.logins, 1)
			var req loginRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "secret" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte("{\n  \"messageDetails\": \"Invalid credentials\"\n}"))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "cxCookie", Value: "session-1"})
			http.SetCookie(w, &http.Cookie{Name: CSRFTokenHeader, Value: "csrf-1"})
			w.WriteHeader(http.StatusOK)
		})

		r.Group(func(r chi.Router) {
			r.Use(f.authenticated)
			r.Post("/osa/scans", func(w http.ResponseWriter, r *http.Request) {
				f.contentType = r.Header.Get("Content-Type")
				_ = json.NewDecoder(r.Body).Decode(&f.lastCreate)
				render.Status(r, http.StatusAccepted)
				render.JSON(w, r, CreateOSAScanResponse{ScanID: "osa-1"})
			})
			r.Get("/osa/scans/{scanID}", func(w http.ResponseWriter, r *http.Request) {
				if chi.URLParam(r, "scanID") != "osa-1" {
					render.Status(r, http.StatusNotFound)
					render.JSON(w, r, map[string]string{"messageDetails": "scan not found"})
					return
				}
				render.JSON(w, r, OSAScanStatus{ID: "osa-1", State: State{ID: StateSucceeded, Name: "Succeeded"}})
			})
			r.Get("/osa/reports", func(w http.ResponseWriter, r *http.Request) {
				render.JSON(w, r, OSASummaryResults{TotalLibraries: 12, HighVulnerabilityLibraries: 2})
			})
			r.Get("/osa/libraries", func(w http.ResponseWriter, r *http.Request) {
				f.itemsParam = r.URL.Query().Get("itemsPerPage")
				render.JSON(w, r, []Library{{ID: "lib-1", Name: "commons-io", Version: "2.4"}})
			})
			r.Get("/osa/vulnerabilities", func(w http.ResponseWriter, r *http.Request) {
				render.JSON(w, r, []CVE{{ID: "v-1", CveName: "CVE-2021-1234", Severity: Severity{ID: 2, Name: "High"}}})
			})
		})
	})
	return r
}

func setup(t *testing.T, password string) (*Client, *fakeOSA) {
	t.Helper()
	f := &fakeOSA{}
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	tr, err := transport.New(transport.Config{})
	require.NoError(t, err)
	return New(srv.URL, "admin", password, tr), f
}

func TestOSAFlow(t *testing.T) {
	c, f := setup(t, "secret")
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))

	created, err := c.CreateOSAScan(ctx, 7, []OSAFile{{Filename: "commons-io-2.4.jar", Sha1: "b1b6ea3b"}})
	require.NoError(t, err)
	require.Equal(t, "osa-1", created.ScanID)
	require.Equal(t, int64(7), f.lastCreate.ProjectID)
	require.Equal(t, OriginMaven, f.lastCreate.Origin)
	require.Len(t, f.lastCreate.HashedFiles, 1)
	require.Equal(t, "application/json;v=1", f.contentType)

	st, err := c.GetOSAScanStatus(ctx, "osa-1")
	require.NoError(t, err)
	require.Equal(t, StateSucceeded, st.State.ID)

	sum, err := c.GetOSAScanSummaryResults(ctx, "osa-1")
	require.NoError(t, err)
	require.Equal(t, 12, sum.TotalLibraries)

	libs, err := c.GetOSALibraries(ctx, "osa-1")
	require.NoError(t, err)
	require.Len(t, libs, 1)
	require.Equal(t, "1000000", f.itemsParam)

	cves, err := c.GetOSAVulnerabilities(ctx, "osa-1")
	require.NoError(t, err)
	require.Equal(t, "CVE-2021-1234", cves[0].CveName)
}

func TestRequestWithoutLogin(t *testing.T) {
	c, _ := setup(t, "secret")

	_, err := c.GetOSAScanStatus(context.Background(), "osa-1")
	var pe *lib.ProtocolError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	require.Equal(t, "failed to get OSA scan status", pe.Op)
	require.NotContains(t, pe.Message, "{")
}

func TestLoginRejected(t *testing.T) {
	c, _ := setup(t, "wrong")

	err := c.Login(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, lib.ErrAuth))
	require.Contains(t, err.Error(), "failed to login: status code: 403. error:")
	require.Contains(t, err.Error(), "Invalid credentials")
	require.NotContains(t, err.Error(), "\n")
}

// TestLoginResetsSession verifies that a new login replaces the cookies of
// the previous session.
func TestLoginResetsSession(t *testing.T) {
	c, f := setup(t, "secret")
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	require.NoError(t, c.Login(ctx))
	require.Equal(t, int32(2), atomic.LoadInt32(&f.logins))

	c.mu.Lock()
	require.Len(t, c.order, 2)
	require.Equal(t, "csrf-1", c.csrfToken)
	c.mu.Unlock()

	_, err := c.GetOSAScanStatus(ctx, "osa-1")
	require.NoError(t, err)
}

func TestScanNotFound(t *testing.T) {
	c, _ := setup(t, "secret")
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	_, err := c.GetOSAScanStatus(ctx, "missing")
	var pe *lib.ProtocolError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, http.StatusNotFound, pe.StatusCode)
	require.Contains(t, pe.Message, "scan not found")
}

// TestTransportErrorOp verifies that network failures name the endpoint while
// the error text keeps the operation description.
func TestTransportErrorOp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	tr, err := transport.New(transport.Config{})
	require.NoError(t, err)
	c := New(srv.URL, "admin", "secret", tr)

	_, err = c.GetOSAScanStatus(context.Background(), "osa-1")
	var te *lib.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "osa/scans/{id}", te.Op)
	require.True(t, strings.HasPrefix(err.Error(), "failed to get OSA scan status: osa/scans/{id}: "))
	require.True(t, lib.IsRetryable(err))

	err = c.Login(context.Background())
	require.True(t, errors.As(err, &te))
	require.Equal(t, "auth/login", te.Op)
}
