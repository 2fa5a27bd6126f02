package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/model"
)

func TestResolve_TrustOrder(t *testing.T) {
	descs := Resolve([]config.ConnectorConfig{
		{Name: "search", Kind: "null", TrustRank: 4, Enabled: true},
		{Name: "press", Kind: "null", TrustRank: 2, Enabled: true},
		{Name: "disabled", Kind: "null", TrustRank: 0, Enabled: false},
		{Name: "regulator", Kind: "null", TrustRank: 1, Enabled: true, TimeoutMS: 250},
		{Name: "directory", Kind: "null", TrustRank: 2, Enabled: true},
	})

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"regulator", "press", "directory", "search"}, names)
	assert.Equal(t, 250*time.Millisecond, descs[0].Timeout)
}

func TestResolve_NoneEnabledFallsBackToNull(t *testing.T) {
	descs := Resolve([]config.ConnectorConfig{{Name: "press", Kind: "http", Enabled: false}})
	require.Len(t, descs, 1)
	assert.Equal(t, NullName, descs[0].Name)
	assert.Equal(t, "null", descs[0].Kind)

	assert.Len(t, Resolve(nil), 1)
}

func TestRegistry_BuildNullChain(t *testing.T) {
	chain, err := NewRegistry().Build(nil)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, []string{NullName}, chain.Names())

	f, err := chain[0].Connector.Lookup(context.Background(), Request{OrganisationID: "x"})
	require.NoError(t, err)
	assert.True(t, f.Empty())
}

func TestRegistry_BuildUnknownKind(t *testing.T) {
	_, err := NewRegistry().Build([]config.ConnectorConfig{{Name: "x", Kind: "ftp", Enabled: true}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, config.ErrConfiguration))
	assert.Contains(t, err.Error(), "known: fixture, http, null")
}

func TestRegistry_BuildFactoryError(t *testing.T) {
	_, err := NewRegistry().Build([]config.ConnectorConfig{{Name: "x", Kind: "http", Enabled: true}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, config.ErrConfiguration))
	assert.Contains(t, err.Error(), "base_url")
}

func TestRegistry_CustomKind(t *testing.T) {
	r := NewRegistry()
	r.Register("static", func(cfg config.ConnectorConfig) (Connector, error) {
		return NewNull(cfg.Name), nil
	})
	assert.Equal(t, []string{"fixture", "http", "null", "static"}, r.Kinds())

	chain, err := r.Build([]config.ConnectorConfig{{Name: "s", Kind: "static", Enabled: true, TrustRank: 3}})
	require.NoError(t, err)
	assert.Equal(t, "s", chain[0].Connector.Name())
	assert.Equal(t, 3, chain[0].TrustRank)
}

func TestFixture_Lookup(t *testing.T) {
	f, err := LoadFixture("cipc", filepath.Join("testdata", "registry.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "cipc", f.Name())

	finding, err := f.Lookup(context.Background(), Request{OrganisationID: "ORG-1"})
	require.NoError(t, err)
	assert.True(t, finding.Official)
	require.Len(t, finding.Candidates, 1)
	c := finding.Candidates[0]
	assert.Equal(t, model.FieldPhone, c.Field)
	assert.Equal(t, "0821234567", c.Value)
	assert.Equal(t, "cipc", c.Origin)
	assert.Equal(t, 85, c.Confidence)
	assert.True(t, c.Official)

	empty, err := f.Lookup(context.Background(), Request{OrganisationID: "UNKNOWN"})
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestFixture_ScriptedFailures(t *testing.T) {
	f, err := LoadFixture("cipc", filepath.Join("testdata", "registry.yaml"))
	require.NoError(t, err)

	_, err = f.Lookup(context.Background(), Request{OrganisationID: "ORG-BROKEN"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "garbage")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.Lookup(ctx, Request{OrganisationID: "ORG-TIMEOUT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseFixture_Errors(t *testing.T) {
	_, err := ParseFixture("x", []byte("organisations: [not a map"))
	assert.Error(t, err)

	_, err = ParseFixture("x", []byte(`
organisations:
  A:
    candidates:
      - field: fax
        value: "1"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	_, err = LoadFixture("x", "testdata/missing.yaml")
	assert.Error(t, err)
}

func TestHTTP_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/lookup", r.URL.Path)
		assert.Equal(t, "ORG-1", r.URL.Query().Get("organisation_id"))
		assert.Equal(t, "Gauteng", r.URL.Query().Get("province"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"official":false,"candidates":[
			{"field":"phone","value":"082 123 4567","confidence":70,"sources":["https://news.example.com/a"]},
			{"field":"fax","value":"011","confidence":10}
		]}`))
	}))
	defer srv.Close()

	h, err := NewHTTP(config.ConnectorConfig{Name: "press", BaseURL: srv.URL + "/", APIKey: "secret", RatePerSec: 100})
	require.NoError(t, err)

	f, err := h.Lookup(context.Background(), Request{OrganisationID: "ORG-1", Province: "Gauteng"})
	require.NoError(t, err)
	require.Len(t, f.Candidates, 1)
	assert.Equal(t, "press", f.Candidates[0].Origin)
	assert.Equal(t, []string{"https://news.example.com/a"}, f.Candidates[0].SourceURLs)
}

func TestHTTP_NotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h, err := NewHTTP(config.ConnectorConfig{Name: "press", BaseURL: srv.URL})
	require.NoError(t, err)
	f, err := h.Lookup(context.Background(), Request{OrganisationID: "ORG-1"})
	require.NoError(t, err)
	assert.True(t, f.Empty())
}

func TestHTTP_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	h, err := NewHTTP(config.ConnectorConfig{Name: "press", BaseURL: srv.URL})
	require.NoError(t, err)
	h.retry.InitialBackoff = time.Millisecond

	_, err = h.Lookup(context.Background(), Request{OrganisationID: "ORG-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTP_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [`))
	}))
	defer srv.Close()

	h, err := NewHTTP(config.ConnectorConfig{Name: "press", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = h.Lookup(context.Background(), Request{OrganisationID: "ORG-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed payload")
}

func TestHTTP_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h, err := NewHTTP(config.ConnectorConfig{Name: "press", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = h.Lookup(context.Background(), Request{OrganisationID: "ORG-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestRequestFor(t *testing.T) {
	req := RequestFor(model.Organisation{ID: "A", Name: "Acme", Province: "WC", Website: "acme.co.za"})
	assert.Equal(t, Request{OrganisationID: "A", Name: "Acme", Province: "WC", Website: "acme.co.za"}, req)
}
