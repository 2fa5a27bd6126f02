package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triangulate/internal/connector"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/pipeline"
)

type fakeRunner struct {
	rows   []model.Organisation
	report *pipeline.Report
	err    error
}

func (f *fakeRunner) Chain() connector.Chain {
	return connector.Chain{
		{Descriptor: connector.Descriptor{Name: "regulator", TrustRank: 1}},
		{Descriptor: connector.Descriptor{Name: "press", TrustRank: 2}},
	}
}

func (f *fakeRunner) Run(_ context.Context, rows []model.Organisation) (*pipeline.Report, error) {
	f.rows = rows
	return f.report, f.err
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	h := newRouter(&fakeRunner{}, 10, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","connectors":["regulator","press"]}`, rec.Body.String())
}

func TestServe_RunReturnsReport(t *testing.T) {
	runner := &fakeRunner{report: &pipeline.Report{
		RunID: "run-1",
		Rows: []pipeline.RowResult{{
			RowID:     "ROW-1",
			Decisions: []model.QualityDecision{{Field: model.FieldPhone, Action: model.ActionReject, Reason: model.ReasonLowConfidence}},
		}},
	}}
	h := newRouter(runner, 10, nil)

	rec := post(t, h, `{"rows":[{"name":"Alpha"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed with 1 rejections", resp.Summary)
	assert.Equal(t, "run-1", resp.Report.RunID)
	require.Len(t, runner.rows, 1)
	assert.Equal(t, "ROW-1", runner.rows[0].ID)
}

func TestServe_SinkFailureIsPartial(t *testing.T) {
	runner := &fakeRunner{report: &pipeline.Report{RunID: "run-2"}, err: pipeline.ErrSinkExhausted}
	rec := post(t, newRouter(runner, 10, nil), `{"rows":[{"id":"A","name":"Alpha"}]}`)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Body.String(), "evidence sink retries exhausted")
}

func TestServe_RunFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	rec := post(t, newRouter(runner, 10, nil), `{"rows":[{"id":"A","name":"Alpha"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServe_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"rows":`, http.StatusBadRequest},
		{"empty", `{"rows":[]}`, http.StatusBadRequest},
		{"duplicate ids", `{"rows":[{"id":"A"},{"id":"A"}]}`, http.StatusBadRequest},
		{"too many rows", `{"rows":[{"id":"A"},{"id":"B"},{"id":"C"}]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := post(t, newRouter(runner, 2, nil), tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Nil(t, runner.rows)
		})
	}
}

func TestServe_CORSPreflight(t *testing.T) {
	h := newRouter(&fakeRunner{}, 10, []string{"https://ops.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/v1/runs", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
