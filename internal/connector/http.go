package connector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/resilience"
)

const maxResponseBytes = 2 << 20

// lookupResponse is the JSON payload of a research API lookup.
type lookupResponse struct {
	Official   bool `json:"official"`
	Candidates []struct {
		Field      string   `json:"field"`
		Value      string   `json:"value"`
		Confidence int      `json:"confidence"`
		Sources    []string `json:"sources"`
		Official   bool     `json:"official"`
	} `json:"candidates"`
}

// HTTP queries a JSON research API at GET {base_url}/v1/lookup.
type HTTP struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewHTTP creates an HTTP connector from its configuration.
func NewHTTP(cfg config.ConnectorConfig) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, eris.Errorf("connector: %s requires base_url", cfg.Name)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, eris.Wrapf(err, "connector: %s base_url", cfg.Name)
	}

	h := &HTTP{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout()},
		retry:   resilience.DefaultRetryConfig(),
	}
	h.retry.MaxAttempts = 2
	h.retry.OnRetry = resilience.RetryLogger(cfg.Name, "lookup")
	if cfg.RatePerSec > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return h, nil
}

// WithClient replaces the underlying HTTP client.
func (h *HTTP) WithClient(c *http.Client) *HTTP {
	h.client = c
	return h
}

func (h *HTTP) Name() string { return h.name }

func (h *HTTP) Lookup(ctx context.Context, req Request) (*Finding, error) {
	return resilience.DoVal(ctx, h.retry, func(ctx context.Context) (*Finding, error) {
		return h.lookupOnce(ctx, req)
	})
}

func (h *HTTP) lookupOnce(ctx context.Context, req Request) (*Finding, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "connector: %s rate limit wait", h.name)
		}
	}

	q := url.Values{}
	q.Set("organisation_id", req.OrganisationID)
	if req.Province != "" {
		q.Set("province", req.Province)
	}
	if req.Name != "" {
		q.Set("name", req.Name)
	}
	if req.Website != "" {
		q.Set("website", req.Website)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v1/lookup?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "connector: %s create request", h.name)
	}
	httpReq.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, eris.Wrapf(err, "connector: %s request", h.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &Finding{}, nil
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(eris.Errorf("connector: %s returned status %d", h.name, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, eris.Errorf("connector: %s returned status %d", h.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "connector: %s read body", h.name)
	}

	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrapf(err, "connector: %s malformed payload", h.name)
	}

	finding := &Finding{Official: payload.Official}
	for _, c := range payload.Candidates {
		field, ok := model.ParseField(c.Field)
		if !ok {
			zap.L().Debug("connector: skipping unknown field",
				zap.String("connector", h.name),
				zap.String("field", c.Field),
			)
			continue
		}
		finding.Candidates = append(finding.Candidates, model.FieldCandidate{
			Field:      field,
			Value:      c.Value,
			Origin:     h.name,
			Confidence: c.Confidence,
			SourceURLs: c.Sources,
			Official:   c.Official,
		})
	}
	return finding, nil
}
