// Package adapter fetches record pages from the external CRM and marketing sources.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/record-sync/internal/circuitbreaker"
	apperrors "github.com/record-sync/internal/errors"
	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/models"
)

// APIKeyHeader carries the caller's credential to the source
const APIKeyHeader = "X-API-Key"

// maxBodyBytes caps how much of a source response is read
const maxBodyBytes = 16 << 20

// SourceClient fetches one page per call from an external source
type SourceClient interface {
	Fetch(ctx context.Context, source models.SourceName, req models.PageRequest) (*models.FetchPage, error)
}

// Config configures the HTTP source client
type Config struct {
	// BaseURLs maps each source to its fixed endpoint
	BaseURLs map[models.SourceName]string

	// Timeout bounds one request. Default: 10s.
	Timeout time.Duration

	// MaxRPS paces outbound requests per source. 0 disables pacing.
	MaxRPS float64

	// Breakers holds one circuit breaker per source. nil disables them.
	Breakers *circuitbreaker.Manager

	// BreakerConfig is used when a source's breaker is first created
	BreakerConfig *circuitbreaker.Config

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// HTTPSourceClient implements SourceClient over HTTP
type HTTPSourceClient struct {
	client        *http.Client
	baseURLs      map[models.SourceName]string
	limiters      map[models.SourceName]*rate.Limiter
	breakers      *circuitbreaker.Manager
	breakerConfig circuitbreaker.Config
}

var _ SourceClient = (*HTTPSourceClient)(nil)

// NewHTTPSourceClient creates a source client
func NewHTTPSourceClient(cfg Config) *HTTPSourceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	c := &HTTPSourceClient{
		client:   client,
		baseURLs: cfg.BaseURLs,
		limiters: make(map[models.SourceName]*rate.Limiter),
		breakers: cfg.Breakers,
	}

	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		for source := range cfg.BaseURLs {
			c.limiters[source] = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
		}
	}

	if cfg.BreakerConfig != nil {
		c.breakerConfig = *cfg.BreakerConfig
	} else {
		c.breakerConfig = *circuitbreaker.DefaultConfig("")
	}
	// Only unreachable sources trip the circuit. Upstream statuses must reach the caller as-is.
	c.breakerConfig.IsFailure = isSourceUnreachable

	return c
}

// Fetch issues one GET for the page and decodes the records it returns
func (c *HTTPSourceClient) Fetch(ctx context.Context, source models.SourceName, req models.PageRequest) (*models.FetchPage, error) {
	baseURL, ok := c.baseURLs[source]
	if !ok {
		return nil, apperrors.NewInternalError(fmt.Sprintf("unknown source: %s", source), nil)
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"source": source,
		"offset": req.Offset,
		"limit":  req.Limit,
	})

	if limiter := c.limiters[source]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewTransportError(string(source), err)
		}
	}

	var page *models.FetchPage
	call := func() error {
		var err error
		page, err = c.fetch(ctx, source, baseURL, req)
		return err
	}

	var err error
	if c.breakers != nil {
		cfg := c.breakerConfig
		err = c.breakers.GetOrCreate(string(source), &cfg).Execute(ctx, call)
	} else {
		err = call()
	}

	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			err = apperrors.NewTransportError(string(source), err)
		}
		logger.WithError(err).Warn("Source fetch failed")
		return nil, err
	}

	logger.WithField("records", page.Len()).Debug("Source page fetched")
	return page, nil
}

func isSourceUnreachable(err error) bool {
	return apperrors.IsCategory(err, apperrors.CategoryTransport)
}

func (c *HTTPSourceClient) fetch(ctx context.Context, source models.SourceName, baseURL string, req models.PageRequest) (*models.FetchPage, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, apperrors.NewInternalError("invalid source URL", err)
	}

	q := u.Query()
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("limit", strconv.Itoa(req.Limit))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build source request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set(APIKeyHeader, req.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewTransportError(string(source), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewTransportError(string(source), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewUpstreamError(string(source), resp.StatusCode, string(body))
	}

	page, err := decodePage(source, body, req)
	if err != nil {
		return nil, apperrors.NewDecodeError(string(source), err)
	}
	return page, nil
}

// decodePage reads the record array and optional paging fields of a source payload
func decodePage(source models.SourceName, body []byte, req models.PageRequest) (*models.FetchPage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", source, err)
	}

	key := source.RecordsKey()
	rawRecords, ok := envelope[key]
	if !ok || string(rawRecords) == "null" {
		return nil, fmt.Errorf("%s payload has no %q array", source, key)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(rawRecords, &records); err != nil {
		return nil, fmt.Errorf("invalid %q array: %w", key, err)
	}

	page := &models.FetchPage{
		Source: source,
		Offset: req.Offset,
		Limit:  req.Limit,
		Total:  len(records),
		Raw:    records,
	}

	for name, dst := range map[string]*int{"total": &page.Total, "offset": &page.Offset, "limit": &page.Limit} {
		if raw, ok := envelope[name]; ok && string(raw) != "null" {
			if err := json.Unmarshal(raw, dst); err != nil {
				return nil, fmt.Errorf("invalid %q field: %w", name, err)
			}
		}
	}

	switch source {
	case models.SourceCRM:
		page.Customers = make([]*models.Customer, 0, len(records))
		for _, raw := range records {
			customer, err := models.DecodeCustomer(raw)
			if err != nil {
				return nil, err
			}
			page.Customers = append(page.Customers, customer)
		}
	case models.SourceMarketing:
		page.Campaigns = make([]*models.Campaign, 0, len(records))
		for _, raw := range records {
			campaign, err := models.DecodeCampaign(raw)
			if err != nil {
				return nil, err
			}
			page.Campaigns = append(page.Campaigns, campaign)
		}
	}

	return page, nil
}
