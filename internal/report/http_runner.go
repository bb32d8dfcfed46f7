package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMethod is the host RPC method that executes a query report.
const DefaultMethod = "frappe.desk.query_report.run"

// HTTPRunner executes reports through the host's RPC endpoint:
//
//	POST <BaseURL>/api/method/<Method>
//	{"report_name": "...", "filters": {...}}
//
// Transient failures (network errors, 429, 5xx) are retried with exponential
// backoff; other 4xx responses fail immediately.
type HTTPRunner struct {
	BaseURL string
	Method  string

	// Token is sent as "Authorization: token <Token>" when non-empty.
	Token string

	// MaxTries bounds attempts per run. Zero means 3.
	MaxTries uint
	// MaxElapsed bounds total retry time. Zero means 30s.
	MaxElapsed time.Duration

	Client *http.Client
	Log    *slog.Logger
}

// statusError is returned for non-2xx responses.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("report: http status %d: %s", e.Code, e.Body)
}

// Run implements Runner.
func (h *HTTPRunner) Run(ctx context.Context, reportID string, filters Filters) (Result, error) {
	if strings.TrimSpace(reportID) == "" {
		return Result{}, fmt.Errorf("report: empty report id")
	}
	if filters == nil {
		filters = Filters{}
	}

	body, err := json.Marshal(map[string]any{
		"report_name": reportID,
		"filters":     filters,
	})
	if err != nil {
		return Result{}, fmt.Errorf("report: encode request: %w", err)
	}

	method := h.Method
	if method == "" {
		method = DefaultMethod
	}
	url := strings.TrimRight(h.BaseURL, "/") + "/api/method/" + method

	maxTries := h.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}
	maxElapsed := h.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}

	log := h.Log
	if log == nil {
		log = slog.Default()
	}

	attempt := 0
	res, err := backoff.Retry(ctx, func() (Result, error) {
		attempt++
		if attempt > 1 {
			log.Warn("report: retrying run", "report", reportID, "attempt", attempt)
		}
		return h.do(ctx, url, body)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
	if err != nil {
		return Result{}, fmt.Errorf("report: run %q: %w", reportID, err)
	}
	return res, nil
}

func (h *HTTPRunner) do(ctx context.Context, url string, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.Token != "" {
		req.Header.Set("Authorization", "token "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return Result{}, serr
		}
		return Result{}, backoff.Permanent(serr)
	}

	res, err := DecodeResult(resp.Body)
	if err != nil {
		return Result{}, backoff.Permanent(err)
	}
	return res, nil
}
