package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/your-org/dermascan/internal/config"
	"github.com/your-org/dermascan/internal/observability"
)

const maxResponseSize = 4 * 1024 * 1024

const (
	msgSoftFailure  = "Analysis failed. Please try again."
	msgInvalidInput = "Invalid data provided. Please check your input."
	msgUnreachable  = "Cannot reach the analysis service. Please check your connection and try again."
)

// Client calls the remote ingredient analysis service. It allows one call in
// flight at a time.
type Client struct {
	baseURL string
	http    *http.Client

	inFlight atomic.Bool
}

func NewClient(cfg config.AnalysisConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Analyze posts req to /analyze and maps the reply to an Outcome.
// Invalid requests and concurrent calls fail without touching the network.
// If ctx is cancelled before the reply is handled, the reply is discarded
// and ctx's error is returned.
func (c *Client) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.inFlight.Store(false)

	start := time.Now()
	out, err := c.post(ctx, req)
	observability.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.AnalysisRequests.WithLabelValues("canceled").Inc()
		return nil, err
	}

	observability.AnalysisRequests.WithLabelValues(out.category()).Inc()
	if out.Kind == Failure {
		slog.Warn("analysis failed", "status", out.Status, "error", out.Err, "barcode", req.Barcode)
	}
	return out, nil
}

// Busy reports whether a call is in flight.
func (c *Client) Busy() bool {
	return c.inFlight.Load()
}

func (c *Client) post(ctx context.Context, req Request) (*Outcome, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		slog.Warn("analysis transport error", "error", err)
		return failure(ErrUnreachable, 0, msgUnreachable), nil
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}
	if readErr != nil && resp.StatusCode/100 == 2 {
		return failure(ErrUnreachable, resp.StatusCode, msgUnreachable), nil
	}

	var payload response
	parseErr := json.Unmarshal(data, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusFailure(resp.StatusCode, req, payload.Error), nil
	}
	if parseErr != nil {
		return failure(ErrServerError, resp.StatusCode,
			fmt.Sprintf("Server error (status %d): unreadable response. Please try again later.", resp.StatusCode)), nil
	}

	if !payload.Success {
		msg := strings.TrimSpace(payload.Error)
		if msg == "" {
			msg = msgSoftFailure
		}
		return failure(ErrSoftFailure, resp.StatusCode, msg), nil
	}

	return &Outcome{
		Kind:        Success,
		Result:      parseResult(payload.Analysis),
		Product:     payload.ProductInfo,
		Ingredients: payload.Ingredients,
		Status:      resp.StatusCode,
	}, nil
}

// statusFailure maps a non-2xx status to its category. The server's error
// text is only surfaced for 400s, where it explains what to fix.
func statusFailure(status int, req Request, serverMsg string) *Outcome {
	switch status {
	case http.StatusNotFound:
		if req.Barcode != "" {
			return failure(ErrNotFound, status,
				fmt.Sprintf("Product with barcode %s not found. Please check the barcode or try manual input.", req.Barcode))
		}
		return failure(ErrNotFound, status, "Product not found. Please try manual input.")
	case http.StatusBadRequest:
		if msg := strings.TrimSpace(serverMsg); msg != "" {
			return failure(ErrInvalidInput, status, "Invalid input: "+msg)
		}
		return failure(ErrInvalidInput, status, msgInvalidInput)
	default:
		return failure(ErrServerError, status,
			fmt.Sprintf("Server error (status %d). Please try again later.", status))
	}
}

func parseResult(raw json.RawMessage) *Result {
	r := &Result{Raw: raw}
	if len(raw) == 0 {
		return r
	}
	if err := json.Unmarshal(raw, r); err != nil {
		slog.Debug("analysis payload does not match typed view", "error", err)
		return &Result{Raw: raw}
	}
	return r
}

// Health probes GET /health on the analysis service.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis health returned status %d", resp.StatusCode)
	}
	return nil
}
