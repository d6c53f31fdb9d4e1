package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/bft-labs/bulkship/internal/domain"
	"github.com/bft-labs/bulkship/internal/ports"
)

const (
	defaultContentType = "application/x-ndjson"
	// maxErrorBody bounds how much of a response is kept for diagnostics.
	maxErrorBody = 64 << 10
)

// Transmitter implements ports.Transmitter over HTTP.
type Transmitter struct {
	client ports.HTTPClient
	policy Policy
	gzip   bool
	logger ports.Logger
}

// TransmitterOption configures a Transmitter.
type TransmitterOption func(*Transmitter)

// WithPolicy replaces the status classification table.
func WithPolicy(p Policy) TransmitterOption {
	return func(t *Transmitter) { t.policy = p }
}

// WithGzip compresses request bodies.
func WithGzip(enabled bool) TransmitterOption {
	return func(t *Transmitter) { t.gzip = enabled }
}

// NewTransmitter creates an HTTP transmitter.
func NewTransmitter(client ports.HTTPClient, logger ports.Logger, opts ...TransmitterOption) *Transmitter {
	t := &Transmitter{
		client: client,
		policy: DefaultPolicy(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts req and classifies the result. Every failure is returned as a
// *domain.SendError.
func (t *Transmitter) Send(ctx context.Context, req domain.Request) error {
	body := req.Body
	if t.gzip {
		compressed, err := gzipBody(body)
		if err != nil {
			return &domain.SendError{Class: domain.ClassPermanent, Err: fmt.Errorf("compress body: %w", err)}
		}
		body = compressed
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(body))
	if err != nil {
		// A URL that does not parse will not parse next time either.
		return &domain.SendError{Class: domain.ClassPermanent, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", defaultContentType)
	}
	if t.gzip {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return &domain.SendError{Class: domain.ClassTransient, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	ok, class := t.policy.Classify(resp.StatusCode)
	if !ok {
		return &domain.SendError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Body:       string(respBody),
		}
	}

	// Per-item failures in an accepted bulk request are not retried.
	if failed := countItemErrors(respBody); failed > 0 {
		t.logger.Warn("bulk request accepted with item errors",
			ports.Int("records", req.Count),
			ports.Int("failed_items", failed),
		)
	}
	return nil
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bulkResponse is the part of a bulk API response needed to spot item
// failures.
type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]json.RawMessage `json:"items"`
}

type bulkItem struct {
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

// countItemErrors returns the number of failed items, or 1 when the
// response only carries the errors flag. Unparseable bodies count as zero.
func countItemErrors(body []byte) int {
	if len(body) == 0 {
		return 0
	}
	var resp bulkResponse
	if err := json.Unmarshal(body, &resp); err != nil || !resp.Errors {
		return 0
	}
	failed := 0
	for _, item := range resp.Items {
		for _, raw := range item {
			var it bulkItem
			if json.Unmarshal(raw, &it) == nil && (len(it.Error) > 0 || it.Status >= 300) {
				failed++
			}
		}
	}
	if failed == 0 {
		failed = 1
	}
	return failed
}
