package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/bulkship/internal/domain"
	"github.com/bft-labs/bulkship/pkg/log"
)

type captured struct {
	mu      sync.Mutex
	body    []byte
	headers http.Header
}

func newServer(t *testing.T, status int, respBody string, c *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rd io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rd = zr
		}
		body, _ := io.ReadAll(rd)
		if c != nil {
			c.mu.Lock()
			c.body = body
			c.headers = r.Header.Clone()
			c.mu.Unlock()
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func bulkRequest(url string) domain.Request {
	return domain.Request{
		URL:     url,
		Method:  http.MethodPost,
		Headers: map[string]string{"X-Token": "abc"},
		Body:    []byte("{\"index\":{}}\n{\"message\":\"hi\"}\n"),
		Count:   1,
	}
}

func TestPolicy_Classify(t *testing.T) {
	tests := []struct {
		status int
		ok     bool
		class  domain.ErrorClass
	}{
		{200, true, 0},
		{201, true, 0},
		{400, false, domain.ClassPermanent},
		{401, false, domain.ClassPermanent},
		{403, false, domain.ClassTransient},
		{404, false, domain.ClassPermanent},
		{408, false, domain.ClassTransient},
		{413, false, domain.ClassPermanent},
		{418, false, domain.ClassPermanent},
		{429, false, domain.ClassTransient},
		{500, false, domain.ClassTransient},
		{503, false, domain.ClassTransient},
		{302, false, domain.ClassTransient},
	}

	p := DefaultPolicy()
	for _, tt := range tests {
		ok, class := p.Classify(tt.status)
		assert.Equal(t, tt.ok, ok, "status %d", tt.status)
		if !tt.ok {
			assert.Equal(t, tt.class, class, "status %d", tt.status)
		}
	}
}

func TestTransmitter_Success(t *testing.T) {
	var c captured
	srv := newServer(t, http.StatusOK, `{"errors":false,"items":[]}`, &c)
	tr := NewTransmitter(srv.Client(), log.NewNoopLogger())

	req := bulkRequest(srv.URL + "/_bulk")
	require.NoError(t, tr.Send(context.Background(), req))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, req.Body, c.body)
	assert.Equal(t, "abc", c.headers.Get("X-Token"))
	assert.Equal(t, "application/x-ndjson", c.headers.Get("Content-Type"))
}

func TestTransmitter_ItemErrorsStillSucceed(t *testing.T) {
	resp := `{"errors":true,"items":[{"index":{"status":400,"error":{"type":"mapper_parsing_exception"}}},{"index":{"status":201}}]}`
	srv := newServer(t, http.StatusOK, resp, nil)
	tr := NewTransmitter(srv.Client(), log.NewNoopLogger())

	assert.NoError(t, tr.Send(context.Background(), bulkRequest(srv.URL)))
	assert.Equal(t, 1, countItemErrors([]byte(resp)))
	assert.Equal(t, 1, countItemErrors([]byte(`{"errors":true}`)))
	assert.Equal(t, 0, countItemErrors([]byte(`not json`)))
}

func TestTransmitter_Gzip(t *testing.T) {
	var c captured
	srv := newServer(t, http.StatusOK, "", &c)
	tr := NewTransmitter(srv.Client(), log.NewNoopLogger(), WithGzip(true))

	req := bulkRequest(srv.URL)
	require.NoError(t, tr.Send(context.Background(), req))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "gzip", c.headers.Get("Content-Encoding"))
	assert.Equal(t, req.Body, c.body)
}

func TestTransmitter_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unknown token", http.StatusNotFound, false},
		{"limits reached", http.StatusForbidden, true},
		{"throttled", http.StatusTooManyRequests, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, "nope", nil)
			tr := NewTransmitter(srv.Client(), log.NewNoopLogger())

			err := tr.Send(context.Background(), bulkRequest(srv.URL))
			var se *domain.SendError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.retryable, se.Retryable())
			assert.Equal(t, "nope", se.Body)

			want := domain.OutcomePermanent
			if tt.retryable {
				want = domain.OutcomeRetry
			}
			assert.Equal(t, want, domain.OutcomeOf(err))
		})
	}
}

func TestTransmitter_CustomPolicy(t *testing.T) {
	srv := newServer(t, http.StatusNotFound, "", nil)
	tr := NewTransmitter(srv.Client(), log.NewNoopLogger(),
		WithPolicy(Policy{http.StatusNotFound: domain.ClassTransient}))

	err := tr.Send(context.Background(), bulkRequest(srv.URL))
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestTransmitter_NetworkErrorIsTransient(t *testing.T) {
	srv := newServer(t, http.StatusOK, "", nil)
	url := srv.URL
	srv.Close()

	tr := NewTransmitter(http.DefaultClient, log.NewNoopLogger())
	err := tr.Send(context.Background(), bulkRequest(url))
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, domain.OutcomeRetry, domain.OutcomeOf(err))
}

func TestTransmitter_BadURLIsPermanent(t *testing.T) {
	tr := NewTransmitter(http.DefaultClient, log.NewNoopLogger())
	err := tr.Send(context.Background(), bulkRequest("http://bad host/_bulk"))
	assert.ErrorIs(t, err, domain.ErrPermanent)
}
