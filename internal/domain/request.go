package domain

import (
	"net/http"
	"time"
)

// Request is a replayable transport request. It carries everything needed to
// repeat the exact send later, which is why it is the unit stored on disk.
type Request struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      []byte            `json:"body"`
	Count     int               `json:"count"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewRequest builds a POST request for the batch body.
func NewRequest(url string, headers map[string]string, b *Batch) Request {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return Request{
		URL:       url,
		Method:    http.MethodPost,
		Headers:   h,
		Body:      b.Body(),
		Count:     b.Count(),
		CreatedAt: time.Now().UTC(),
	}
}

// Validate reports whether the request can be replayed.
func (r Request) Validate() error {
	if r.URL == "" {
		return ErrMalformedRequest
	}
	if r.Count < 0 {
		return ErrMalformedRequest
	}
	return nil
}
