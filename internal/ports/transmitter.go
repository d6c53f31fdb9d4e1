package ports

import (
	"context"

	"github.com/bft-labs/bulkship/internal/domain"
)

// Transmitter performs one send attempt of a request to the bulk endpoint.
// Connection pooling, TLS and in-request retries belong to the implementation.
type Transmitter interface {
	// Send returns nil when the endpoint accepted the request. Failures
	// should be *domain.SendError so callers can tell transient failures
	// from permanent rejections; other errors are treated as transient.
	Send(ctx context.Context, req domain.Request) error
}
