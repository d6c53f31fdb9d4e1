package http

import (
	"net/http"

	"github.com/bft-labs/bulkship/internal/domain"
)

// Policy maps HTTP status codes to an error class. Codes without an entry
// fall back to their range: 4xx is permanent, everything else that is not
// 2xx is transient.
type Policy map[int]domain.ErrorClass

// DefaultPolicy returns the status table used by bulk endpoints.
// 403 means the account hit a limit and may recover; 400, 401, 404 and 413
// will fail the same way on every attempt.
func DefaultPolicy() Policy {
	return Policy{
		http.StatusBadRequest:            domain.ClassPermanent,
		http.StatusUnauthorized:          domain.ClassPermanent,
		http.StatusForbidden:             domain.ClassTransient,
		http.StatusNotFound:              domain.ClassPermanent,
		http.StatusRequestTimeout:        domain.ClassTransient,
		http.StatusRequestEntityTooLarge: domain.ClassPermanent,
		http.StatusTooManyRequests:       domain.ClassTransient,
	}
}

// Classify returns whether status is a success and, if not, its class.
func (p Policy) Classify(status int) (ok bool, class domain.ErrorClass) {
	if status >= 200 && status < 300 {
		return true, 0
	}
	if c, found := p[status]; found {
		return false, c
	}
	if status >= 400 && status < 500 {
		return false, domain.ClassPermanent
	}
	return false, domain.ClassTransient
}
