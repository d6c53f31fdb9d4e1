package diskqueue

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/bft-labs/bulkship/internal/domain"
)

// fileFormatVersion is written into every stored batch.
const fileFormatVersion = 1

// storedFile is the on-disk representation of a failed request.
type storedFile struct {
	Version int            `json:"v"`
	Request domain.Request `json:"request"`
}

// encodeRequest serializes a request for storage.
func encodeRequest(req domain.Request) ([]byte, error) {
	return json.Marshal(storedFile{Version: fileFormatVersion, Request: req})
}

// decodeRequest parses a stored batch. Errors wrap domain.ErrMalformedRequest.
func decodeRequest(data []byte) (domain.Request, error) {
	var f storedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return domain.Request{}, fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err)
	}
	if f.Version != fileFormatVersion {
		return domain.Request{}, fmt.Errorf("%w: unsupported version %d", domain.ErrMalformedRequest, f.Version)
	}
	if err := f.Request.Validate(); err != nil {
		return domain.Request{}, err
	}
	return f.Request, nil
}
