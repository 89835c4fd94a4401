// Package reports implements the async competitor report flow: request
// validation and same-day deduplication at submission, and a queue
// worker that generates report content with bounded retries.
package reports

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// CanonicalJSON encodes v with object keys sorted at every level, so
// the same logical parameters always serialize to the same bytes.
func CanonicalJSON(v any) ([]byte, error) {
	first, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "canonical json encode")
	}
	// Round-tripping through any turns structs into maps, whose keys
	// encoding/json emits in sorted order.
	var generic any
	if err := json.Unmarshal(first, &generic); err != nil {
		return nil, eris.Wrap(err, "canonical json decode")
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, eris.Wrap(err, "canonical json re-encode")
	}
	return out, nil
}

// ParametersHash returns the hex SHA-256 of the canonical encoding of v.
// It is the idempotency key for report deduplication.
func ParametersHash(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
