package target

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/ykondo/sshmux/internal/model"
)

// DeriveID maps a target string to its connection id: 16 lowercase hex
// chars of the xxhash64 digest of the exact input. Deterministic across
// calls and processes, filename-safe, no normalization. Two spellings of
// the same logical host (case, explicit :22) yield distinct ids.
func DeriveID(raw string) (model.ConnectionID, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty target", model.ErrInvalidTarget)
	}
	return model.ConnectionID(fmt.Sprintf("%016x", xxhash.Sum64String(raw))), nil
}

// MustDeriveID is DeriveID for targets already validated by Parse.
func MustDeriveID(t model.Target) model.ConnectionID {
	id, err := DeriveID(t.Raw)
	if err != nil {
		panic(err)
	}
	return id
}
