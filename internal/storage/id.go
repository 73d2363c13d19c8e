package storage

import (
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// ID is the 128-bit entity identifier shared by nodes, edges and
// vectors (spec.md §3 resolves the source's string-UUID/u128 split in
// favor of a single 128-bit representation — Open Question 1).
//
// IDs are assigned with a time-ordered UUIDv7 so that, per the
// invariant in §3, ids are globally unique and monotonically
// assignable without a central counter.
type ID [16]byte

// NilID is the zero-value ID, used as a sentinel for "no id" (e.g. an
// absent HNSW entry point).
var NilID ID

// NewID assigns a fresh, monotonically increasing id.
func NewID() (ID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return NilID, err
	}
	var id ID
	copy(id[:], u[:])
	return id, nil
}

// Bytes returns the 16-byte big-endian encoding used directly as a key
// component; lexicographic order on this encoding matches the
// generation order of NewID because UUIDv7 places a millisecond
// timestamp in its high bits.
func (id ID) Bytes() []byte { return id[:] }

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// IDFromBytes reinterprets a 16-byte slice as an ID without copying
// semantics beyond the fixed array; the caller must pass exactly 16
// bytes (as read back from a key or value written by this package).
func IDFromBytes(b []byte) ID {
	var id ID
	copy(id[:], b)
	return id
}

// ParseID decodes the hex string form produced by ID.String.
func ParseID(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return NilID, errInvalidID
	}
	return IDFromBytes(b), nil
}

// MarshalJSON renders an ID as its hex string form, so response
// bodies carry ids a client can round-trip through ParseID.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON parses the hex string form produced by MarshalJSON.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
