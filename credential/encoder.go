package credential

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrCorrupt is returned when a stored value cannot be decoded.
var ErrCorrupt = errors.New("credential record corrupt")

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// EncodeRecord serializes a [Record] using deterministic CBOR.
func EncodeRecord(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	if !r.Kind.Valid() {
		return nil, fmt.Errorf("invalid credential kind %q", r.Kind)
	}
	if r.SchemaVersion == 0 {
		r.SchemaVersion = CurrentSchemaVersion
	}
	return encMode.Marshal(r)
}

// DecodeRecord parses a [Record] and rejects unknown schema versions.
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.SchemaVersion != CurrentSchemaVersion || !r.Kind.Valid() || r.ID == "" || r.PrincipalID == "" {
		return nil, ErrCorrupt
	}
	return &r, nil
}

// EncodeChallenge serializes a [Challenge].
func EncodeChallenge(c *Challenge) ([]byte, error) {
	if c == nil {
		return nil, errors.New("nil challenge")
	}
	if c.SchemaVersion == 0 {
		c.SchemaVersion = CurrentSchemaVersion
	}
	return encMode.Marshal(c)
}

// DecodeChallenge parses a [Challenge].
func DecodeChallenge(data []byte) (*Challenge, error) {
	var c Challenge
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if c.SchemaVersion != CurrentSchemaVersion || c.PrincipalID == "" {
		return nil, ErrCorrupt
	}
	return &c, nil
}
