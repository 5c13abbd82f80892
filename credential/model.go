package credential

// Kind distinguishes the two credential families that share the key layout.
type Kind string

const (
	// KindAccess is a short-lived signed access credential.
	KindAccess Kind = "access"
	// KindRefresh is a long-lived opaque renewal credential.
	KindRefresh Kind = "refresh"
)

// Kinds lists every credential kind indexed per principal.
var Kinds = []Kind{KindAccess, KindRefresh}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// CurrentSchemaVersion is written into every encoded record.
const CurrentSchemaVersion uint8 = 1

// Record is the server-side metadata for one issued credential.
type Record struct {
	SchemaVersion uint8    `cbor:"1,keyasint"`
	ID            string   `cbor:"2,keyasint"`
	Kind          Kind     `cbor:"3,keyasint"`
	PrincipalID   string   `cbor:"4,keyasint"`
	DisplayName   string   `cbor:"5,keyasint,omitempty"`
	TenantID      string   `cbor:"6,keyasint,omitempty"`
	Roles         []string `cbor:"7,keyasint,omitempty"`
	IssuedAt      int64    `cbor:"8,keyasint"`
	ExpiresAt     int64    `cbor:"9,keyasint"`
}

// Challenge is the principal snapshot held while a second factor is pending.
type Challenge struct {
	SchemaVersion uint8    `cbor:"1,keyasint"`
	PrincipalID   string   `cbor:"2,keyasint"`
	DisplayName   string   `cbor:"3,keyasint,omitempty"`
	TenantID      string   `cbor:"4,keyasint,omitempty"`
	Email         string   `cbor:"5,keyasint,omitempty"`
	Roles         []string `cbor:"6,keyasint,omitempty"`
	IssuedAt      int64    `cbor:"7,keyasint"`
	ExpiresAt     int64    `cbor:"8,keyasint"`
}
