// Package keys encodes and decodes the composite keys of the notebook table.
//
// Every item shares one table. The partition key is a type discriminator
// ("document", "group", "note"), the sort key is the type prefix followed by
// the entity identity, and children carry the sort key of their owner in the
// parent attribute.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the entity type stored in the partition key.
type Kind string

const (
	KindDocument Kind = "document"
	KindGroup    Kind = "group"
	KindNote     Kind = "note"
)

const (
	DocumentPrefix = "DOCUMENT#"
	GroupPrefix    = "GROUP#"
	NotePrefix     = "NOTE#"
)

// ErrInvalidKey is returned when a sort key or identity cannot be decoded.
var ErrInvalidKey = errors.New("keys: invalid key")

// Key is the storage location of one item plus its owner pointer.
type Key struct {
	Partition string
	Sort      string
	Parent    string // empty for documents
}

// Prefix returns the sort key prefix for a kind.
func (k Kind) Prefix() string {
	switch k {
	case KindDocument:
		return DocumentPrefix
	case KindGroup:
		return GroupPrefix
	case KindNote:
		return NotePrefix
	}
	return ""
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k.Prefix() != ""
}

// DocumentKey encodes the key of a document.
func DocumentKey(id string) Key {
	return Key{
		Partition: string(KindDocument),
		Sort:      DocumentPrefix + id,
	}
}

// GroupKey encodes the key of a group owned by documentID.
func GroupKey(id, documentID string) Key {
	return Key{
		Partition: string(KindGroup),
		Sort:      GroupPrefix + id,
		Parent:    DocumentPrefix + documentID,
	}
}

// NoteKey encodes the key of a note owned by the group with sort key groupSK.
func NoteKey(id, groupSK string) Key {
	return Key{
		Partition: string(KindNote),
		Sort:      NotePrefix + id,
		Parent:    groupSK,
	}
}

// DocumentSK returns the sort key of a document identity.
func DocumentSK(id string) string { return DocumentPrefix + id }

// GroupSK returns the sort key of a group identity.
func GroupSK(id string) string { return GroupPrefix + id }

// Decode splits a sort key into its kind and raw identity.
func Decode(sk string) (Kind, string, error) {
	for _, kind := range []Kind{KindDocument, KindGroup, KindNote} {
		if id, ok := strings.CutPrefix(sk, kind.Prefix()); ok {
			if id == "" {
				return "", "", fmt.Errorf("%w: empty identity in %q", ErrInvalidKey, sk)
			}
			return kind, id, nil
		}
	}
	return "", "", fmt.Errorf("%w: unknown prefix in %q", ErrInvalidKey, sk)
}

// Identity strips the expected kind prefix from a sort key.
func Identity(kind Kind, sk string) (string, error) {
	got, id, err := Decode(sk)
	if err != nil {
		return "", err
	}
	if got != kind {
		return "", fmt.Errorf("%w: %q is a %s key, want %s", ErrInvalidKey, sk, got, kind)
	}
	return id, nil
}

// NewIdentity mints an identity from a creation timestamp.
//
// The format is "<unix seconds>-<12 hex chars>". The timestamp keeps
// identities ordered by creation; the random suffix keeps two entities minted
// in the same second apart.
func NewIdentity(t time.Time) string {
	u := uuid.New()
	return strconv.FormatInt(t.Unix(), 10) + "-" + hex.EncodeToString(u[:6])
}

// ParseIdentity recovers the creation timestamp of an identity. Bare
// timestamps without a suffix are accepted.
func ParseIdentity(id string) (time.Time, error) {
	ts, _, _ := strings.Cut(id, "-")
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: identity %q: %v", ErrInvalidKey, id, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}
