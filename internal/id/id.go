// Package id generates monotonic, lexicographically sortable identifiers.
//
// Every ID has the form <prefix>_<26-char ULID>. Ascending IDs sort in
// creation order; descending IDs invert the timestamp so the newest ID
// sorts first. Within a single process two IDs minted in the same
// millisecond still differ, because the entropy portion is monotonic.
package id

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind selects the prefix and sort direction for an entity class.
type Kind string

const (
	Session    Kind = "ses" // descending: newest session sorts first
	Message    Kind = "msg" // ascending: turn order sorts naturally
	Part       Kind = "prt"
	Permission Kind = "per"
	Share      Kind = "shr"
)

var (
	ascMu   sync.Mutex
	ascRand = ulid.Monotonic(rand.Reader, 0)

	descMu   sync.Mutex
	descRand = ulid.Monotonic(rand.Reader, 0)
)

// Ascending returns a fresh ID that sorts after every ID previously
// minted for the same kind.
func Ascending(kind Kind) string {
	ascMu.Lock()
	defer ascMu.Unlock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), ascRand)
	return string(kind) + "_" + u.String()
}

// Descending returns a fresh ID that sorts before every ID previously
// minted for the same kind, so a plain ascending key listing yields
// newest-first order.
func Descending(kind Kind) string {
	descMu.Lock()
	defer descMu.Unlock()
	u := ulid.MustNew(ulid.MaxTime()-ulid.Timestamp(time.Now()), descRand)
	return string(kind) + "_" + u.String()
}

// New returns the canonical ID for the kind: sessions are descending,
// everything else ascending.
func New(kind Kind) string {
	if kind == Session {
		return Descending(kind)
	}
	return Ascending(kind)
}

// Validate reports whether s looks like an ID of the given kind.
func Validate(kind Kind, s string) error {
	prefix := string(kind) + "_"
	if !strings.HasPrefix(s, prefix) {
		return fmt.Errorf("id %q does not carry prefix %q", s, prefix)
	}
	if _, err := ulid.ParseStrict(strings.TrimPrefix(s, prefix)); err != nil {
		return fmt.Errorf("id %q is malformed: %w", s, err)
	}
	return nil
}
