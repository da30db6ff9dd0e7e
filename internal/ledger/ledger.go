// Package ledger is the transactional key-value substrate the registry runs on.
//
// Records live at derived addresses. A mutation runs inside RunInTx: reads and
// staged writes go through the Tx, and the writes become visible only if the
// callback returns nil. Create is insert-if-absent and is the only way a record
// comes into existence, so two creators racing on one address resolve to
// exactly one success and sentinel.ErrAlreadyExists for the rest.
//
// Backends return pkg/platform/sentinel errors for facts about records.
package ledger

import (
	"context"

	"certreg/pkg/address"
)

// Kind tags the record type stored at an address.
type Kind string

const (
	KindRegistry    Kind = "registry"
	KindIssuer      Kind = "issuer"
	KindCertificate Kind = "certificate"
)

// Record is an opaque encoded record plus secondary lookup tags.
// Tags never participate in uniqueness or authorization.
type Record struct {
	Kind Kind
	Data []byte
	Tags []string
}

// Clone returns a deep copy so callers never alias backend storage.
func (r Record) Clone() Record {
	out := Record{Kind: r.Kind}
	if r.Data != nil {
		out.Data = append([]byte(nil), r.Data...)
	}
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	return out
}

// HasTag reports whether the record carries tag.
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Tx is the view a mutation gets inside RunInTx.
type Tx interface {
	// Get returns the record at addr, observing writes staged earlier in this tx.
	Get(ctx context.Context, addr address.Address) (Record, error)
	// Create stages a new record; sentinel.ErrAlreadyExists if addr is taken.
	Create(ctx context.Context, addr address.Address, rec Record) error
	// Put stages a replacement; sentinel.ErrNotFound if addr is empty.
	Put(ctx context.Context, addr address.Address, rec Record) error
}

// Ledger is a transactional record store.
type Ledger interface {
	// RunInTx applies fn atomically. fn may be invoked more than once by
	// optimistic backends, so it must not have side effects outside the Tx.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Get reads a committed record without taking locks.
	Get(ctx context.Context, addr address.Address) (Record, error)
	// ListByTag returns committed records of kind carrying tag.
	ListByTag(ctx context.Context, kind Kind, tag string) ([]Record, error)
}

// Tag builds a secondary lookup tag.
func Tag(field, value string) string {
	return field + ":" + value
}
