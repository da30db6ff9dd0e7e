package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"certreg/internal/ledger"
	"certreg/pkg/address"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/sentinel"
)

// defaultTxTimeout is the maximum duration for a ledger transaction.
const defaultTxTimeout = 5 * time.Second

// Ledger keeps records in a map guarded by a single RWMutex. Transactions hold
// the write lock and stage writes in an overlay that is applied only on success.
//
// Get, ListByTag and Len take the read lock, so they wait for an in-flight
// transaction to finish and only ever observe committed state. A slow
// transaction callback stalls readers for up to the transaction timeout.
type Ledger struct {
	mu      sync.RWMutex
	records map[address.Address]ledger.Record
	timeout time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTxTimeout bounds transactions whose context carries no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.timeout = d
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{records: make(map[address.Address]ledger.Record)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := l.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &memTx{base: l.records, staged: make(map[address.Address]ledger.Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for addr, rec := range tx.staged {
		l.records[addr] = rec
	}
	return nil
}

func (l *Ledger) Get(_ context.Context, addr address.Address) (ledger.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[addr]
	if !ok {
		return ledger.Record{}, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (l *Ledger) ListByTag(_ context.Context, kind ledger.Kind, tag string) ([]ledger.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	addrs := make([]address.Address, 0)
	for addr, rec := range l.records {
		if rec.Kind == kind && rec.HasTag(tag) {
			addrs = append(addrs, addr)
		}
	}
	// Stable order for callers and tests
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	out := make([]ledger.Record, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, l.records[addr].Clone())
	}
	return out, nil
}

// Len reports the number of committed records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

type memTx struct {
	base   map[address.Address]ledger.Record
	staged map[address.Address]ledger.Record
}

func (t *memTx) lookup(addr address.Address) (ledger.Record, bool) {
	if rec, ok := t.staged[addr]; ok {
		return rec, true
	}
	rec, ok := t.base[addr]
	return rec, ok
}

func (t *memTx) Get(_ context.Context, addr address.Address) (ledger.Record, error) {
	rec, ok := t.lookup(addr)
	if !ok {
		return ledger.Record{}, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *memTx) Create(_ context.Context, addr address.Address, rec ledger.Record) error {
	if _, ok := t.lookup(addr); ok {
		return sentinel.ErrAlreadyExists
	}
	t.staged[addr] = rec.Clone()
	return nil
}

func (t *memTx) Put(_ context.Context, addr address.Address, rec ledger.Record) error {
	if _, ok := t.lookup(addr); !ok {
		return sentinel.ErrNotFound
	}
	t.staged[addr] = rec.Clone()
	return nil
}
