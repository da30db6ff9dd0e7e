package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"certreg/internal/ledger"
	"certreg/pkg/address"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/sentinel"
)

const (
	recordKeyPrefix = "certreg:rec:"
	tagKeyPrefix    = "certreg:tag:"

	fieldKind = "kind"
	fieldData = "data"
	fieldTags = "tags"

	defaultMaxAttempts = 8
	defaultTxTimeout   = 5 * time.Second
)

// Ledger stores each record as a hash and uses WATCH/MULTI for transactions.
// Every key read or created inside a transaction is watched; a concurrent
// commit touching any of them aborts the EXEC and the callback is re-run.
type Ledger struct {
	client      *redis.Client
	maxAttempts int
	timeout     time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxAttempts bounds optimistic retries before giving up with ErrUnavailable.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithTxTimeout bounds transactions whose context carries no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.timeout = d
	}
}

func New(client *redis.Client, opts ...Option) *Ledger {
	l := &Ledger{client: client, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func recordKey(addr address.Address) string {
	return recordKeyPrefix + addr.String()
}

func tagKey(kind ledger.Kind, tag string) string {
	return tagKeyPrefix + string(kind) + ":" + tag
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

	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		err := l.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{rtx: rtx, staged: make(map[address.Address]ledger.Record)}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if len(tx.staged) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for addr, rec := range tx.staged {
					pipe.HSet(ctx, recordKey(addr),
						fieldKind, string(rec.Kind),
						fieldData, rec.Data,
						fieldTags, encodeTags(rec.Tags),
					)
					for _, tag := range rec.Tags {
						pipe.SAdd(ctx, tagKey(rec.Kind, tag), addr.String())
					}
				}
				return nil
			})
			return err
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis ledger: contention after %d attempts: %w", l.maxAttempts, sentinel.ErrUnavailable)
}

func (l *Ledger) Get(ctx context.Context, addr address.Address) (ledger.Record, error) {
	return readRecord(ctx, l.client, addr)
}

func (l *Ledger) ListByTag(ctx context.Context, kind ledger.Kind, tag string) ([]ledger.Record, error) {
	members, err := l.client.SMembers(ctx, tagKey(kind, tag)).Result()
	if err != nil {
		return nil, fmt.Errorf("list tag members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := l.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))
	for _, member := range members {
		cmds = append(cmds, pipe.HGetAll(ctx, recordKeyPrefix+member))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load tagged records: %w", err)
	}

	out := make([]ledger.Record, 0, len(cmds))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec := decodeRecord(fields)
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

type redisTx struct {
	rtx    *redis.Tx
	staged map[address.Address]ledger.Record
}

func (t *redisTx) watchAndRead(ctx context.Context, addr address.Address) (ledger.Record, error) {
	if rec, ok := t.staged[addr]; ok {
		return rec.Clone(), nil
	}
	if err := t.rtx.Watch(ctx, recordKey(addr)).Err(); err != nil {
		return ledger.Record{}, fmt.Errorf("watch record: %w", err)
	}
	return readRecord(ctx, t.rtx, addr)
}

func (t *redisTx) Get(ctx context.Context, addr address.Address) (ledger.Record, error) {
	return t.watchAndRead(ctx, addr)
}

func (t *redisTx) Create(ctx context.Context, addr address.Address, rec ledger.Record) error {
	_, err := t.watchAndRead(ctx, addr)
	switch {
	case err == nil:
		return sentinel.ErrAlreadyExists
	case !errors.Is(err, sentinel.ErrNotFound):
		return err
	}
	t.staged[addr] = rec.Clone()
	return nil
}

func (t *redisTx) Put(ctx context.Context, addr address.Address, rec ledger.Record) error {
	if _, err := t.watchAndRead(ctx, addr); err != nil {
		return err
	}
	t.staged[addr] = rec.Clone()
	return nil
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readRecord(ctx context.Context, r hashReader, addr address.Address) (ledger.Record, error) {
	fields, err := r.HGetAll(ctx, recordKey(addr)).Result()
	if err != nil {
		return ledger.Record{}, fmt.Errorf("read record: %w", err)
	}
	if len(fields) == 0 {
		return ledger.Record{}, sentinel.ErrNotFound
	}
	return decodeRecord(fields), nil
}

func decodeRecord(fields map[string]string) ledger.Record {
	return ledger.Record{
		Kind: ledger.Kind(fields[fieldKind]),
		Data: []byte(fields[fieldData]),
		Tags: decodeTags(fields[fieldTags]),
	}
}

// Tags never contain newlines: they are built from field names and base58 keys.
func encodeTags(tags []string) string {
	return strings.Join(tags, "\n")
}

func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}
