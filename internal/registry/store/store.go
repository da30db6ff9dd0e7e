// Package store maps registry records onto the ledger substrate.
//
// Each record is JSON-encoded into a ledger.Record of the matching kind.
// Certificates carry issuer and recipient tags for the secondary listings.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"certreg/internal/ledger"
	"certreg/internal/registry/models"
	"certreg/pkg/address"
	"certreg/pkg/domain"
	"certreg/pkg/platform/sentinel"
)

const (
	tagIssuer    = "issuer"
	tagRecipient = "recipient"
)

// IssuerTag is the lookup tag for certificates minted by issuer.
func IssuerTag(issuer domain.PublicKey) string {
	return ledger.Tag(tagIssuer, issuer.String())
}

// RecipientTag is the lookup tag for certificates held by recipient.
func RecipientTag(recipient domain.PublicKey) string {
	return ledger.Tag(tagRecipient, recipient.String())
}

// Tx gives typed access to records inside a ledger transaction.
type Tx struct {
	tx ledger.Tx
}

func WrapTx(tx ledger.Tx) *Tx {
	return &Tx{tx: tx}
}

func (t *Tx) Registry(ctx context.Context, addr address.Address) (*models.Registry, error) {
	rec, err := t.tx.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decode[models.Registry](rec, ledger.KindRegistry)
}

func (t *Tx) CreateRegistry(ctx context.Context, addr address.Address, reg *models.Registry) error {
	rec, err := encode(ledger.KindRegistry, reg, nil)
	if err != nil {
		return err
	}
	return t.tx.Create(ctx, addr, rec)
}

func (t *Tx) PutRegistry(ctx context.Context, addr address.Address, reg *models.Registry) error {
	rec, err := encode(ledger.KindRegistry, reg, nil)
	if err != nil {
		return err
	}
	return t.tx.Put(ctx, addr, rec)
}

func (t *Tx) Issuer(ctx context.Context, addr address.Address) (*models.Issuer, error) {
	rec, err := t.tx.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decode[models.Issuer](rec, ledger.KindIssuer)
}

func (t *Tx) CreateIssuer(ctx context.Context, addr address.Address, issuer *models.Issuer) error {
	rec, err := encode(ledger.KindIssuer, issuer, nil)
	if err != nil {
		return err
	}
	return t.tx.Create(ctx, addr, rec)
}

func (t *Tx) PutIssuer(ctx context.Context, addr address.Address, issuer *models.Issuer) error {
	rec, err := encode(ledger.KindIssuer, issuer, nil)
	if err != nil {
		return err
	}
	return t.tx.Put(ctx, addr, rec)
}

func (t *Tx) Certificate(ctx context.Context, addr address.Address) (*models.Certificate, error) {
	rec, err := t.tx.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decode[models.Certificate](rec, ledger.KindCertificate)
}

func (t *Tx) CreateCertificate(ctx context.Context, addr address.Address, cert *models.Certificate) error {
	rec, err := encode(ledger.KindCertificate, cert, certificateTags(cert))
	if err != nil {
		return err
	}
	return t.tx.Create(ctx, addr, rec)
}

func (t *Tx) PutCertificate(ctx context.Context, addr address.Address, cert *models.Certificate) error {
	rec, err := encode(ledger.KindCertificate, cert, certificateTags(cert))
	if err != nil {
		return err
	}
	return t.tx.Put(ctx, addr, rec)
}

// Reader serves committed records outside any transaction.
type Reader struct {
	ledger ledger.Ledger
}

func NewReader(l ledger.Ledger) *Reader {
	return &Reader{ledger: l}
}

func (r *Reader) Registry(ctx context.Context, addr address.Address) (*models.Registry, error) {
	rec, err := r.ledger.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decode[models.Registry](rec, ledger.KindRegistry)
}

func (r *Reader) Issuer(ctx context.Context, addr address.Address) (*models.Issuer, error) {
	rec, err := r.ledger.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decode[models.Issuer](rec, ledger.KindIssuer)
}

func (r *Reader) Certificate(ctx context.Context, addr address.Address) (*models.Certificate, error) {
	rec, err := r.ledger.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decode[models.Certificate](rec, ledger.KindCertificate)
}

// CertificatesByIssuer lists certificates minted by issuer, oldest first.
func (r *Reader) CertificatesByIssuer(ctx context.Context, issuer domain.PublicKey) ([]*models.Certificate, error) {
	return r.certificatesByTag(ctx, IssuerTag(issuer))
}

// CertificatesByRecipient lists certificates held by recipient, oldest first.
func (r *Reader) CertificatesByRecipient(ctx context.Context, recipient domain.PublicKey) ([]*models.Certificate, error) {
	return r.certificatesByTag(ctx, RecipientTag(recipient))
}

func (r *Reader) certificatesByTag(ctx context.Context, tag string) ([]*models.Certificate, error) {
	recs, err := r.ledger.ListByTag(ctx, ledger.KindCertificate, tag)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Certificate, 0, len(recs))
	for _, rec := range recs {
		cert, err := decode[models.Certificate](rec, ledger.KindCertificate)
		if err != nil {
			return nil, err
		}
		out = append(out, cert)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssueDate != out[j].IssueDate {
			return out[i].IssueDate < out[j].IssueDate
		}
		return out[i].CertificateID < out[j].CertificateID
	})
	return out, nil
}

func certificateTags(cert *models.Certificate) []string {
	return []string{IssuerTag(cert.Issuer), RecipientTag(cert.Recipient)}
}

func encode(kind ledger.Kind, v any, tags []string) (ledger.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return ledger.Record{Kind: kind, Data: data, Tags: tags}, nil
}

// decode rejects a record of the wrong kind: an address holding something
// other than what its namespace implies means the ledger is corrupt.
func decode[T any](rec ledger.Record, kind ledger.Kind) (*T, error) {
	if rec.Kind != kind {
		return nil, fmt.Errorf("expected %s record, found %q: %w", kind, rec.Kind, sentinel.ErrInvalidState)
	}
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return &v, nil
}
