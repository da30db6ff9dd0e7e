package address

import "certreg/pkg/domain"

// Deriver binds derivation to one deployment's program id.
type Deriver struct {
	program domain.PublicKey
}

func NewDeriver(program domain.PublicKey) *Deriver {
	return &Deriver{program: program}
}

func (d *Deriver) Program() domain.PublicKey {
	return d.program
}

// Registry locates the singleton registry record.
func (d *Deriver) Registry() (Address, uint8, error) {
	return Derive(d.program, NamespaceRegistry)
}

// Issuer locates the issuer record for an authority key.
func (d *Deriver) Issuer(authority domain.PublicKey) (Address, uint8, error) {
	return Derive(d.program, NamespaceIssuer, authority.Bytes())
}

// Certificate locates a certificate by its global identifier. Callers bound
// the identifier length before deriving.
func (d *Deriver) Certificate(certificateID string) (Address, uint8, error) {
	return Derive(d.program, NamespaceCertificate, []byte(certificateID))
}
