package models

import "certreg/pkg/domain"

// Registry is the deployment singleton.
//
// Invariants:
//   - Exactly one per deployment, at the registry address
//   - Admin is fixed at initialization
//   - Counters only ever increase
type Registry struct {
	Admin             domain.PublicKey `json:"admin"`
	TotalCertificates uint64           `json:"total_certificates"`
	TotalIssuers      uint64           `json:"total_issuers"`
	Bump              uint8            `json:"bump"`
}

func NewRegistry(admin domain.PublicKey, bump uint8) *Registry {
	return &Registry{Admin: admin, Bump: bump}
}

func (r *Registry) IsAdmin(signer domain.PublicKey) bool {
	return !signer.IsZero() && r.Admin == signer
}

func (r *Registry) RecordIssuerRegistered() {
	r.TotalIssuers++
}

func (r *Registry) RecordCertificateIssued() {
	r.TotalCertificates++
}
