package handler

import "certreg/internal/registry/models"

type RegisterIssuerRequest struct {
	Authority string `json:"authority"`
	Name      string `json:"name"`
	Details   string `json:"details"`
}

type UpdateIssuerStatusRequest struct {
	Active *bool `json:"active"`
}

type IssueCertificateRequest struct {
	CertificateID string `json:"certificate_id"`
	Recipient     string `json:"recipient"`
	MetadataURI   string `json:"metadata_uri"`
	ExpiryDate    int64  `json:"expiry_date"`
}

type RegistryResponse struct {
	Address string `json:"address"`
	*models.Registry
}

type IssuerResponse struct {
	Address string `json:"address"`
	*models.Issuer
}

type CertificateResponse struct {
	Address string `json:"address"`
	*models.Certificate
}

// VerifyResponse adds the evaluation at request time.
type VerifyResponse struct {
	CertificateResponse
	Status models.Status `json:"status"`
}

type CertificateListResponse struct {
	Certificates []CertificateResponse `json:"certificates"`
	Count        int                   `json:"count"`
}

type AddressResponse struct {
	Namespace string `json:"namespace"`
	Address   string `json:"address"`
	Bump      uint8  `json:"bump"`
}
