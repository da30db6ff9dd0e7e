package models

import "certreg/pkg/domain"

// EventType names a registry state change.
type EventType string

const (
	EventRegistryInitialized EventType = "RegistryInitialized"
	EventIssuerRegistered    EventType = "IssuerRegistered"
	EventIssuerStatusUpdated EventType = "IssuerStatusUpdated"
	EventCertificateIssued   EventType = "CertificateIssued"
	EventCertificateRevoked  EventType = "CertificateRevoked"
)

// Event is the payload of one committed mutation.
type Event interface {
	EventType() EventType
}

type RegistryInitialized struct {
	Admin     domain.PublicKey `json:"admin"`
	Timestamp int64            `json:"timestamp"`
}

func (RegistryInitialized) EventType() EventType { return EventRegistryInitialized }

type IssuerRegistered struct {
	Issuer    domain.PublicKey `json:"issuer"`
	Name      string           `json:"name"`
	Timestamp int64            `json:"timestamp"`
}

func (IssuerRegistered) EventType() EventType { return EventIssuerRegistered }

type IssuerStatusUpdated struct {
	Issuer domain.PublicKey `json:"issuer"`
	Active bool             `json:"active"`
}

func (IssuerStatusUpdated) EventType() EventType { return EventIssuerStatusUpdated }

type CertificateIssued struct {
	CertificateID string           `json:"certificate_id"`
	Issuer        domain.PublicKey `json:"issuer"`
	Recipient     domain.PublicKey `json:"recipient"`
	IssueDate     int64            `json:"issue_date"`
	MetadataURI   string           `json:"metadata_uri"`
}

func (CertificateIssued) EventType() EventType { return EventCertificateIssued }

type CertificateRevoked struct {
	CertificateID string           `json:"certificate_id"`
	Issuer        domain.PublicKey `json:"issuer"`
	Timestamp     int64            `json:"timestamp"`
}

func (CertificateRevoked) EventType() EventType { return EventCertificateRevoked }
