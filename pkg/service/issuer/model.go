package issuer

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
)

// IssuanceSessionRecord is the persisted audit record of one issuance
// exchange. Records are never deleted; terminal sessions stay readable.
type IssuanceSessionRecord struct {
	ID               string             `json:"id"`
	State            agent.SessionState `json:"state"`
	CredentialType   string             `json:"credentialType"`
	CredentialOffer  json.RawMessage    `json:"credentialOffer,omitempty"`
	OfferURI         string             `json:"offerUri,omitempty"`
	IssuanceMetadata map[string]any     `json:"issuanceMetadata,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

type CreateIssuanceOfferRequest struct {
	CredentialType string         `json:"credentialType" validate:"required"`
	Claims         map[string]any `json:"claims" validate:"required"`
}

type CreateIssuanceOfferResponse struct {
	SessionID       string             `json:"sessionId"`
	State           agent.SessionState `json:"state"`
	CredentialOffer json.RawMessage    `json:"credentialOffer"`
	OfferURI        string             `json:"offerUri,omitempty"`
}

type GetIssuanceSessionResponse struct {
	Session IssuanceSessionRecord `json:"session"`
}

type ListIssuanceSessionsResponse struct {
	Sessions []IssuanceSessionRecord `json:"sessions"`
}
