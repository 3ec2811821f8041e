package holder

import (
	"time"

	"github.com/goccy/go-json"

	credmodel "github.com/tantan-solutions/vc-exchange-service/internal/credential"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
)

// ProofRequestStatus tracks whether a resolved proof request has been
// consumed. A record is claimable exactly once.
type ProofRequestStatus string

const (
	StatusPending ProofRequestStatus = "pending"
	StatusUsed    ProofRequestStatus = "used"
)

// ProofRequestRecord is a claimable handle onto a resolved presentation
// request. Records expire from storage after the configured TTL.
type ProofRequestRecord struct {
	ID              string             `json:"id"`
	Status          ProofRequestStatus `json:"status"`
	ProofRequestURI string             `json:"proofRequestUri"`
	Purpose         string             `json:"purpose,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

type ResolveCredentialOfferRequest struct {
	CredentialOffer json.RawMessage `json:"credentialOffer" validate:"required"`
}

type ResolveCredentialOfferResponse struct {
	Resolved             agent.ResolvedCredentialOffer `json:"resolvedCredentialOffer"`
	CredentialsToRequest []string                      `json:"credentialsToRequest"`
}

type RequestCredentialsRequest struct {
	Resolved             agent.ResolvedCredentialOffer `json:"resolvedCredentialOffer" validate:"required"`
	CredentialsToRequest []string                      `json:"credentialsToRequest"`
}

type RequestCredentialsResponse struct {
	Credentials []credmodel.NormalizedCredential `json:"credentials"`
}

type ResolveProofRequestRequest struct {
	ProofRequestURI string `json:"proofRequestUri" validate:"required"`
}

type ResolveProofRequestResponse struct {
	ID                    string `json:"id"`
	Purpose               string `json:"purpose,omitempty"`
	RequirementsSatisfied bool   `json:"requirementsSatisfied"`
}

type AcceptProofRequestRequest struct {
	ID string `json:"id" validate:"required"`
}

type AcceptProofRequestResponse struct {
	Status      int                              `json:"status"`
	Credentials []credmodel.NormalizedCredential `json:"credentials,omitempty"`
}
