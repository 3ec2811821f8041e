package agent

import (
	"github.com/goccy/go-json"

	credmodel "github.com/tantan-solutions/vc-exchange-service/internal/credential"
)

// SessionState is the lifecycle state of an issuance session as reported
// by the agent. States arrive as events and are persisted last-write-wins,
// so handlers must tolerate duplicates and out-of-order delivery.
type SessionState string

const (
	StateOfferCreated               SessionState = "OfferCreated"
	StateOfferURIRetrieved          SessionState = "OfferUriRetrieved"
	StateAccessTokenRequested       SessionState = "AccessTokenRequested"
	StateAccessTokenCreated         SessionState = "AccessTokenCreated"
	StateCredentialRequestReceived  SessionState = "CredentialRequestReceived"
	StateCredentialsPartiallyIssued SessionState = "CredentialsPartiallyIssued"
	StateCompleted                  SessionState = "Completed"
	StateError                      SessionState = "Error"
)

// IsTerminal reports whether no further state changes can follow.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

func (s SessionState) IsKnown() bool {
	switch s {
	case StateOfferCreated, StateOfferURIRetrieved, StateAccessTokenRequested,
		StateAccessTokenCreated, StateCredentialRequestReceived,
		StateCredentialsPartiallyIssued, StateCompleted, StateError:
		return true
	}
	return false
}

// IssuanceSession is the agent's view of a single issuance exchange.
type IssuanceSession struct {
	ID                string       `json:"id"`
	State             SessionState `json:"state"`
	CredentialType    string       `json:"credentialType,omitempty"`
	PreAuthorizedCode string       `json:"preAuthorizedCode,omitempty"`
}

// CreateOfferRequest asks the agent to mint a credential offer for a single
// credential type, carrying the issuance claims the credential will embed.
type CreateOfferRequest struct {
	CredentialType   string         `json:"credentialType"`
	IssuanceMetadata map[string]any `json:"issuanceMetadata"`
}

// CreateOfferResponse carries the offer payload the holder will resolve and
// the session tracking its progress.
type CreateOfferResponse struct {
	CredentialOffer json.RawMessage `json:"credentialOffer"`
	OfferURI        string          `json:"offerUri,omitempty"`
	Session         IssuanceSession `json:"issuanceSession"`
}

// OfferMetadata is the issuer metadata discovered while resolving an offer.
// TokenEndpoint and CredentialEndpoint must both be present before
// credentials can be requested against the offer.
type OfferMetadata struct {
	TokenEndpoint            string         `json:"token_endpoint,omitempty"`
	CredentialEndpoint       string         `json:"credential_endpoint,omitempty"`
	CredentialIssuerMetadata map[string]any `json:"credentialIssuerMetadata,omitempty"`
}

// OfferedCredential identifies one credential available under an offer.
type OfferedCredential struct {
	ID     string   `json:"id"`
	Format string   `json:"format,omitempty"`
	Types  []string `json:"types,omitempty"`
}

// ResolvedCredentialOffer is the agent's resolution of an offer payload.
// Raw round-trips the agent's full resolution object on later calls.
type ResolvedCredentialOffer struct {
	Metadata           OfferMetadata       `json:"metadata"`
	OfferedCredentials []OfferedCredential `json:"offeredCredentials,omitempty"`
	Raw                json.RawMessage     `json:"raw,omitempty"`
}

// TokenResponse is the access token minted for a resolved offer.
type TokenResponse struct {
	AccessToken string          `json:"accessToken"`
	CNonce      string          `json:"cNonce,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// RequestCredentialsRequest exchanges a token for the offered credentials.
type RequestCredentialsRequest struct {
	ResolvedOffer        ResolvedCredentialOffer `json:"resolvedCredentialOffer"`
	Token                TokenResponse           `json:"tokenResponse"`
	CredentialsToRequest []string                `json:"credentialsToRequest,omitempty"`
}

// ResolvedAuthorizationRequest is the agent's resolution of a presentation
// request URI, reporting whether the wallet can satisfy it.
type ResolvedAuthorizationRequest struct {
	Purpose               string          `json:"purpose,omitempty"`
	RequirementsSatisfied bool            `json:"requirementsSatisfied"`
	Raw                   json.RawMessage `json:"raw,omitempty"`
}

// PresentationResult is the outcome of accepting a presentation request.
type PresentationResult struct {
	Status               int                          `json:"status"`
	SubmittedCredentials []credmodel.StoredCredential `json:"submittedCredentials,omitempty"`
	Raw                  json.RawMessage              `json:"raw,omitempty"`
}

// CreateAuthorizationRequestRequest asks the agent to publish a presentation
// request built from a presentation definition.
type CreateAuthorizationRequestRequest struct {
	PresentationDefinition map[string]any `json:"presentationDefinition"`
}

// CreateAuthorizationRequestResponse carries the URI a wallet dereferences
// to retrieve the request.
type CreateAuthorizationRequestResponse struct {
	ProofRequestURI string `json:"authorizationRequestUri"`
}
