package agent

import (
	"context"

	"github.com/goccy/go-json"

	credmodel "github.com/tantan-solutions/vc-exchange-service/internal/credential"
)

// CredentialAgent is the boundary to the wallet agent that speaks the
// underlying issuance and presentation protocols. Implementations must not
// hold locks across calls; every method is safe for concurrent use.
type CredentialAgent interface {
	// CreateCredentialOffer mints an offer for a single credential type.
	CreateCredentialOffer(ctx context.Context, request CreateOfferRequest) (*CreateOfferResponse, error)

	// ResolveCredentialOffer resolves an offer payload into issuer metadata
	// and the credentials available under it.
	ResolveCredentialOffer(ctx context.Context, offer json.RawMessage) (*ResolvedCredentialOffer, error)

	// RequestToken obtains an access token for a resolved offer.
	RequestToken(ctx context.Context, resolved ResolvedCredentialOffer) (*TokenResponse, error)

	// RequestCredentials exchanges a token for the offered credentials.
	RequestCredentials(ctx context.Context, request RequestCredentialsRequest) ([]credmodel.StoredCredential, error)

	// ResolveAuthorizationRequest resolves a presentation request URI.
	ResolveAuthorizationRequest(ctx context.Context, requestURI string) (*ResolvedAuthorizationRequest, error)

	// AcceptAuthorizationRequest submits matching credentials for a
	// previously resolved presentation request.
	AcceptAuthorizationRequest(ctx context.Context, resolved ResolvedAuthorizationRequest) (*PresentationResult, error)

	// CreateAuthorizationRequest publishes a presentation request built
	// from a presentation definition and returns its URI.
	CreateAuthorizationRequest(ctx context.Context, request CreateAuthorizationRequestRequest) (*CreateAuthorizationRequestResponse, error)
}
