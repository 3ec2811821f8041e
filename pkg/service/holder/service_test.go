package holder

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tantan-solutions/vc-exchange-service/config"
	credmodel "github.com/tantan-solutions/vc-exchange-service/internal/credential"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/storage"
)

var proofRequestIDPattern = regexp.MustCompile(`^resolved:\d+-[0-9a-f]{7}$`)

func TestResolveCredentialOffer(t *testing.T) {
	svc, stub, _ := newTestService(t)
	stub.resolvedOffer = &agent.ResolvedCredentialOffer{
		Metadata: agent.OfferMetadata{TokenEndpoint: "https://issuer.example/token"},
		OfferedCredentials: []agent.OfferedCredential{
			{ID: "university-degree", Format: "jwt_vc_json"},
			{ID: "open-badge", Format: "vc+sd-jwt"},
		},
	}

	resp, err := svc.ResolveCredentialOffer(context.Background(), ResolveCredentialOfferRequest{
		CredentialOffer: json.RawMessage(`{"credential_issuer":"https://issuer.example"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"university-degree", "open-badge"}, resp.CredentialsToRequest)
}

func TestResolveCredentialOfferRequiresOffer(t *testing.T) {
	svc, stub, _ := newTestService(t)

	_, err := svc.ResolveCredentialOffer(context.Background(), ResolveCredentialOfferRequest{})
	require.Error(t, err)
	assert.Equal(t, framework.ValidationError, framework.KindOf(err))
	assert.Equal(t, 0, stub.calls)
}

func TestRequestCredentials(t *testing.T) {
	svc, stub, _ := newTestService(t)
	stub.credentials = []credmodel.StoredCredential{
		{Type: credmodel.RecordTypeW3C, Credential: json.RawMessage(`{"type":"VerifiableCredential"}`)},
	}

	resp, err := svc.RequestCredentials(context.Background(), RequestCredentialsRequest{
		Resolved:             validResolvedOffer(),
		CredentialsToRequest: []string{"university-degree"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Credentials, 1)
	assert.Equal(t, credmodel.ClaimFormatLDPVC, resp.Credentials[0].ClaimFormat)
}

func TestRequestCredentialsRejectsEmptyAccessToken(t *testing.T) {
	svc, stub, _ := newTestService(t)
	stub.token = &agent.TokenResponse{}

	_, err := svc.RequestCredentials(context.Background(), RequestCredentialsRequest{
		Resolved:             validResolvedOffer(),
		CredentialsToRequest: []string{"university-degree"},
	})
	require.Error(t, err)
	assert.Equal(t, framework.UpstreamAgentError, framework.KindOf(err))
	assert.Equal(t, 1, stub.calls)
}

func TestRequestCredentialsValidatesMetadata(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*agent.ResolvedCredentialOffer)
		missing string
	}{
		{
			name:    "no token endpoint",
			mutate:  func(r *agent.ResolvedCredentialOffer) { r.Metadata.TokenEndpoint = "" },
			missing: "token endpoint",
		},
		{
			name:    "no credential endpoint",
			mutate:  func(r *agent.ResolvedCredentialOffer) { r.Metadata.CredentialEndpoint = "" },
			missing: "credential endpoint",
		},
		{
			name:    "no issuer metadata",
			mutate:  func(r *agent.ResolvedCredentialOffer) { r.Metadata.CredentialIssuerMetadata = nil },
			missing: "issuer metadata",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, stub, _ := newTestService(t)
			resolved := validResolvedOffer()
			tt.mutate(&resolved)

			_, err := svc.RequestCredentials(context.Background(), RequestCredentialsRequest{Resolved: resolved})
			require.Error(t, err)
			assert.Equal(t, framework.ValidationError, framework.KindOf(err))
			assert.Contains(t, err.Error(), tt.missing)
			assert.Equal(t, 0, stub.calls)
		})
	}
}

func TestResolveProofRequest(t *testing.T) {
	svc, stub, _ := newTestService(t)
	stub.resolvedAuthRequest = &agent.ResolvedAuthorizationRequest{
		Purpose:               "Present your degree.",
		RequirementsSatisfied: true,
	}

	resp, err := svc.ResolveProofRequest(context.Background(), ResolveProofRequestRequest{
		ProofRequestURI: "openid://?request_uri=https%3A%2F%2Fverifier.example",
	})
	require.NoError(t, err)
	assert.Regexp(t, proofRequestIDPattern, resp.ID)
	assert.Equal(t, "Present your degree.", resp.Purpose)
	assert.True(t, resp.RequirementsSatisfied)
}

func TestResolveProofRequestUnsatisfiedRequirements(t *testing.T) {
	svc, stub, db := newTestService(t)
	stub.resolvedAuthRequest = &agent.ResolvedAuthorizationRequest{RequirementsSatisfied: false}

	_, err := svc.ResolveProofRequest(context.Background(), ResolveProofRequestRequest{
		ProofRequestURI: "openid://?request_uri=https%3A%2F%2Fverifier.example",
	})
	require.Error(t, err)
	assert.Equal(t, framework.ValidationError, framework.KindOf(err))

	records, err := db.ReadAll(context.Background(), namespace)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAcceptProofRequest(t *testing.T) {
	svc, stub, _ := newTestService(t)
	stub.resolvedAuthRequest = &agent.ResolvedAuthorizationRequest{RequirementsSatisfied: true}
	stub.presentationResult = &agent.PresentationResult{
		Status: 200,
		SubmittedCredentials: []credmodel.StoredCredential{
			{Type: credmodel.RecordTypeW3C, Credential: json.RawMessage(`{"type":"VerifiableCredential"}`)},
		},
	}

	resolved := resolveProofRequest(t, svc)
	resp, err := svc.AcceptProofRequest(context.Background(), AcceptProofRequestRequest{ID: resolved.ID})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	require.Len(t, resp.Credentials, 1)
}

func TestAcceptProofRequestUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.AcceptProofRequest(context.Background(), AcceptProofRequestRequest{ID: "resolved:0-0000000"})
	require.Error(t, err)
	assert.Equal(t, framework.NotFoundOrAlreadyUsed, framework.KindOf(err))
}

func TestAcceptProofRequestIsSingleUse(t *testing.T) {
	svc, stub, _ := newTestService(t)
	stub.resolvedAuthRequest = &agent.ResolvedAuthorizationRequest{RequirementsSatisfied: true}
	stub.presentationResult = &agent.PresentationResult{Status: 200}

	resolved := resolveProofRequest(t, svc)
	_, err := svc.AcceptProofRequest(context.Background(), AcceptProofRequestRequest{ID: resolved.ID})
	require.NoError(t, err)

	_, err = svc.AcceptProofRequest(context.Background(), AcceptProofRequestRequest{ID: resolved.ID})
	require.Error(t, err)
	assert.Equal(t, framework.NotFoundOrAlreadyUsed, framework.KindOf(err))
}

func TestAcceptProofRequestAfterExpiry(t *testing.T) {
	svc, stub, _ := newTestService(t)
	stub.resolvedAuthRequest = &agent.ResolvedAuthorizationRequest{RequirementsSatisfied: true}

	resolved := resolveProofRequest(t, svc)
	svc.clk.(*clock.Mock).Add(config.DefaultProofRequestExpiry + time.Second)

	_, err := svc.AcceptProofRequest(context.Background(), AcceptProofRequestRequest{ID: resolved.ID})
	require.Error(t, err)
	assert.Equal(t, framework.NotFoundOrAlreadyUsed, framework.KindOf(err))
}

func TestAcceptProofRequestSingleWinnerUnderContention(t *testing.T) {
	svc, stub, _ := newTestService(t)
	stub.resolvedAuthRequest = &agent.ResolvedAuthorizationRequest{RequirementsSatisfied: true}
	stub.presentationResult = &agent.PresentationResult{Status: 200}

	resolved := resolveProofRequest(t, svc)

	const callers = 50
	var wg sync.WaitGroup
	outcomes := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AcceptProofRequest(context.Background(), AcceptProofRequestRequest{ID: resolved.ID})
			outcomes <- err
		}()
	}
	wg.Wait()
	close(outcomes)

	var wins, losses int
	for err := range outcomes {
		if err == nil {
			wins++
			continue
		}
		require.Equal(t, framework.NotFoundOrAlreadyUsed, framework.KindOf(err))
		losses++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, losses)
}

func newTestService(t *testing.T) (*Service, *stubAgent, storage.ServiceStorage) {
	t.Helper()
	clk := clock.NewMock()
	db := storage.NewMemoryDB(clk)
	t.Cleanup(func() { _ = db.Close() })
	stub := &stubAgent{}

	svc, err := NewHolderService(
		config.HolderServiceConfig{BaseServiceConfig: &config.BaseServiceConfig{Name: "holder"}},
		db, stub, credmodel.NewNormalizer(credmodel.NewSDJWTProcessor()), clk)
	require.NoError(t, err)
	return svc, stub, db
}

func validResolvedOffer() agent.ResolvedCredentialOffer {
	return agent.ResolvedCredentialOffer{
		Metadata: agent.OfferMetadata{
			TokenEndpoint:            "https://issuer.example/token",
			CredentialEndpoint:       "https://issuer.example/credential",
			CredentialIssuerMetadata: map[string]any{"credential_issuer": "https://issuer.example"},
		},
		OfferedCredentials: []agent.OfferedCredential{{ID: "university-degree"}},
	}
}

func resolveProofRequest(t *testing.T, svc *Service) *ResolveProofRequestResponse {
	t.Helper()
	resolved, err := svc.ResolveProofRequest(context.Background(), ResolveProofRequestRequest{
		ProofRequestURI: "openid://?request_uri=https%3A%2F%2Fverifier.example",
	})
	require.NoError(t, err)
	return resolved
}

type stubAgent struct {
	calls               int
	resolvedOffer       *agent.ResolvedCredentialOffer
	token               *agent.TokenResponse
	credentials         []credmodel.StoredCredential
	resolvedAuthRequest *agent.ResolvedAuthorizationRequest
	presentationResult  *agent.PresentationResult
}

func (s *stubAgent) CreateCredentialOffer(context.Context, agent.CreateOfferRequest) (*agent.CreateOfferResponse, error) {
	s.calls++
	return nil, framework.NewError(framework.UpstreamAgentError, "not implemented")
}

func (s *stubAgent) ResolveCredentialOffer(context.Context, json.RawMessage) (*agent.ResolvedCredentialOffer, error) {
	s.calls++
	if s.resolvedOffer == nil {
		return nil, framework.NewError(framework.UpstreamAgentError, "no resolved offer configured")
	}
	return s.resolvedOffer, nil
}

func (s *stubAgent) RequestToken(context.Context, agent.ResolvedCredentialOffer) (*agent.TokenResponse, error) {
	s.calls++
	if s.token != nil {
		return s.token, nil
	}
	return &agent.TokenResponse{AccessToken: "token"}, nil
}

func (s *stubAgent) RequestCredentials(context.Context, agent.RequestCredentialsRequest) ([]credmodel.StoredCredential, error) {
	s.calls++
	return s.credentials, nil
}

func (s *stubAgent) ResolveAuthorizationRequest(context.Context, string) (*agent.ResolvedAuthorizationRequest, error) {
	s.calls++
	if s.resolvedAuthRequest == nil {
		return nil, framework.NewError(framework.UpstreamAgentError, "no resolved authorization request configured")
	}
	return s.resolvedAuthRequest, nil
}

func (s *stubAgent) AcceptAuthorizationRequest(context.Context, agent.ResolvedAuthorizationRequest) (*agent.PresentationResult, error) {
	s.calls++
	if s.presentationResult == nil {
		return nil, framework.NewError(framework.UpstreamAgentError, "no presentation result configured")
	}
	return s.presentationResult, nil
}

func (s *stubAgent) CreateAuthorizationRequest(context.Context, agent.CreateAuthorizationRequestRequest) (*agent.CreateAuthorizationRequestResponse, error) {
	s.calls++
	return nil, framework.NewError(framework.UpstreamAgentError, "not implemented")
}
