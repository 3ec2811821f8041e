package verifier

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tantan-solutions/vc-exchange-service/config"
	credmodel "github.com/tantan-solutions/vc-exchange-service/internal/credential"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
)

func TestCreateProofRequest(t *testing.T) {
	stub := &stubAgent{uri: "openid://?request_uri=https%3A%2F%2Fverifier.example%2Fabc"}
	svc := newTestService(t, stub)

	resp, err := svc.CreateProofRequest(context.Background(), CreateProofRequestRequest{
		PresentationDefinitionID: "UniversityDegreeCredential",
	})
	require.NoError(t, err)
	assert.Equal(t, stub.uri, resp.ProofRequestURI)
	assert.Contains(t, resp.Purpose, "education")

	require.NotNil(t, stub.lastDefinition)
	assert.Equal(t, "UniversityDegreeCredential", stub.lastDefinition["id"])
	descriptors, ok := stub.lastDefinition["input_descriptors"].([]any)
	require.True(t, ok)
	require.Len(t, descriptors, 1)
}

func TestCreateProofRequestGenericDefinitionHasNoConstraints(t *testing.T) {
	stub := &stubAgent{uri: "openid://generic"}
	svc := newTestService(t, stub)

	_, err := svc.CreateProofRequest(context.Background(), CreateProofRequestRequest{
		PresentationDefinitionID: "genericCredential",
	})
	require.NoError(t, err)

	descriptors := stub.lastDefinition["input_descriptors"].([]any)
	constraints := descriptors[0].(map[string]any)["constraints"].(map[string]any)
	assert.Empty(t, constraints)
}

func TestCreateProofRequestUnknownDefinition(t *testing.T) {
	stub := &stubAgent{}
	svc := newTestService(t, stub)

	_, err := svc.CreateProofRequest(context.Background(), CreateProofRequestRequest{
		PresentationDefinitionID: "PilotsLicenseCredential",
	})
	require.Error(t, err)
	assert.Equal(t, framework.UnsupportedCredentialType, framework.KindOf(err))
	assert.Nil(t, stub.lastDefinition)
}

func TestCreateProofRequestAgentFailure(t *testing.T) {
	stub := &stubAgent{err: framework.NewError(framework.UpstreamAgentError, "agent offline")}
	svc := newTestService(t, stub)

	_, err := svc.CreateProofRequest(context.Background(), CreateProofRequestRequest{
		PresentationDefinitionID: "genericCredential",
	})
	require.Error(t, err)
	assert.Equal(t, framework.UpstreamAgentError, framework.KindOf(err))
}

func newTestService(t *testing.T, stub *stubAgent) *Service {
	t.Helper()
	svc, err := NewVerifierService(config.VerifierServiceConfig{
		BaseServiceConfig:       &config.BaseServiceConfig{Name: "verifier"},
		PresentationDefinitions: config.DefaultPresentationDefinitions(),
	}, stub)
	require.NoError(t, err)
	return svc
}

type stubAgent struct {
	uri            string
	err            error
	lastDefinition map[string]any
}

func (s *stubAgent) CreateAuthorizationRequest(_ context.Context, request agent.CreateAuthorizationRequestRequest) (*agent.CreateAuthorizationRequestResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastDefinition = request.PresentationDefinition
	return &agent.CreateAuthorizationRequestResponse{ProofRequestURI: s.uri}, nil
}

func (s *stubAgent) CreateCredentialOffer(context.Context, agent.CreateOfferRequest) (*agent.CreateOfferResponse, error) {
	return nil, framework.NewError(framework.UpstreamAgentError, "not implemented")
}

func (s *stubAgent) ResolveCredentialOffer(context.Context, json.RawMessage) (*agent.ResolvedCredentialOffer, error) {
	return nil, framework.NewError(framework.UpstreamAgentError, "not implemented")
}

func (s *stubAgent) RequestToken(context.Context, agent.ResolvedCredentialOffer) (*agent.TokenResponse, error) {
	return nil, framework.NewError(framework.UpstreamAgentError, "not implemented")
}

func (s *stubAgent) RequestCredentials(context.Context, agent.RequestCredentialsRequest) ([]credmodel.StoredCredential, error) {
	return nil, framework.NewError(framework.UpstreamAgentError, "not implemented")
}

func (s *stubAgent) ResolveAuthorizationRequest(context.Context, string) (*agent.ResolvedAuthorizationRequest, error) {
	return nil, framework.NewError(framework.UpstreamAgentError, "not implemented")
}

func (s *stubAgent) AcceptAuthorizationRequest(context.Context, agent.ResolvedAuthorizationRequest) (*agent.PresentationResult, error) {
	return nil, framework.NewError(framework.UpstreamAgentError, "not implemented")
}
