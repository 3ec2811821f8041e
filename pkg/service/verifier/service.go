package verifier

import (
	"context"

	"github.com/tantan-solutions/vc-exchange-service/config"
	"github.com/tantan-solutions/vc-exchange-service/internal/util"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
)

type CreateProofRequestRequest struct {
	PresentationDefinitionID string `json:"presentationDefinitionId" validate:"required"`
}

type CreateProofRequestResponse struct {
	ProofRequestURI string `json:"proofRequestUri"`
	Purpose         string `json:"purpose,omitempty"`
}

// Service publishes presentation requests from the configured set of
// presentation definitions.
type Service struct {
	config      config.VerifierServiceConfig
	agent       agent.CredentialAgent
	definitions map[string]config.PresentationDefinition
}

func (s *Service) Type() framework.Type {
	return framework.Verifier
}

func (s *Service) Status() framework.Status {
	if s.agent == nil {
		return framework.Status{Status: framework.StatusNotReady, Message: "no credential agent configured"}
	}
	return framework.Status{Status: framework.StatusReady}
}

func NewVerifierService(cfg config.VerifierServiceConfig, credentialAgent agent.CredentialAgent) (*Service, error) {
	definitions := make(map[string]config.PresentationDefinition, len(cfg.PresentationDefinitions))
	for _, definition := range cfg.PresentationDefinitions {
		definitions[definition.ID] = definition
	}
	if len(definitions) == 0 {
		return nil, util.LoggingNewError("verifier service requires at least one presentation definition")
	}
	return &Service{config: cfg, agent: credentialAgent, definitions: definitions}, nil
}

// CreateProofRequest looks up the named presentation definition and has the
// agent publish a presentation request for it.
func (s *Service) CreateProofRequest(ctx context.Context, request CreateProofRequestRequest) (*CreateProofRequestResponse, error) {
	definition, ok := s.definitions[request.PresentationDefinitionID]
	if !ok {
		return nil, framework.NewErrorf(framework.UnsupportedCredentialType, "unsupported presentation definition: %s", request.PresentationDefinitionID)
	}

	created, err := s.agent.CreateAuthorizationRequest(ctx, agent.CreateAuthorizationRequestRequest{
		PresentationDefinition: presentationDefinitionPayload(definition),
	})
	if err != nil {
		return nil, util.LoggingError(err)
	}

	return &CreateProofRequestResponse{
		ProofRequestURI: created.ProofRequestURI,
		Purpose:         definition.Purpose,
	}, nil
}

// presentationDefinitionPayload renders a definition as a presentation
// exchange object. An empty pattern places no constraint on the credential
// type presented.
func presentationDefinitionPayload(definition config.PresentationDefinition) map[string]any {
	constraints := map[string]any{}
	if definition.Pattern != "" {
		constraints["fields"] = []any{
			map[string]any{
				"path": []any{"$.type", "$.vc.type", "$.vct"},
				"filter": map[string]any{
					"type":    "string",
					"pattern": definition.Pattern,
				},
			},
		}
	}
	return map[string]any{
		"id":      definition.ID,
		"purpose": definition.Purpose,
		"input_descriptors": []any{
			map[string]any{
				"id":          definition.ID,
				"constraints": constraints,
			},
		},
	}
}
