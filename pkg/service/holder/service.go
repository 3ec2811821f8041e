package holder

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tantan-solutions/vc-exchange-service/config"
	credmodel "github.com/tantan-solutions/vc-exchange-service/internal/credential"
	"github.com/tantan-solutions/vc-exchange-service/internal/util"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/storage"
)

// Service drives the holder side of an exchange: resolving offers,
// collecting credentials, and bridging presentation requests into
// single-use claimable records.
type Service struct {
	config     config.HolderServiceConfig
	storage    *Storage
	agent      agent.CredentialAgent
	normalizer *credmodel.Normalizer
	clk        clock.Clock
}

func (s *Service) Type() framework.Type {
	return framework.Holder
}

func (s *Service) Status() framework.Status {
	if s.storage == nil || !s.storage.db.IsOpen() {
		return framework.Status{Status: framework.StatusNotReady, Message: "storage is not available"}
	}
	if s.agent == nil {
		return framework.Status{Status: framework.StatusNotReady, Message: "no credential agent configured"}
	}
	return framework.Status{Status: framework.StatusReady}
}

func NewHolderService(cfg config.HolderServiceConfig, db storage.ServiceStorage, credentialAgent agent.CredentialAgent, normalizer *credmodel.Normalizer, clk clock.Clock) (*Service, error) {
	expiry := cfg.ProofRequestExpiry
	if expiry <= 0 {
		expiry = config.DefaultProofRequestExpiry
	}
	proofRequestStorage, err := NewProofRequestStorage(db, expiry)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "instantiating storage for the holder service")
	}
	return &Service{
		config:     cfg,
		storage:    proofRequestStorage,
		agent:      credentialAgent,
		normalizer: normalizer,
		clk:        clk,
	}, nil
}

// ResolveCredentialOffer resolves an offer payload through the agent and
// reports which credentials are available under it.
func (s *Service) ResolveCredentialOffer(ctx context.Context, request ResolveCredentialOfferRequest) (*ResolveCredentialOfferResponse, error) {
	if len(request.CredentialOffer) == 0 {
		return nil, framework.NewError(framework.ValidationError, "credential offer is required")
	}

	resolved, err := s.agent.ResolveCredentialOffer(ctx, request.CredentialOffer)
	if err != nil {
		return nil, util.LoggingError(err)
	}

	toRequest := make([]string, 0, len(resolved.OfferedCredentials))
	for _, offered := range resolved.OfferedCredentials {
		toRequest = append(toRequest, offered.ID)
	}
	return &ResolveCredentialOfferResponse{Resolved: *resolved, CredentialsToRequest: toRequest}, nil
}

// RequestCredentials exchanges a resolved offer for credentials, storing
// them in the wallet and returning them in normalized form. The resolved
// offer's issuer metadata is checked before any agent call.
func (s *Service) RequestCredentials(ctx context.Context, request RequestCredentialsRequest) (*RequestCredentialsResponse, error) {
	if err := validateResolvedOffer(request.Resolved); err != nil {
		return nil, framework.WrapError(framework.ValidationError, err, "validating resolved credential offer")
	}

	token, err := s.agent.RequestToken(ctx, request.Resolved)
	if err != nil {
		return nil, util.LoggingError(err)
	}
	if token.AccessToken == "" {
		return nil, util.LoggingError(framework.NewError(framework.UpstreamAgentError, "token response carries no access token"))
	}

	records, err := s.agent.RequestCredentials(ctx, agent.RequestCredentialsRequest{
		ResolvedOffer:        request.Resolved,
		Token:                *token,
		CredentialsToRequest: request.CredentialsToRequest,
	})
	if err != nil {
		return nil, util.LoggingError(err)
	}

	return &RequestCredentialsResponse{Credentials: s.normalizer.NormalizeAll(records)}, nil
}

func validateResolvedOffer(resolved agent.ResolvedCredentialOffer) error {
	if resolved.Metadata.TokenEndpoint == "" {
		return errors.New("resolved offer has no token endpoint")
	}
	if resolved.Metadata.CredentialEndpoint == "" {
		return errors.New("resolved offer has no credential endpoint")
	}
	if len(resolved.Metadata.CredentialIssuerMetadata) == 0 {
		return errors.New("resolved offer has no credential issuer metadata")
	}
	return nil
}

// ResolveProofRequest resolves a presentation request URI and, when the
// wallet can satisfy it, mints a single-use claimable record for it.
func (s *Service) ResolveProofRequest(ctx context.Context, request ResolveProofRequestRequest) (*ResolveProofRequestResponse, error) {
	if request.ProofRequestURI == "" {
		return nil, framework.NewError(framework.ValidationError, "proof request uri is required")
	}

	resolved, err := s.agent.ResolveAuthorizationRequest(ctx, request.ProofRequestURI)
	if err != nil {
		return nil, util.LoggingError(err)
	}
	if !resolved.RequirementsSatisfied {
		return nil, framework.NewError(framework.ValidationError, "no stored credentials satisfy the proof request")
	}

	record := ProofRequestRecord{
		ID:              s.newProofRequestID(),
		Status:          StatusPending,
		ProofRequestURI: request.ProofRequestURI,
		Purpose:         resolved.Purpose,
		CreatedAt:       s.clk.Now().UTC(),
	}
	if err = s.storage.StoreProofRequest(ctx, record); err != nil {
		return nil, framework.WrapError(framework.StoreUnavailable, err, "persisting proof request")
	}

	return &ResolveProofRequestResponse{
		ID:                    record.ID,
		Purpose:               record.Purpose,
		RequirementsSatisfied: true,
	}, nil
}

// AcceptProofRequest claims a resolved proof request and presents the
// matching credentials. The claim is atomic: of any number of concurrent
// calls with the same id, exactly one proceeds to the agent.
func (s *Service) AcceptProofRequest(ctx context.Context, request AcceptProofRequestRequest) (*AcceptProofRequestResponse, error) {
	if request.ID == "" {
		return nil, framework.NewError(framework.ValidationError, "proof request id is required")
	}

	record, err := s.storage.ClaimProofRequest(ctx, request.ID)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) || errors.Is(err, storage.ErrUpdateConditionFailed) {
			return nil, framework.WrapErrorf(framework.NotFoundOrAlreadyUsed, err, "proof request %s", request.ID)
		}
		return nil, framework.WrapError(framework.StoreUnavailable, err, "claiming proof request")
	}

	resolved, err := s.agent.ResolveAuthorizationRequest(ctx, record.ProofRequestURI)
	if err != nil {
		return nil, util.LoggingError(err)
	}
	result, err := s.agent.AcceptAuthorizationRequest(ctx, *resolved)
	if err != nil {
		return nil, util.LoggingError(err)
	}

	return &AcceptProofRequestResponse{
		Status:      result.Status,
		Credentials: s.normalizer.NormalizeAll(result.SubmittedCredentials),
	}, nil
}

// newProofRequestID mints ids of the form resolved:<unix-ms>-<suffix>. The
// timestamp orders records for operators, the suffix disambiguates ids
// minted in the same millisecond.
func (s *Service) newProofRequestID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
	return fmt.Sprintf("resolved:%d-%s", s.clk.Now().UnixMilli(), suffix)
}
