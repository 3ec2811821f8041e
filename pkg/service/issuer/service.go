package issuer

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tantan-solutions/vc-exchange-service/config"
	"github.com/tantan-solutions/vc-exchange-service/internal/util"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/storage"
)

// Service tracks issuance sessions. Offers are created through the agent and
// every session's state is kept current from agent events, surviving
// restarts via ResumePendingSessions.
type Service struct {
	config  config.IssuerServiceConfig
	storage *Storage
	agent   agent.CredentialAgent
	events  agent.SessionEvents
	clk     clock.Clock

	definitions map[string]config.CredentialDefinition

	// listeners tracks the sessions whose events this instance applies.
	// Entries are removed once a session reaches a terminal state.
	listenerLock sync.Mutex
	listeners    map[string]struct{}

	cancelEvents func()
	done         chan struct{}
}

func (s *Service) Type() framework.Type {
	return framework.Issuer
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

func NewIssuerService(cfg config.IssuerServiceConfig, db storage.ServiceStorage, credentialAgent agent.CredentialAgent, events agent.SessionEvents, clk clock.Clock) (*Service, error) {
	issuanceStorage, err := NewIssuanceStorage(db)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "instantiating storage for the issuer service")
	}

	definitions := make(map[string]config.CredentialDefinition, len(cfg.CredentialDefinitions))
	for _, definition := range cfg.CredentialDefinitions {
		definitions[definition.ID] = definition
	}
	if len(definitions) == 0 {
		return nil, util.LoggingNewError("issuer service requires at least one credential definition")
	}

	return &Service{
		config:      cfg,
		storage:     issuanceStorage,
		agent:       credentialAgent,
		events:      events,
		clk:         clk,
		definitions: definitions,
		listeners:   make(map[string]struct{}),
	}, nil
}

// CreateIssuanceOffer validates the request against the credential type's
// claim contract, asks the agent for an offer, persists the session, and
// starts listening for its state events. Nothing is persisted when
// validation or the agent call fails.
func (s *Service) CreateIssuanceOffer(ctx context.Context, request CreateIssuanceOfferRequest) (*CreateIssuanceOfferResponse, error) {
	definition, ok := s.definitions[request.CredentialType]
	if !ok {
		return nil, framework.NewErrorf(framework.UnsupportedCredentialType, "unsupported credential type: %s", request.CredentialType)
	}
	if err := validateClaims(definition, request.Claims); err != nil {
		return nil, framework.WrapError(framework.ValidationError, err, "validating issuance claims")
	}

	offer, err := s.agent.CreateCredentialOffer(ctx, agent.CreateOfferRequest{
		CredentialType:   request.CredentialType,
		IssuanceMetadata: request.Claims,
	})
	if err != nil {
		return nil, util.LoggingError(err)
	}

	session := offer.Session
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if !session.State.IsKnown() {
		session.State = agent.StateOfferCreated
	}

	now := s.clk.Now().UTC()
	record := IssuanceSessionRecord{
		ID:               session.ID,
		State:            session.State,
		CredentialType:   request.CredentialType,
		CredentialOffer:  offer.CredentialOffer,
		OfferURI:         offer.OfferURI,
		IssuanceMetadata: request.Claims,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err = s.storage.StoreSession(ctx, record); err != nil {
		return nil, framework.WrapError(framework.StoreUnavailable, err, "persisting issuance session")
	}
	s.register(session.ID)

	return &CreateIssuanceOfferResponse{
		SessionID:       record.ID,
		State:           record.State,
		CredentialOffer: record.CredentialOffer,
		OfferURI:        record.OfferURI,
	}, nil
}

func validateClaims(definition config.CredentialDefinition, claims map[string]any) error {
	allowed := make(map[string]struct{}, len(definition.Required)+len(definition.Optional))
	for _, name := range definition.Required {
		allowed[name] = struct{}{}
	}
	for _, name := range definition.Optional {
		allowed[name] = struct{}{}
	}

	for _, name := range definition.Required {
		value, ok := claims[name]
		if !ok || value == "" || value == nil {
			return fmt.Errorf("missing required claim: %s", name)
		}
	}
	for name := range claims {
		if _, ok := allowed[name]; !ok {
			return fmt.Errorf("claim %s is not part of %s", name, definition.ID)
		}
	}
	return nil
}

func (s *Service) GetIssuanceSession(ctx context.Context, id string) (*GetIssuanceSessionResponse, error) {
	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return nil, framework.WrapErrorf(framework.StoreUnavailable, err, "reading session: %s", id)
	}
	if session == nil {
		return nil, framework.NewErrorf(framework.NotFoundOrAlreadyUsed, "session not found: %s", id)
	}
	return &GetIssuanceSessionResponse{Session: *session}, nil
}

func (s *Service) ListIssuanceSessions(ctx context.Context) (*ListIssuanceSessionsResponse, error) {
	sessions, err := s.storage.ListSessions(ctx)
	if err != nil {
		return nil, framework.WrapError(framework.StoreUnavailable, err, "listing sessions")
	}
	return &ListIssuanceSessionsResponse{Sessions: sessions}, nil
}

// ResumePendingSessions re-registers every non-terminal session so a restart
// does not orphan in-flight exchanges. Call before Start.
func (s *Service) ResumePendingSessions(ctx context.Context) error {
	sessions, err := s.storage.ListSessions(ctx)
	if err != nil {
		return framework.WrapError(framework.StoreUnavailable, err, "loading pending sessions")
	}
	resumed := 0
	for _, session := range sessions {
		if session.State.IsTerminal() {
			continue
		}
		s.register(session.ID)
		resumed++
	}
	if resumed > 0 {
		logrus.Infof("resumed %d pending issuance session(s)", resumed)
	}
	return nil
}

// Start subscribes to agent session events and applies them until Shutdown.
func (s *Service) Start() {
	eventCh, cancel := s.events.Subscribe()
	s.cancelEvents = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for event := range eventCh {
			s.handleEvent(context.Background(), event)
		}
	}()
}

func (s *Service) Shutdown() {
	if s.cancelEvents != nil {
		s.cancelEvents()
		<-s.done
	}
}

// handleEvent applies one state event. Events are idempotent: replaying a
// state the session already carries writes nothing. Terminal states drop
// the session from the listener set.
func (s *Service) handleEvent(ctx context.Context, event agent.SessionStateChangedEvent) {
	if !s.isListening(event.SessionID) {
		return
	}
	if !event.State.IsKnown() {
		logrus.Warnf("ignoring unknown session state %q for session %s", util.SanitizeLog(string(event.State)), util.SanitizeLog(event.SessionID))
		return
	}

	session, err := s.storage.GetSession(ctx, event.SessionID)
	if err != nil {
		logrus.WithError(err).Errorf("reading session %s for state event", util.SanitizeLog(event.SessionID))
		return
	}
	if session == nil {
		logrus.Warnf("no record for listening session %s, dropping listener", util.SanitizeLog(event.SessionID))
		s.deregister(event.SessionID)
		return
	}

	if session.State != event.State {
		session.State = event.State
		session.UpdatedAt = s.clk.Now().UTC()
		if err = s.storage.StoreSession(ctx, *session); err != nil {
			logrus.WithError(err).Errorf("persisting state %s for session %s", event.State, util.SanitizeLog(event.SessionID))
			return
		}
	}

	if event.State.IsTerminal() {
		s.deregister(event.SessionID)
	}
}

func (s *Service) register(sessionID string) {
	s.listenerLock.Lock()
	defer s.listenerLock.Unlock()
	s.listeners[sessionID] = struct{}{}
}

func (s *Service) deregister(sessionID string) {
	s.listenerLock.Lock()
	defer s.listenerLock.Unlock()
	delete(s.listeners, sessionID)
}

func (s *Service) isListening(sessionID string) bool {
	s.listenerLock.Lock()
	defer s.listenerLock.Unlock()
	_, ok := s.listeners[sessionID]
	return ok
}
