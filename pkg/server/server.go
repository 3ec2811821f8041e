// Package server contains the full set of handler functions and routes
// supported by the http api
package server

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tantan-solutions/vc-exchange-service/config"
	"github.com/tantan-solutions/vc-exchange-service/internal/util"
	"github.com/tantan-solutions/vc-exchange-service/pkg/server/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/server/middleware"
	"github.com/tantan-solutions/vc-exchange-service/pkg/server/router"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service"
)

const (
	HealthPrefix    = "/health"
	ReadinessPrefix = "/readiness"
	V1Prefix        = "/v1"

	IssuerPrefix   = "/issuer"
	HolderPrefix   = "/holder"
	VerifierPrefix = "/verifier"
	AgentPrefix    = "/agent"
)

// ExchangeServer exposes all services hosted by this instance over HTTP.
type ExchangeServer struct {
	*framework.Server
	*config.ExchangeServiceConfig
	*service.ExchangeService
}

// NewExchangeServer does two things: instantiates all services and registers
// their HTTP bindings
func NewExchangeServer(shutdown chan os.Signal, cfg config.ExchangeServiceConfig) (*ExchangeServer, error) {
	if cfg.Server.LogLevel != logrus.DebugLevel.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.Logger(logrus.StandardLogger()),
	)
	if cfg.Server.EnableCORS {
		engine.Use(middleware.CORS())
	}

	exchangeService, err := service.InstantiateExchangeService(cfg.Services)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not instantiate the exchange service")
	}

	httpServer := framework.NewHTTPServer(cfg.Server, engine, shutdown)
	server := &ExchangeServer{
		Server:                httpServer,
		ExchangeServiceConfig: &cfg,
		ExchangeService:       exchangeService,
	}

	server.Handle(http.MethodGet, HealthPrefix, router.Health)
	server.Handle(http.MethodGet, ReadinessPrefix, router.Readiness(exchangeService))

	if err = server.IssuerAPI(exchangeService); err != nil {
		return nil, util.LoggingErrorMsg(err, "could not setup the issuer api")
	}
	if err = server.HolderAPI(exchangeService); err != nil {
		return nil, util.LoggingErrorMsg(err, "could not setup the holder api")
	}
	if err = server.VerifierAPI(exchangeService); err != nil {
		return nil, util.LoggingErrorMsg(err, "could not setup the verifier api")
	}
	if err = server.AgentAPI(exchangeService); err != nil {
		return nil, util.LoggingErrorMsg(err, "could not setup the agent api")
	}

	return server, nil
}

// IssuerAPI registers offer creation and session tracking routes.
func (s *ExchangeServer) IssuerAPI(es *service.ExchangeService) error {
	issuerRouter, err := router.NewIssuerRouter(es.Issuer)
	if err != nil {
		return util.LoggingErrorMsg(err, "creating issuer router")
	}

	issuerAPI := V1Prefix + IssuerPrefix
	s.Handle(http.MethodPut, issuerAPI+"/offers", issuerRouter.CreateIssuanceOffer)
	s.Handle(http.MethodGet, issuerAPI+"/sessions", issuerRouter.ListIssuanceSessions)
	s.Handle(http.MethodGet, issuerAPI+"/sessions/:id", issuerRouter.GetIssuanceSession)
	return nil
}

// HolderAPI registers offer resolution, credential retrieval, and the proof
// request bridge routes.
func (s *ExchangeServer) HolderAPI(es *service.ExchangeService) error {
	holderRouter, err := router.NewHolderRouter(es.Holder)
	if err != nil {
		return util.LoggingErrorMsg(err, "creating holder router")
	}

	holderAPI := V1Prefix + HolderPrefix
	s.Handle(http.MethodPut, holderAPI+"/offers/resolve", holderRouter.ResolveCredentialOffer)
	s.Handle(http.MethodPut, holderAPI+"/credentials", holderRouter.RequestCredentials)
	s.Handle(http.MethodPut, holderAPI+"/proofs/resolve", holderRouter.ResolveProofRequest)
	s.Handle(http.MethodPut, holderAPI+"/proofs/accept", holderRouter.AcceptProofRequest)
	return nil
}

// VerifierAPI registers proof request creation routes.
func (s *ExchangeServer) VerifierAPI(es *service.ExchangeService) error {
	verifierRouter, err := router.NewVerifierRouter(es.Verifier)
	if err != nil {
		return util.LoggingErrorMsg(err, "creating verifier router")
	}

	s.Handle(http.MethodPut, V1Prefix+VerifierPrefix+"/proofs", verifierRouter.CreateProofRequest)
	return nil
}

// AgentAPI registers the webhook the agent pushes session events to.
func (s *ExchangeServer) AgentAPI(es *service.ExchangeService) error {
	eventsRouter, err := router.NewAgentEventsRouter(es.Events)
	if err != nil {
		return util.LoggingErrorMsg(err, "creating agent events router")
	}

	s.Handle(http.MethodPost, V1Prefix+AgentPrefix+"/events", eventsRouter.PublishSessionEvent)
	return nil
}
