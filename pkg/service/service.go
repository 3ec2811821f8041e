// Package service wires the exchange services to their shared dependencies:
// storage, the credential agent, and the session event bus.
package service

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/tantan-solutions/vc-exchange-service/config"
	credmodel "github.com/tantan-solutions/vc-exchange-service/internal/credential"
	"github.com/tantan-solutions/vc-exchange-service/internal/util"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/holder"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/issuer"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/verifier"
	"github.com/tantan-solutions/vc-exchange-service/pkg/storage"
)

// ExchangeService is the umbrella of all services and their dependencies.
type ExchangeService struct {
	Issuer   *issuer.Service
	Holder   *holder.Service
	Verifier *verifier.Service
	Events   *agent.EventBus

	storage storage.ServiceStorage
}

// InstantiateExchangeService creates the storage provider, agent client, and
// every service, resumes pending issuance sessions, and starts applying
// session events.
func InstantiateExchangeService(cfg config.ServicesConfig) (*ExchangeService, error) {
	return instantiateServices(cfg, clock.New())
}

func instantiateServices(cfg config.ServicesConfig, clk clock.Clock) (*ExchangeService, error) {
	unencryptedStorage, err := newStorageProvider(cfg, clk)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not instantiate storage provider: %s", cfg.StorageProvider)
	}

	agentConfig := cfg.AgentConfig
	if agentConfig.Endpoint == "" {
		agentConfig.Endpoint = config.DefaultAgentEndpoint
	}
	agentClient, err := agent.NewClient(agentConfig.Endpoint, agentConfig.RequestTimeout, agentConfig.MaxRetries)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not instantiate the credential agent client")
	}

	events := agent.NewEventBus()
	normalizer := credmodel.NewNormalizer(credmodel.NewSDJWTProcessor())

	issuerService, err := issuer.NewIssuerService(cfg.IssuerConfig, unencryptedStorage, agentClient, events, clk)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not instantiate the issuer service")
	}
	holderService, err := holder.NewHolderService(cfg.HolderConfig, unencryptedStorage, agentClient, normalizer, clk)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not instantiate the holder service")
	}
	verifierService, err := verifier.NewVerifierService(cfg.VerifierConfig, agentClient)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not instantiate the verifier service")
	}

	if err = issuerService.ResumePendingSessions(context.Background()); err != nil {
		return nil, util.LoggingErrorMsg(err, "could not resume pending issuance sessions")
	}
	issuerService.Start()

	return &ExchangeService{
		Issuer:   issuerService,
		Holder:   holderService,
		Verifier: verifierService,
		Events:   events,
		storage:  unencryptedStorage,
	}, nil
}

func newStorageProvider(cfg config.ServicesConfig, clk clock.Clock) (storage.ServiceStorage, error) {
	provider := storage.Type(cfg.StorageProvider)
	if cfg.StorageProvider == "" {
		provider = storage.Bolt
	}
	switch provider {
	case storage.Bolt:
		filePath := cfg.BoltFilePath
		if filePath == "" {
			filePath = storage.DBFile
		}
		return storage.NewBoltDBWithFile(clk, filePath)
	case storage.Redis:
		return storage.NewRedisDB(cfg.RedisAddress, cfg.RedisPassword), nil
	case storage.Memory:
		return storage.NewMemoryDB(clk), nil
	default:
		return nil, errors.Errorf("unsupported storage provider: %s, available: %v", cfg.StorageProvider, storage.AvailableStorage())
	}
}

// GetServices returns the services this instance runs, for readiness checks.
func (es *ExchangeService) GetServices() []framework.Service {
	return []framework.Service{es.Issuer, es.Holder, es.Verifier}
}

// Shutdown stops event handling and releases the storage provider.
func (es *ExchangeService) Shutdown() error {
	es.Issuer.Shutdown()
	if err := es.storage.Close(); err != nil {
		return errors.Wrap(err, "closing storage")
	}
	return nil
}
