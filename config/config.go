package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultConfigPath = "config/config.toml"
	ConfigFileName    = "config.toml"
	ServiceName       = "vc-exchange-service"
	ConfigExtension   = ".toml"

	DefaultAgentEndpoint = "http://localhost:9000"

	// DefaultProofRequestExpiry bounds how long a resolved proof request may
	// live before its capability token becomes unusable.
	DefaultProofRequestExpiry = 300 * time.Second
)

// EnvVar is a typed environment variable this service reads at startup.
type EnvVar string

// ConfigPath is the env var that overrides where the config file lives.
const ConfigPath EnvVar = "VC_EXCHANGE_CONFIG_PATH"

func (e EnvVar) String() string {
	return string(e)
}

type ExchangeServiceConfig struct {
	conf.Version
	Server   ServerConfig   `toml:"server"`
	Services ServicesConfig `toml:"services"`
}

// ServerConfig represents configurable properties for the HTTP server
type ServerConfig struct {
	APIHost         string        `toml:"api_host" conf:"default:0.0.0.0:3000"`
	DebugHost       string        `toml:"debug_host" conf:"default:0.0.0.0:4000"`
	JagerHost       string        `toml:"jager_host" conf:"http://jaeger:14268/api/traces"`
	JagerEnabled    bool          `toml:"jager_enabled" conf:"default:false"`
	ReadTimeout     time.Duration `toml:"read_timeout" conf:"default:5s"`
	WriteTimeout    time.Duration `toml:"write_timeout" conf:"default:5s"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" conf:"default:5s"`
	LogLocation     string        `toml:"log_location" conf:"default:log"`
	LogLevel        string        `toml:"log_level" conf:"default:debug"`
	EnableCORS      bool          `toml:"enable_cors" conf:"default:false"`
}

// ServicesConfig represents configurable properties for the components of the exchange service
type ServicesConfig struct {
	// at present, it is assumed that a single storage provider works for all services
	StorageProvider string `toml:"storage"`
	BoltFilePath    string `toml:"bolt_file_path"`
	RedisAddress    string `toml:"redis_address"`
	RedisPassword   string `toml:"redis_password"`

	// Embed all service-specific configs here. The order matters: from which should be instantiated first, to last
	AgentConfig    AgentConfig           `toml:"agent,omitempty"`
	IssuerConfig   IssuerServiceConfig   `toml:"issuer,omitempty"`
	HolderConfig   HolderServiceConfig   `toml:"holder,omitempty"`
	VerifierConfig VerifierServiceConfig `toml:"verifier,omitempty"`
}

// BaseServiceConfig represents configurable properties for a specific component of the exchange service
// Can be wrapped and extended for any specific service config
type BaseServiceConfig struct {
	Name string `toml:"name"`
}

// AgentConfig holds connection properties for the external credential agent.
type AgentConfig struct {
	Endpoint       string        `toml:"endpoint"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	MaxRetries     uint64        `toml:"max_retries"`
}

func (a *AgentConfig) IsEmpty() bool {
	if a == nil {
		return true
	}
	return reflect.DeepEqual(a, &AgentConfig{})
}

// CredentialDefinition is the claim contract for a single offerable credential
// type. Claims outside Required and Optional are rejected at offer creation.
type CredentialDefinition struct {
	ID       string   `toml:"id"`
	Format   string   `toml:"format"`
	Types    []string `toml:"types"`
	Required []string `toml:"required_claims"`
	Optional []string `toml:"optional_claims"`
}

type IssuerServiceConfig struct {
	*BaseServiceConfig
	CredentialDefinitions []CredentialDefinition `toml:"credential_definitions"`
}

func (i *IssuerServiceConfig) IsEmpty() bool {
	if i == nil {
		return true
	}
	return reflect.DeepEqual(i, &IssuerServiceConfig{})
}

type HolderServiceConfig struct {
	*BaseServiceConfig
	// How long a resolved proof request stays claimable. Zero means the default of 300s.
	ProofRequestExpiry time.Duration `toml:"proof_request_expiry"`
}

func (h *HolderServiceConfig) IsEmpty() bool {
	if h == nil {
		return true
	}
	return reflect.DeepEqual(h, &HolderServiceConfig{})
}

// PresentationDefinition names a proof request shape a verifier may ask for.
type PresentationDefinition struct {
	ID      string `toml:"id"`
	Purpose string `toml:"purpose"`
	// Pattern constrains the credential type presented, empty matches any.
	Pattern string `toml:"pattern"`
}

type VerifierServiceConfig struct {
	*BaseServiceConfig
	PresentationDefinitions []PresentationDefinition `toml:"presentation_definitions"`
}

func (v *VerifierServiceConfig) IsEmpty() bool {
	if v == nil {
		return true
	}
	return reflect.DeepEqual(v, &VerifierServiceConfig{})
}

// DefaultCredentialDefinitions are the two credential types the service has
// offered historically. They are used when no config file overrides them.
func DefaultCredentialDefinitions() []CredentialDefinition {
	return []CredentialDefinition{
		{
			ID:       "UniversityDegreeCredential",
			Format:   "jwt_vc_json",
			Types:    []string{"VerifiableCredential", "UniversityDegreeCredential"},
			Required: []string{"name", "degree"},
			Optional: []string{"institution_name", "issuanceDate", "expirationDate"},
		},
		{
			ID:       "TantanCredential",
			Format:   "jwt_vc_json",
			Types:    []string{"VerifiableCredential", "TantanCredential"},
			Required: []string{"name", "phone", "email", "institution_name", "birth_date"},
			Optional: []string{"issuanceDate", "expirationDate"},
		},
	}
}

func DefaultPresentationDefinitions() []PresentationDefinition {
	return []PresentationDefinition{
		{
			ID:      "genericCredential",
			Purpose: "Present a credential to verify your identity.",
		},
		{
			ID:      "UniversityDegreeCredential",
			Purpose: "Present your UniversityDegreeCredential to verify your education level.",
			Pattern: "UniversityDegree",
		},
		{
			ID:      "OpenBadgeCredential",
			Purpose: "Provide proof of employment to confirm your employment status.",
			Pattern: "OpenBadgeCredential",
		},
		{
			ID:      "TantanCredential",
			Purpose: "Present your Tantan Credential to verify your identity.",
			Pattern: "TantanCredential",
		},
	}
}

// LoadConfig attempts to load a TOML config file from the given path, and coerce it into our object model.
// Before loading, defaults are applied on certain properties, which are overwritten if specified in the TOML file.
func LoadConfig(path string) (*ExchangeServiceConfig, error) {
	// no path, load default config
	defaultConfig := false
	if path == "" {
		logrus.Info("no config path provided, loading default config...")
		defaultConfig = true
	} else if filepath.Ext(path) != ConfigExtension {
		return nil, fmt.Errorf("path<%s> did not match the expected TOML format", path)
	}

	// create the config object
	var config ExchangeServiceConfig

	// parse and apply defaults
	if err := conf.Parse(os.Args[1:], ServiceName, &config); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "parsing config")
			}
			fmt.Println(usage)

			return nil, nil

		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "generating config version")
			}

			fmt.Println(version)
			return nil, nil
		}

		return nil, errors.Wrap(err, "parsing config")
	}

	if defaultConfig {
		config.Services = defaultServicesConfig()
	} else {
		// load from TOML file
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, errors.Wrapf(err, "could not load config: %s", path)
		}
	}
	applyServiceDefaults(&config.Services)

	return &config, nil
}

func defaultServicesConfig() ServicesConfig {
	return ServicesConfig{
		StorageProvider: "bolt",
		BoltFilePath:    "vc-exchange.db",
		AgentConfig: AgentConfig{
			Endpoint:       DefaultAgentEndpoint,
			RequestTimeout: 10 * time.Second,
		},
		IssuerConfig: IssuerServiceConfig{
			BaseServiceConfig:     &BaseServiceConfig{Name: "issuer"},
			CredentialDefinitions: DefaultCredentialDefinitions(),
		},
		HolderConfig: HolderServiceConfig{
			BaseServiceConfig:  &BaseServiceConfig{Name: "holder"},
			ProofRequestExpiry: DefaultProofRequestExpiry,
		},
		VerifierConfig: VerifierServiceConfig{
			BaseServiceConfig:       &BaseServiceConfig{Name: "verifier"},
			PresentationDefinitions: DefaultPresentationDefinitions(),
		},
	}
}

// applyServiceDefaults fills the gaps a partial TOML file leaves behind.
func applyServiceDefaults(services *ServicesConfig) {
	if services.AgentConfig.Endpoint == "" {
		services.AgentConfig.Endpoint = DefaultAgentEndpoint
	}
	if services.AgentConfig.RequestTimeout == 0 {
		services.AgentConfig.RequestTimeout = 10 * time.Second
	}
	if services.IssuerConfig.BaseServiceConfig == nil {
		services.IssuerConfig.BaseServiceConfig = &BaseServiceConfig{Name: "issuer"}
	}
	if len(services.IssuerConfig.CredentialDefinitions) == 0 {
		services.IssuerConfig.CredentialDefinitions = DefaultCredentialDefinitions()
	}
	if services.HolderConfig.BaseServiceConfig == nil {
		services.HolderConfig.BaseServiceConfig = &BaseServiceConfig{Name: "holder"}
	}
	if services.HolderConfig.ProofRequestExpiry == 0 {
		services.HolderConfig.ProofRequestExpiry = DefaultProofRequestExpiry
	}
	if services.VerifierConfig.BaseServiceConfig == nil {
		services.VerifierConfig.BaseServiceConfig = &BaseServiceConfig{Name: "verifier"}
	}
	if len(services.VerifierConfig.PresentationDefinitions) == 0 {
		services.VerifierConfig.PresentationDefinitions = DefaultPresentationDefinitions()
	}
}
