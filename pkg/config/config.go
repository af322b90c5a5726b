package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Configuration struct {
	// NodeHostname is this node's canonical hostname as other nodes know it.
	// Federation cannot operate without it.
	NodeHostname  string
	ListenAddr    string
	SessionSecret string
	// InsecureFederation switches outbound federation calls to plain http and
	// disables TLS certificate verification. Development only.
	InsecureFederation bool
	Federation         FederationSettings
	Database           struct {
		User     string
		Password string
		Host     string
		DB       string
	}
}

type FederationSettings struct {
	// RequestTimeout bounds each outbound federation HTTP call.
	RequestTimeout time.Duration
	// PairingTokenTTL is how long an issued pairing token stays valid.
	PairingTokenTTL time.Duration
	// ViewerTokenTTL is how long an issued viewer token can be redeemed.
	ViewerTokenTTL time.Duration
	// MaxDeliveryAttempts is the outbox retry bound before dead-lettering.
	MaxDeliveryAttempts int
	// RetryBaseDelay is the base for exponential delivery backoff.
	RetryBaseDelay time.Duration
}

// Load reads configuration from an optional config file plus environment
// variables. Environment keys use the NODEWEAVE_ prefix, except NODE_HOSTNAME
// and FEDERATION_INSECURE_MODE which keep their historical names.
func Load(path string) (Configuration, error) {
	v := viper.New()
	v.SetDefault("listenaddr", ":8080")
	v.SetDefault("federation.requesttimeout", 10*time.Second)
	v.SetDefault("federation.pairingtokenttl", 15*time.Minute)
	v.SetDefault("federation.viewertokenttl", 5*time.Minute)
	v.SetDefault("federation.maxdeliveryattempts", 8)
	v.SetDefault("federation.retrybasedelay", 2*time.Second)

	v.SetEnvPrefix("nodeweave")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("nodehostname", "NODE_HOSTNAME")
	v.BindEnv("insecurefederation", "FEDERATION_INSECURE_MODE")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Configuration{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return Configuration{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.NodeHostname == "" {
		return Configuration{}, fmt.Errorf("NODE_HOSTNAME is required for federation")
	}
	return cfg, nil
}
