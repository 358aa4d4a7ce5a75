// Package config resolves the forwarder's runtime configuration from
// environment variables, with an optional YAML file as a secondary source.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/chainhook/forwarder/internal/constants"
)

// Config is the fully resolved runtime configuration for the forwarder.
type Config struct {
	// DatabaseURL is the DSN used to connect to the Postgres instance backing the event store.
	DatabaseURL string
	// EnableAuth turns on HMAC signature verification in the authenticator.
	EnableAuth bool
	// AllowedAddresses, when non-empty, restricts accepted source addresses.
	AllowedAddresses []netip.Addr
	// ProviderSecrets maps a lower-cased provider name to its shared HMAC secret.
	ProviderSecrets map[string]string
	// RunMigrationsOnStartup triggers AutoMigrate before the server starts serving.
	RunMigrationsOnStartup bool
	// StrictWebhookAuth is read and stored but never branched on; reserved for a future hard-fail mode.
	StrictWebhookAuth bool
}

// file is the subset of a YAML config file this package understands:
// a nested map of string keys, addressed with "/"-separated paths.
type file map[string]any

// Load resolves configuration from the environment. The database URL and
// provider secrets, when unset in the environment, are then read from the
// YAML file at configPath (if configPath is non-empty and the file exists);
// the other settings come from the environment only.
// fs is abstracted so callers can pass an in-memory filesystem in tests.
func Load(fs afero.Fs, configPath string, knownProviders []string) (*Config, error) {
	var f file
	if configPath != "" {
		exists, err := afero.Exists(fs, configPath)
		if err != nil {
			return nil, fmt.Errorf("checking config file %q: %w", configPath, err)
		}
		if exists {
			raw, err := afero.ReadFile(fs, configPath)
			if err != nil {
				return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
			}
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return nil, fmt.Errorf("parsing config file %q: %w", configPath, err)
			}
		}
	}

	cfg := &Config{
		DatabaseURL:             firstNonEmpty(os.Getenv(constants.EnvDatabaseURL), f.lookup(constants.ConfigKeyDatabaseURL)),
		EnableAuth:              parseBool(os.Getenv(constants.EnvEnableAuth)),
		RunMigrationsOnStartup:  parseBool(os.Getenv(constants.EnvRunMigrations)),
		StrictWebhookAuth:       parseBool(os.Getenv(constants.EnvStrictWebhookAuth)),
		ProviderSecrets:         make(map[string]string),
	}

	if addrs := os.Getenv(constants.EnvAllowedIPs); addrs != "" {
		parsed, err := parseAddressList(addrs)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", constants.EnvAllowedIPs, err)
		}
		cfg.AllowedAddresses = parsed
	}

	for _, provider := range knownProviders {
		secret := os.Getenv(constants.EnvSecretPrefix + strings.ToUpper(provider))
		if secret == "" {
			secret = f.lookup(constants.ConfigKeyProviderSecretsPrefix + provider)
		}
		if secret != "" {
			cfg.ProviderSecrets[strings.ToLower(provider)] = secret
		}
	}

	return cfg, nil
}

// lookup resolves a "/"-separated path against the nested YAML map. It
// returns "" if any segment is missing or not a string/map as expected.
func (f file) lookup(path string) string {
	if f == nil {
		return ""
	}
	segments := strings.Split(path, "/")
	var cur any = map[string]any(f)
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		next, ok := m[seg]
		if !ok {
			return ""
		}
		cur = next
	}
	s, _ := cur.(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return b
}

func parseAddressList(s string) ([]netip.Addr, error) {
	parts := strings.Split(s, ",")
	addrs := make([]netip.Addr, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", p, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
