package sessionguard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by [Config.ApplyEnv].
const (
	EnvAccessTTL               = "SESSIONGUARD_ACCESS_TTL"
	EnvRefreshTTLDays          = "SESSIONGUARD_REFRESH_TTL_DAYS"
	EnvGraceSeconds            = "SESSIONGUARD_GRACE_SECONDS"
	EnvBreakerFailureThreshold = "SESSIONGUARD_BREAKER_FAILURE_THRESHOLD"
	EnvBreakerSuccessThreshold = "SESSIONGUARD_BREAKER_SUCCESS_THRESHOLD"
	EnvBreakerOpenSeconds      = "SESSIONGUARD_BREAKER_OPEN_SECONDS"
	EnvRateReservoir           = "SESSIONGUARD_RATE_RESERVOIR"
	EnvRateRefillInterval      = "SESSIONGUARD_RATE_REFILL_INTERVAL"
	EnvValidationMode          = "SESSIONGUARD_VALIDATION_MODE"
	EnvGatewaySecret           = "SESSIONGUARD_GATEWAY_SECRET"
)

// LoadConfigFile reads a YAML configuration file on top of [DefaultConfig].
// Unknown keys are rejected. Key file paths are resolved relative to the
// directory of path and their contents loaded into JWT.PrivateKey/PublicKey.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if cfg.JWT.PrivateKeyFile != "" {
		if cfg.JWT.PrivateKey, err = readKeyFile(dir, cfg.JWT.PrivateKeyFile); err != nil {
			return Config{}, err
		}
	}
	if cfg.JWT.PublicKeyFile != "" {
		if cfg.JWT.PublicKey, err = readKeyFile(dir, cfg.JWT.PublicKeyFile); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// DecodeConfig decodes YAML from r on top of [DefaultConfig]. An empty document
// yields the defaults.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func readKeyFile(dir, name string) ([]byte, error) {
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return data, nil
}

// ApplyEnv overrides c with the SESSIONGUARD_* variables returned by lookup.
// Pass [os.LookupEnv] in production. Unset variables leave c unchanged; a
// malformed value is an error naming the variable.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}

	var errs []error
	durationVar := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	intVar := func(name string, dst *int) bool {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return false
			}
			*dst = n
			return true
		}
		return false
	}
	scaledVar := func(name string, unit time.Duration, dst *time.Duration) {
		var n int
		if intVar(name, &n) {
			*dst = time.Duration(n) * unit
		}
	}

	durationVar(EnvAccessTTL, &c.JWT.AccessTTL)
	scaledVar(EnvRefreshTTLDays, 24*time.Hour, &c.Rotation.RefreshTTL)
	scaledVar(EnvGraceSeconds, time.Second, &c.Rotation.GraceWindow)
	intVar(EnvBreakerFailureThreshold, &c.Dispatch.FailureThreshold)
	intVar(EnvBreakerSuccessThreshold, &c.Dispatch.SuccessThreshold)
	scaledVar(EnvBreakerOpenSeconds, time.Second, &c.Dispatch.OpenDuration)
	intVar(EnvRateReservoir, &c.Dispatch.ReservoirSize)
	durationVar(EnvRateRefillInterval, &c.Dispatch.RefillInterval)

	if v, ok := lookup(EnvValidationMode); ok && strings.TrimSpace(v) != "" {
		mode, err := ParseValidationMode(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvValidationMode, err))
		} else {
			c.Validation.Mode = mode
		}
	}
	if v, ok := lookup(EnvGatewaySecret); ok {
		c.Validation.GatewaySecret = v
	}

	return errors.Join(errs...)
}
