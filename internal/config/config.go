package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values can be written as "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration. Every field has a safe default; a
// config file and then environment variables override it in that order.
type Config struct {
	RPC     RPCConfig     `yaml:"rpc"`
	Session SessionConfig `yaml:"session"`
}

type RPCConfig struct {
	Addr             string   `yaml:"addr"`
	RateLimitEnabled *bool    `yaml:"rateLimitEnabled"`
	RateLimitRPS     float64  `yaml:"rateLimitRps"`
	RateLimitBurst   int      `yaml:"rateLimitBurst"`
	RateLimitIdleTTL Duration `yaml:"rateLimitIdleTtl"`
}

type SessionConfig struct {
	IdleTimeout     Duration `yaml:"idleTimeout"`
	CertValidity    Duration `yaml:"certValidity"`
	MaxCertLifetime Duration `yaml:"maxCertLifetime"`
}

func Default() Config {
	enabled := true
	return Config{
		RPC: RPCConfig{
			Addr:             "127.0.0.1:8797",
			RateLimitEnabled: &enabled,
			RateLimitRPS:     30,
			RateLimitBurst:   60,
			RateLimitIdleTTL: Duration(10 * time.Minute),
		},
		Session: SessionConfig{
			IdleTimeout:     Duration(15 * time.Minute),
			CertValidity:    Duration(24 * time.Hour),
			MaxCertLifetime: Duration(365 * 24 * time.Hour),
		},
	}
}

// LoadFromPath reads configPath if given, otherwise tries the conventional
// locations. Missing or unparsable files fall back to the defaults; env
// overrides are applied last.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"go-backend/configs/config.yaml",
			"configs/config.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	return cfg
}

func merge(dst *Config, src Config) {
	if src.RPC.Addr != "" {
		dst.RPC.Addr = src.RPC.Addr
	}
	if src.RPC.RateLimitEnabled != nil {
		dst.RPC.RateLimitEnabled = src.RPC.RateLimitEnabled
	}
	if src.RPC.RateLimitRPS > 0 {
		dst.RPC.RateLimitRPS = src.RPC.RateLimitRPS
	}
	if src.RPC.RateLimitBurst > 0 {
		dst.RPC.RateLimitBurst = src.RPC.RateLimitBurst
	}
	if src.RPC.RateLimitIdleTTL > 0 {
		dst.RPC.RateLimitIdleTTL = src.RPC.RateLimitIdleTTL
	}
	if src.Session.IdleTimeout > 0 {
		dst.Session.IdleTimeout = src.Session.IdleTimeout
	}
	if src.Session.CertValidity > 0 {
		dst.Session.CertValidity = src.Session.CertValidity
	}
	if src.Session.MaxCertLifetime > 0 {
		dst.Session.MaxCertLifetime = src.Session.MaxCertLifetime
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DRIFT_RPC_ADDR")); v != "" {
		cfg.RPC.Addr = v
	}
	if v, ok := parseBoolEnv("DRIFT_RPC_RATE_LIMIT_ENABLED"); ok {
		cfg.RPC.RateLimitEnabled = &v
	}
	if v := strings.TrimSpace(os.Getenv("DRIFT_RPC_RATE_LIMIT_RPS")); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			cfg.RPC.RateLimitRPS = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("DRIFT_RPC_RATE_LIMIT_BURST")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RPC.RateLimitBurst = parsed
		}
	}
	if v := parseDurationEnv("DRIFT_SESSION_IDLE_TIMEOUT"); v > 0 {
		cfg.Session.IdleTimeout = Duration(v)
	}
	if v := parseDurationEnv("DRIFT_CERT_VALIDITY"); v > 0 {
		cfg.Session.CertValidity = Duration(v)
	}
	if v := parseDurationEnv("DRIFT_MAX_CERT_LIFETIME"); v > 0 {
		cfg.Session.MaxCertLifetime = Duration(v)
	}
}

func parseBoolEnv(name string) (bool, bool) {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch raw {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func parseDurationEnv(name string) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return parsed
}
