package bootstrap

import (
	"strconv"
	"strings"
	"time"

	"github.com/nghyane/msgproxy/internal/config"
	log "github.com/nghyane/msgproxy/internal/logging"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type env struct {
	lookup LookupFunc
}

func (e env) str(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e env) int(key string) (int, bool) {
	v, ok := e.str(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("ignoring %s: %v", key, err)
		return 0, false
	}
	return n, true
}

func (e env) float(key string) (float64, bool) {
	v, ok := e.str(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warnf("ignoring %s: %v", key, err)
		return 0, false
	}
	return f, true
}

func (e env) bool(key string) (bool, bool) {
	v, ok := e.str(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warnf("ignoring %s: %v", key, err)
		return false, false
	}
	return b, true
}

func (e env) duration(key string) (time.Duration, bool) {
	v, ok := e.str(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("ignoring %s: %v", key, err)
		return 0, false
	}
	return d, true
}

// ApplyEnvOverrides applies MSGPROXY_* environment variable overrides for container deployments.
func ApplyEnvOverrides(cfg *config.Config, lookup LookupFunc) {
	e := env{lookup: lookup}

	if host, ok := e.str("MSGPROXY_HOST"); ok {
		cfg.Host = host
		log.Infof("Host overridden by env: %s", host)
	}
	if port, ok := e.int("MSGPROXY_PORT"); ok {
		cfg.Port = port
		log.Infof("Port overridden by env: %d", port)
	}
	if debug, ok := e.bool("MSGPROXY_DEBUG"); ok {
		cfg.Debug = debug
		log.Infof("Debug overridden by env: %v", debug)
	}
	if toFile, ok := e.bool("MSGPROXY_LOGGING_TO_FILE"); ok {
		cfg.LoggingToFile = toFile
		log.Infof("Logging to file overridden by env: %v", toFile)
	}
	if baseURL, ok := e.str("MSGPROXY_BACKEND_URL"); ok {
		cfg.Backend.BaseURL = strings.TrimRight(baseURL, "/")
		log.Infof("Backend URL overridden by env: %s", cfg.Backend.BaseURL)
	}
	if key, ok := e.str("MSGPROXY_BACKEND_API_KEY"); ok {
		cfg.Backend.APIKey = key
		log.Infof("Backend API key overridden by env")
	}
	if proxyURL, ok := e.str("MSGPROXY_PROXY_URL"); ok {
		cfg.Backend.ProxyURL = proxyURL
		log.Infof("Proxy URL overridden by env")
	}
	if idle, ok := e.duration("MSGPROXY_IDLE_TIMEOUT"); ok {
		cfg.Backend.IdleTimeout = config.Duration(idle)
		log.Infof("Idle timeout overridden by env: %s", idle)
	}
	if rps, ok := e.float("MSGPROXY_RATE_LIMIT_RPS"); ok {
		cfg.RateLimit.RequestsPerSecond = rps
		log.Infof("Rate limit overridden by env: %g rps", rps)
	}
	if burst, ok := e.int("MSGPROXY_RATE_LIMIT_BURST"); ok {
		cfg.RateLimit.Burst = burst
		log.Infof("Rate limit burst overridden by env: %d", burst)
	}
	if retries, ok := e.int("MSGPROXY_MAX_RETRIES"); ok {
		cfg.Retry.MaxRetries = retries
		log.Infof("Max retries overridden by env: %d", retries)
	}
	if dsn, ok := e.str("MSGPROXY_USAGE_DSN"); ok {
		cfg.Usage.DSN = dsn
		log.Infof("Usage DSN overridden by env")
	}
	if days, ok := e.int("MSGPROXY_USAGE_RETENTION_DAYS"); ok {
		cfg.Usage.RetentionDays = days
		log.Infof("Usage retention days overridden by env: %d", days)
	}
	if enabled, ok := e.bool("MSGPROXY_METRICS_ENABLED"); ok {
		cfg.Metrics.Enabled = enabled
		log.Infof("Metrics overridden by env: %v", enabled)
	}
}
