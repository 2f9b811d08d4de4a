package management

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/config"
	log "github.com/nghyane/msgproxy/internal/logging"
)

const maxConfigSize = 1 << 20

const redacted = "***"

// GetConfig returns the config in effect with secrets masked.
func (h *Handler) GetConfig(c *gin.Context) {
	if h.config == nil || h.config() == nil {
		respondError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "config not loaded")
		return
	}
	respondOK(c, redactConfig(h.config()))
}

func redactConfig(cfg *config.Config) config.Config {
	out := *cfg
	if out.Backend.APIKey != "" {
		out.Backend.APIKey = redacted
	}
	if len(cfg.Backend.Headers) > 0 {
		out.Backend.Headers = make(map[string]string, len(cfg.Backend.Headers))
		for k, v := range cfg.Backend.Headers {
			if isSecretHeader(k) {
				v = redacted
			}
			out.Backend.Headers[k] = v
		}
	}
	if at := strings.LastIndex(out.Usage.DSN, "@"); at > 0 {
		if scheme := strings.Index(out.Usage.DSN, "://"); scheme >= 0 && scheme < at {
			out.Usage.DSN = out.Usage.DSN[:scheme+3] + redacted + out.Usage.DSN[at:]
		}
	}
	return out
}

func isSecretHeader(name string) bool {
	name = strings.ToLower(name)
	return name == "authorization" || strings.Contains(name, "key") || strings.Contains(name, "token")
}

// PutConfigYAML validates and replaces the config file. The file watcher applies it.
func (h *Handler) PutConfigYAML(c *gin.Context) {
	if h.configPath == "" {
		respondError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "server was started without a config file")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigSize+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "cannot read request body")
		return
	}
	if len(body) > maxConfigSize {
		respondError(c, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "config exceeds 1MB")
		return
	}
	if _, err := config.Parse(body, filepath.Ext(h.configPath)); err != nil {
		respondError(c, http.StatusUnprocessableEntity, ErrCodeInvalidConfig, err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := WriteConfig(h.configPath, body); err != nil {
		log.Errorf("management: write config: %v", err)
		respondError(c, http.StatusInternalServerError, ErrCodeWriteFailed, "failed to write config")
		return
	}
	log.Infof("management: config file replaced (%d bytes)", len(body))
	respondOK(c, ConfigUpdateResponse{Status: "ok", Path: h.configPath})
}

// WriteConfig replaces path atomically with data.
func WriteConfig(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
