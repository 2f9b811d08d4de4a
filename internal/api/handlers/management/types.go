package management

import "github.com/nghyane/msgproxy/internal/usage"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ConfigUpdateResponse represents the response after updating config.
type ConfigUpdateResponse struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

type UsageResponse struct {
	Persistent bool           `json:"persistent"`
	Summary    *usage.Summary `json:"summary"`
}

// ResolveResponse shows how a requested model maps onto the current catalog.
type ResolveResponse struct {
	Requested string `json:"requested"`
	Resolved  string `json:"resolved"`
	Tier      string `json:"tier"`
	InCatalog bool   `json:"in_catalog"`
}
