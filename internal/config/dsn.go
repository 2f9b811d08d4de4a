package config

import (
	"fmt"
	"strings"
)

// ParsedDSN is a usage store location.
type ParsedDSN struct {
	Backend string // "sqlite" or "postgres"
	Path    string // sqlite file path
	URL     string // postgres connection URL
}

// ParseDSN parses sqlite://path, sqlite:path, postgres:// and postgresql:// DSNs.
// An empty DSN returns nil, nil.
func ParseDSN(dsn string) (*ParsedDSN, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return &ParsedDSN{Backend: "postgres", URL: dsn}, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite DSN has no path")
		}
		return &ParsedDSN{Backend: "sqlite", Path: path}, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(dsn, "sqlite:")
		if path == "" {
			return nil, fmt.Errorf("sqlite DSN has no path")
		}
		return &ParsedDSN{Backend: "sqlite", Path: path}, nil
	}
	return nil, fmt.Errorf("unsupported DSN %q (use sqlite:// or postgres://)", redactDSN(dsn))
}

func redactDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at > 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}
