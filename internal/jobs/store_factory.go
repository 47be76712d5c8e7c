package jobs

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildStoreFromDSN selects a job store backend by DSN scheme:
// postgres:// for a direct database connection, http(s):// for the hosted
// RPC surface, memory:// for tests and local development.
func BuildStoreFromDSN(dsn, serviceKey string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	case "http", "https":
		return NewRESTStore(RESTStoreOptions{BaseURL: dsn, ServiceKey: serviceKey})
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported job store scheme: %s", parsed.Scheme)
	}
}
