package engine

import (
	"context"

	"taskroute/internal/migrate"
)

type StoreHealth struct {
	Status  string `json:"status" enum:"healthy,degraded"`
	Version int    `json:"schema_version,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Health struct {
	Status      string      `json:"status" enum:"healthy,degraded"`
	Operational StoreHealth `json:"operational"`
	Archive     StoreHealth `json:"archive"`
}

// Health pings both stores. The archive being down degrades the report but
// workflow operations keep running.
func (e Engine) Health(ctx context.Context) Health {
	h := Health{Status: "healthy"}
	h.Operational = storeHealth(e.Repo.Ping(ctx), func() (int, error) { return migrate.Version(e.DB) })
	h.Archive = storeHealth(e.Archive.Ping(ctx), func() (int, error) { return migrate.Version(e.Archive.DB) })
	if h.Operational.Status != "healthy" || h.Archive.Status != "healthy" {
		h.Status = "degraded"
	}
	return h
}

func storeHealth(pingErr error, version func() (int, error)) StoreHealth {
	if pingErr != nil {
		return StoreHealth{Status: "degraded", Error: pingErr.Error()}
	}
	v, err := version()
	if err != nil {
		return StoreHealth{Status: "degraded", Error: err.Error()}
	}
	return StoreHealth{Status: "healthy", Version: v}
}
