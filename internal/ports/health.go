package ports

import (
	"context"

	"github.com/threadline-io/threadline/internal/domain"
)

// HealthMonitor tracks worker liveness from periodic probe outcomes.
// Start and Stop are idempotent; the ticker is released only by an
// explicit Stop.
type HealthMonitor interface {
	Start(ctx context.Context) error
	Stop() error

	Track(workerID string, probe func(context.Context) error)
	Forget(workerID string)

	CheckOne(ctx context.Context, workerID string) (domain.HealthStatus, error)
	CheckAll(ctx context.Context) map[string]bool

	Status(workerID string) (domain.HealthStatus, bool)
	IsHealthy(workerID string) bool
	Summary() domain.HealthSummary
}
