package directory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/camayank/clientportal-realtime/internal/domain"
)

// BreakerProjectDirectory wraps a ProjectDirectory with a circuit breaker so
// a struggling portal database fails project broadcasts fast instead of
// stalling every fan-out behind slow lookups. A broadcast aborted by an open
// circuit behaves exactly like any other lookup failure: logged, dropped.
type BreakerProjectDirectory struct {
	inner   domain.ProjectDirectory
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerProjectDirectory(inner domain.ProjectDirectory) *BreakerProjectDirectory {
	settings := gobreaker.Settings{
		Name:    "project-directory",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerProjectDirectory{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// ProjectMembers resolves membership through the breaker. "Project not
// found" is a valid answer, not a sign of an unhealthy backend, so it does
// not count as a breaker failure.
func (d *BreakerProjectDirectory) ProjectMembers(ctx context.Context, projectID int64) (domain.ProjectMembership, error) {
	result, err := d.breaker.Execute(func() (any, error) {
		membership, err := d.inner.ProjectMembers(ctx, projectID)
		if errors.Is(err, domain.ErrProjectNotFound) {
			return membership, nil
		}
		return membership, err
	})
	if err != nil {
		return domain.ProjectMembership{}, err
	}

	membership := result.(domain.ProjectMembership)
	if membership.ProjectID == 0 {
		return domain.ProjectMembership{}, domain.ErrProjectNotFound
	}
	return membership, nil
}
