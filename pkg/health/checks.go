package health

import (
	"context"
	"fmt"
)

// MinCount reports down when count() is below min. The expansion service
// uses it to refuse readiness when the module registry is empty while
// modules were configured.
func MinCount(what string, min int, count func() int) Check {
	return func(ctx context.Context) ComponentHealth {
		n := count()
		if n < min {
			return ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("%d %s loaded, want at least %d", n, what, min)}
		}
		return ComponentHealth{Status: StatusUp, Message: fmt.Sprintf("%d %s loaded", n, what)}
	}
}

// Ping wraps a dependency ping. Optional dependencies report degraded
// instead of down so the service stays ready without them.
func Ping(ping func(ctx context.Context) error, optional bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			status := StatusDown
			if optional {
				status = StatusDegraded
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}
