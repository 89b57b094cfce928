/*
Package resilience provides the circuit breaker that keeps a repeatedly
crashing widget from being respawned in a tight loop.

# States

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests successes]-> Closed
	                                                |
	                                            [failure]
	                                                v
	                                              Open

Only errors accepted by Settings.IsFailure move the counts, so callers can
let ordinary script errors pass through while session-fatal ones trip the
breaker.

# Usage

	group := resilience.NewGroup(resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		IsFailure: host.IsSessionFatal,
	})

	cmds, err := resilience.Execute(group.Get(path), func() (protocol.Commands, error) {
		return session.Render(ctx, req)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// skip this icon until the breaker half-opens
	}
*/
package resilience
