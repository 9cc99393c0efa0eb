/*
Package resilience provides the circuit breaker placed in front of outbound
supervisor calls.

Trim signals, compaction requests and scheduling-group changes all go to the
external process supervisor. When the supervisor keeps failing, the breaker
opens and further calls are skipped until the timeout elapses; a few trial
calls in half-open state decide whether to close it again.

# Usage

	breaker := resilience.New("supervisor", resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})

	ok, err := resilience.Execute(breaker, func() (bool, error) {
		return supervisor.RequestTrimSignal(ctx, pid, level)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open
*/
package resilience
