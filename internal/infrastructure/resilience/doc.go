/*
Package resilience provides the circuit breakers that guard upstream relays.

# Overview

Third-party relays come and go. A Breaker stops sending traffic to a relay
that keeps failing and lets a few trial requests through once its timeout
passes. A Set holds one breaker per relay id.

# Usage

	breakers := resilience.NewSet(resilience.Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	body, err := resilience.Do(breakers.Get(relayID), func() ([]byte, error) {
		return fetch(ctx, target)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open

Results that arrive after a state change belong to an older generation and
are not counted.
*/
package resilience
