/*
Package health implements the post-operation health verifier (spec
component C): after an upgrade, rollback, or auto-start operation
completes, the executor calls PollUntilHealthy to confirm the instance
actually came back up before declaring SUCCEEDED.

# Verdict Rules

  - ACTIVE + HEALTHY or ACTIVE + UNKNOWN → healthy. UNKNOWN is accepted
    because some provider builds never publish a health signal; treating
    it as a failure would produce false negatives.
  - PROVISIONING, STARTING, INITIALIZING → tolerated as transient; polling
    continues.
  - Any other non-ACTIVE state → verification failure.
  - Timeout elapses before a healthy verdict is reached → verification
    failure.

# Usage

	verifier := health.New(svc, clock.New())
	if err := verifier.PollUntilHealthy(ctx, instanceName, cfg.PollInterval, cfg.HealthCheckTimeout); err != nil {
		// mark FAILED_POST
	}
*/
package health
