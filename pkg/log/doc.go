/*
Package log provides structured logging for fleetop using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Usage

Initializing the Logger:

	import "github.com/cuemby/fleetop/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("fleet run starting")
	log.Debug("checking instance state")
	log.Warn("provider returned RATE_LIMITED")
	log.Error("operation tracker gave up after 5 retries")

Context Loggers:

	runLog := log.WithRun(runID)
	runLog.Info().Int("instances", len(instances)).Msg("discovery complete")

	instLog := log.WithInstance(snap.Name).With().Str("location", snap.Location).Logger()
	instLog.Info().Msg("upgrade started")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once via log.Init()
  - Accessible from every package without threading it through call chains

Context Logger Pattern:
  - Create child loggers with WithComponent/WithInstance/WithLocation/WithRun
  - Pass the child logger down instead of re-adding the same fields at every call site

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err) rather than string concatenation
  - Makes logs parseable by log aggregation tooling

# Security

Never log secrets or provider credentials. Use structured fields for any
user-supplied data (instance names, locations) rather than string
interpolation, so a malicious label value cannot forge a log line.
*/
package log
