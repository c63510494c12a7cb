// Package fleetsvc defines the capability surface the engine needs from the
// cloud provider — list/get/start/upgrade/rollback/getOperation/
// checkUpgradable — without any policy attached. Implementations must be
// safe for concurrent use by many workers and must not hold any session
// state that could be corrupted by interleaved calls.
//
// Two implementations live alongside the interface: httpadapter, a real
// JSON/HTTPS client wrapped in a circuit breaker, and fake, an in-memory
// scripted double used by the engine's own test suite.
package fleetsvc
