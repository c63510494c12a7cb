// Package types defines the value types shared by every fleetop component:
// RunConfig (validated once, before any I/O), InstanceSnapshot (an
// immutable discovery-time observation), OperationHandle, OperationResult,
// and FleetReport.
//
// Enums follow the closed-string-constant convention used throughout this
// module (OperationKind, InstanceState, HealthState, ResultStatus,
// ErrorKind, CheckVerdict). Provider strings outside the closed set for
// InstanceState parse to InstanceStateUnknown via ParseInstanceState rather
// than failing — the scheduler then admits-skips them (spec §4.F).
package types
