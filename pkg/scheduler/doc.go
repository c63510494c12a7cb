/*
Package scheduler implements the fleet scheduler (spec component F): it
discovers candidate instances across the configured locations and
dispatches one worker per instance under a bounded concurrency envelope,
the same "discover, then dispatch with a concurrency cap" shape the
teacher's original scheduler applied to containers and nodes.

# Algorithm

 1. Discovery — list instances per location, in location order, optionally
    filtered to a single instance by short name.
 2. Admission — instances in a state unrecognised by this engine are
    rejected up front as SKIPPED(INELIGIBLE) rather than dispatched.
 3. Dispatch — run at most MaxParallel workers concurrently; pace the
    start of each new worker by StaggerDelay since the previous dispatch.
 4. Aggregation — collect results as workers finish and sort the final
    list by (location, shortName) before handing it to the report writer.
 5. Cancellation — once the caller's context is cancelled, no further
    workers are dispatched; workers already running observe the context
    themselves and report a CANCELLED result.

Dispatch order is deterministic (discovery order) and scheduling is not
preemptive, so a slow instance occupies only one of MaxParallel slots and
cannot starve the others.
*/
package scheduler
