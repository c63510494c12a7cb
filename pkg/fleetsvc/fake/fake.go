// Package fake provides an in-memory, scripted fleetsvc.Service double for
// tests, in the table-driven style of the teacher's
// pkg/scheduler/scheduler_unit_test.go fixtures: build a small world, drive
// it through the code under test, assert on the resulting calls.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/fleetop/pkg/fleetsvc"
	"github.com/cuemby/fleetop/pkg/types"
)

// Operation models one in-flight long-running operation. Each call to
// GetOperation advances Remaining until it reaches zero, then reports Done
// with whatever terminal error was scripted.
type Operation struct {
	Instance     string
	Remaining    int
	ErrorKind    types.ErrorKind
	ErrorMessage string
}

// Fault lets a test inject a transient failure into a specific method call
// for a specific instance, optionally only on the Nth attempt.
type Fault struct {
	Method      string // "Start", "BeginUpgrade", "BeginRollback", "Get", "List", "GetOperation", "CheckUpgradable"
	Instance    string
	Err         error
	AfterCalls  int // fault fires once call count for (Method, Instance) exceeds this
	Exhausts    bool
	timesFiring int
}

// Service is an in-memory fleetsvc.Service. The zero value is unusable;
// construct with New.
type Service struct {
	mu sync.Mutex

	instances map[string]types.InstanceSnapshot
	upgrades  map[string]string // instance name -> target version available
	ops       map[types.OperationHandle]*Operation
	faults    []*Fault
	calls     []CallRecord

	nextHandle         int
	pendingCompletions []pendingCompletion
	pendingFailures    []pendingFailure
}

// CallRecord captures one method invocation, used by tests asserting on
// dispatch order, stagger timing, or retry counts.
type CallRecord struct {
	Method   string
	Instance string
	At       time.Time
}

// New builds an empty fake service.
func New() *Service {
	return &Service{
		instances: make(map[string]types.InstanceSnapshot),
		upgrades:  make(map[string]string),
		ops:       make(map[types.OperationHandle]*Operation),
	}
}

// Seed registers an instance snapshot in the fake world.
func (s *Service) Seed(snap types.InstanceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[snap.Name] = snap
}

// SeedUpgradable marks an instance as having targetVersion available.
func (s *Service) SeedUpgradable(name, targetVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upgrades[name] = targetVersion
}

// FailNextOperation arranges for the next long-running operation begun
// for name (via Start, BeginUpgrade, or BeginRollback) to complete with
// the given terminal error instead of succeeding.
func (s *Service) FailNextOperation(name string, kind types.ErrorKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingFailures = append(s.pendingFailures, pendingFailure{instance: name, kind: kind, message: message})
}

type pendingFailure struct {
	instance string
	kind     types.ErrorKind
	message  string
}

// InjectFault registers a fault that fires the next time Method is called
// for Instance, after AfterCalls prior calls to that pair have already
// succeeded.
func (s *Service) InjectFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := f
	s.faults = append(s.faults, &cp)
}

// Calls returns a copy of every recorded call, in invocation order.
func (s *Service) Calls() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRecord, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Service) record(method, instance string) {
	s.calls = append(s.calls, CallRecord{Method: method, Instance: instance, At: time.Now()})
}

func (s *Service) matchFault(method, instance string) error {
	for _, f := range s.faults {
		if f.Method != method || (f.Instance != "" && f.Instance != instance) {
			continue
		}
		if f.Exhausts && f.timesFiring > f.AfterCalls {
			continue
		}
		f.timesFiring++
		if f.timesFiring <= f.AfterCalls {
			continue
		}
		return f.Err
	}
	return nil
}

func (s *Service) List(ctx context.Context, project, location string) ([]types.InstanceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("List", location)
	if err := s.matchFault("List", location); err != nil {
		return nil, err
	}
	var out []types.InstanceSnapshot
	for _, snap := range s.instances {
		if snap.Location == location {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShortName < out[j].ShortName })
	return out, nil
}

func (s *Service) Get(ctx context.Context, name string) (types.InstanceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Get", name)
	if err := s.matchFault("Get", name); err != nil {
		return types.InstanceSnapshot{}, err
	}
	snap, ok := s.instances[name]
	if !ok {
		return types.InstanceSnapshot{}, fleetsvc.NewError(types.ErrorNotFound, "instance not found: "+name, nil)
	}
	return snap, nil
}

func (s *Service) Start(ctx context.Context, name string) (types.OperationHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Start", name)
	if err := s.matchFault("Start", name); err != nil {
		return "", err
	}
	snap, ok := s.instances[name]
	if !ok {
		return "", fleetsvc.NewError(types.ErrorNotFound, "instance not found: "+name, nil)
	}
	if snap.State != types.InstanceStateStopped && snap.State != types.InstanceStateSuspended {
		return "", fleetsvc.NewError(types.ErrorPreconditionViolated, "instance is not stopped or suspended", nil)
	}
	snap.State = types.InstanceStateStarting
	s.instances[name] = snap
	return s.beginOp(name, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		snap := s.instances[name]
		snap.State = types.InstanceStateActive
		s.instances[name] = snap
	}), nil
}

func (s *Service) BeginUpgrade(ctx context.Context, name string) (types.OperationHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("BeginUpgrade", name)
	if err := s.matchFault("BeginUpgrade", name); err != nil {
		return "", err
	}
	snap, ok := s.instances[name]
	if !ok {
		return "", fleetsvc.NewError(types.ErrorNotFound, "instance not found: "+name, nil)
	}
	target, upgradable := s.upgrades[name]
	if !upgradable {
		return "", fleetsvc.NewError(types.ErrorPreconditionViolated, "no upgrade available", nil)
	}
	if snap.State != types.InstanceStateActive {
		return "", fleetsvc.NewError(types.ErrorPreconditionViolated, "instance is not active", nil)
	}
	snap.State = types.InstanceStateUpgrading
	s.instances[name] = snap
	return s.beginOp(name, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		snap := s.instances[name]
		snap.PreviousVersion = snap.CurrentVersion
		snap.CurrentVersion = target
		snap.AvailableUpgradeVersion = ""
		snap.State = types.InstanceStateActive
		now := time.Now()
		snap.LastUpgradeAt = &now
		expiry := now.Add(24 * time.Hour)
		snap.RollbackWindowExpiresAt = &expiry
		s.instances[name] = snap
		delete(s.upgrades, name)
	}), nil
}

func (s *Service) BeginRollback(ctx context.Context, name string) (types.OperationHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("BeginRollback", name)
	if err := s.matchFault("BeginRollback", name); err != nil {
		return "", err
	}
	snap, ok := s.instances[name]
	if !ok {
		return "", fleetsvc.NewError(types.ErrorNotFound, "instance not found: "+name, nil)
	}
	if snap.PreviousVersion == "" {
		return "", fleetsvc.NewError(types.ErrorPreconditionViolated, "no previous version to roll back to", nil)
	}
	if snap.State != types.InstanceStateActive {
		return "", fleetsvc.NewError(types.ErrorPreconditionViolated, "instance is not active", nil)
	}
	target := snap.PreviousVersion
	snap.State = types.InstanceStateUpgrading
	s.instances[name] = snap
	return s.beginOp(name, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		snap := s.instances[name]
		snap.CurrentVersion = target
		snap.PreviousVersion = ""
		snap.RollbackWindowExpiresAt = nil
		snap.State = types.InstanceStateActive
		s.instances[name] = snap
	}), nil
}

// beginOp registers a new operation: the first GetOperation poll reports it
// still running and the second reports it done. Unless a FailNextOperation
// failure is pending for instance, it then succeeds and runs onComplete;
// otherwise it completes with that error. Must be called with s.mu held;
// onComplete re-acquires the lock itself.
func (s *Service) beginOp(instance string, onComplete func()) types.OperationHandle {
	s.nextHandle++
	handle := types.OperationHandle(fmt.Sprintf("operations/op-%d", s.nextHandle))
	op := &Operation{Instance: instance, Remaining: 1}

	for i, pf := range s.pendingFailures {
		if pf.instance == instance {
			op.ErrorKind = pf.kind
			op.ErrorMessage = pf.message
			s.pendingFailures = append(s.pendingFailures[:i], s.pendingFailures[i+1:]...)
			break
		}
	}

	s.ops[handle] = op
	if op.ErrorKind == "" {
		s.pendingCompletions = append(s.pendingCompletions, pendingCompletion{handle: handle, fn: onComplete})
	}
	return handle
}

type pendingCompletion struct {
	handle types.OperationHandle
	fn     func()
}

func (s *Service) GetOperation(ctx context.Context, handle types.OperationHandle) (bool, types.ErrorKind, string, error) {
	s.mu.Lock()
	op, ok := s.ops[handle]
	instance := ""
	if ok {
		instance = op.Instance
	}
	s.mu.Unlock()

	s.record("GetOperation", instance)
	if err := s.matchFault("GetOperation", instance); err != nil {
		return false, "", "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		return false, "", "", fleetsvc.NewError(types.ErrorNotFound, "operation not found", nil)
	}
	if op.Remaining > 0 {
		op.Remaining--
		return false, "", "", nil
	}
	if op.ErrorKind != "" {
		// A failed upgrade or rollback leaves the instance ACTIVE on its
		// current version.
		if snap, found := s.instances[op.Instance]; found && snap.State == types.InstanceStateUpgrading {
			snap.State = types.InstanceStateActive
			s.instances[op.Instance] = snap
		}
		return true, op.ErrorKind, op.ErrorMessage, nil
	}
	for i, pc := range s.pendingCompletions {
		if pc.handle == handle {
			pc.fn()
			s.pendingCompletions = append(s.pendingCompletions[:i], s.pendingCompletions[i+1:]...)
			break
		}
	}
	return true, "", "", nil
}

func (s *Service) CheckUpgradable(ctx context.Context, name string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CheckUpgradable", name)
	if err := s.matchFault("CheckUpgradable", name); err != nil {
		return false, "", err
	}
	target, ok := s.upgrades[name]
	return ok, target, nil
}

// FailOperation arranges for the already-begun operation identified by
// handle to complete with the given terminal error instead of succeeding.
func (s *Service) FailOperation(handle types.OperationHandle, kind types.ErrorKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.ops[handle]; ok {
		op.ErrorKind = kind
		op.ErrorMessage = message
	}
}

// InstanceNames returns every seeded instance name whose location is in
// locations (or all instances if locations is empty), sorted.
func (s *Service) InstanceNames(locations ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(locations))
	for _, l := range locations {
		want[l] = true
	}
	var names []string
	for name, snap := range s.instances {
		if len(want) == 0 || want[snap.Location] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

var _ fleetsvc.Service = (*Service)(nil)
