// Package httpadapter implements fleetsvc.Service against a JSON/HTTPS
// cloud control plane, the way the teacher's pkg/health.HTTPChecker and
// pkg/client.Client build HTTP/RPC clients: a configurable *http.Client,
// context-scoped requests, and one method per capability.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/cuemby/fleetop/pkg/fleetsvc"
	"github.com/cuemby/fleetop/pkg/metrics"
	"github.com/cuemby/fleetop/pkg/types"
	"github.com/sony/gobreaker"
)

// Adapter is the real InstanceService implementation. Mutating calls
// (Start, BeginUpgrade, BeginRollback) run through a shared circuit
// breaker so that a provider in distress trips once for the whole fleet
// instead of every worker discovering the outage independently (spec §5's
// backpressure requirement).
type Adapter struct {
	BaseURL string
	Client  *http.Client
	Headers map[string]string

	breaker *gobreaker.CircuitBreaker
}

// Config configures a new Adapter.
type Config struct {
	BaseURL string
	Client  *http.Client
	Headers map[string]string

	// BreakerName identifies this breaker in logs/metrics.
	BreakerName string
	// MaxConsecutiveFailures trips the breaker after this many consecutive
	// failed mutating calls. Zero selects a sensible default.
	MaxConsecutiveFailures uint32
}

// New constructs an Adapter.
func New(cfg Config) *Adapter {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxFailures := cfg.MaxConsecutiveFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	name := cfg.BreakerName
	if name == "" {
		name = "fleetsvc"
	}

	settings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			metrics.BreakerStateChangesTotal.WithLabelValues(from.String(), to.String()).Inc()
		},
	}

	return &Adapter{
		BaseURL: cfg.BaseURL,
		Client:  client,
		Headers: cfg.Headers,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type instanceDTO struct {
	Name                    string            `json:"name"`
	State                   string            `json:"state"`
	HealthState             string            `json:"healthState"`
	CurrentVersion          string            `json:"currentVersion"`
	AvailableUpgradeVersion string            `json:"availableUpgradeVersion,omitempty"`
	PreviousVersion         string            `json:"previousVersion,omitempty"`
	LastUpgradeAt           *time.Time        `json:"lastUpgradeAt,omitempty"`
	RollbackWindowExpiresAt *time.Time        `json:"rollbackWindowExpiresAt,omitempty"`
	Labels                  map[string]string `json:"labels,omitempty"`
}

func toSnapshot(location string, dto instanceDTO) types.InstanceSnapshot {
	shortName := dto.Name
	for i := len(dto.Name) - 1; i >= 0; i-- {
		if dto.Name[i] == '/' {
			shortName = dto.Name[i+1:]
			break
		}
	}
	return types.InstanceSnapshot{
		Name:                    dto.Name,
		ShortName:               shortName,
		Location:                location,
		State:                   types.ParseInstanceState(dto.State),
		HealthState:             types.HealthState(dto.HealthState),
		CurrentVersion:          dto.CurrentVersion,
		AvailableUpgradeVersion: dto.AvailableUpgradeVersion,
		PreviousVersion:         dto.PreviousVersion,
		LastUpgradeAt:           dto.LastUpgradeAt,
		RollbackWindowExpiresAt: dto.RollbackWindowExpiresAt,
		Labels:                  dto.Labels,
	}
}

func (a *Adapter) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fleetsvc.NewError(types.ErrorUnexpected, "encode request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return fleetsvc.NewError(types.ErrorUnexpected, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return fleetsvc.NewError(types.ErrorTransient, fmt.Sprintf("request failed: %v", err), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fleetsvc.NewError(types.ErrorAuthFailed, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return fleetsvc.NewError(types.ErrorNotFound, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		return fleetsvc.NewError(types.ErrorPreconditionViolated, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fleetsvc.NewError(types.ErrorRateLimited, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return fleetsvc.NewError(types.ErrorTransient, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return fleetsvc.NewError(types.ErrorUnexpected, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fleetsvc.NewError(types.ErrorUnexpected, "decode response", err)
	}
	return nil
}

// mutate runs fn through the shared circuit breaker, used for every call
// that begins a provider-side mutation.
func (a *Adapter) mutate(fn func() (any, error)) (any, error) {
	return a.breaker.Execute(fn)
}

func (a *Adapter) List(ctx context.Context, project, location string) ([]types.InstanceSnapshot, error) {
	var page struct {
		Instances []instanceDTO `json:"instances"`
	}
	path := fmt.Sprintf("/v1/projects/%s/locations/%s/instances", project, location)
	if err := a.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	out := make([]types.InstanceSnapshot, 0, len(page.Instances))
	for _, dto := range page.Instances {
		out = append(out, toSnapshot(location, dto))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (a *Adapter) Get(ctx context.Context, name string) (types.InstanceSnapshot, error) {
	var dto instanceDTO
	if err := a.do(ctx, http.MethodGet, "/v1/"+name, nil, &dto); err != nil {
		return types.InstanceSnapshot{}, err
	}
	return toSnapshot(locationFromName(name), dto), nil
}

func locationFromName(name string) string {
	// names look like projects/p/locations/<loc>/instances/<short>
	const marker = "/locations/"
	idx := indexOf(name, marker)
	if idx < 0 {
		return ""
	}
	rest := name[idx+len(marker):]
	if end := indexOf(rest, "/"); end >= 0 {
		return rest[:end]
	}
	return rest
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

type operationHandleDTO struct {
	Name string `json:"name"`
}

func (a *Adapter) Start(ctx context.Context, name string) (types.OperationHandle, error) {
	result, err := a.mutate(func() (any, error) {
		var dto operationHandleDTO
		if err := a.do(ctx, http.MethodPost, "/v1/"+name+":start", nil, &dto); err != nil {
			return nil, err
		}
		return dto.Name, nil
	})
	if err != nil {
		return "", translateBreakerError(err)
	}
	return types.OperationHandle(result.(string)), nil
}

func (a *Adapter) BeginUpgrade(ctx context.Context, name string) (types.OperationHandle, error) {
	result, err := a.mutate(func() (any, error) {
		var dto operationHandleDTO
		if err := a.do(ctx, http.MethodPost, "/v1/"+name+":upgrade", nil, &dto); err != nil {
			return nil, err
		}
		return dto.Name, nil
	})
	if err != nil {
		return "", translateBreakerError(err)
	}
	return types.OperationHandle(result.(string)), nil
}

func (a *Adapter) BeginRollback(ctx context.Context, name string) (types.OperationHandle, error) {
	result, err := a.mutate(func() (any, error) {
		var dto operationHandleDTO
		if err := a.do(ctx, http.MethodPost, "/v1/"+name+":rollback", nil, &dto); err != nil {
			return nil, err
		}
		return dto.Name, nil
	})
	if err != nil {
		return "", translateBreakerError(err)
	}
	return types.OperationHandle(result.(string)), nil
}

type operationStatusDTO struct {
	Done         bool   `json:"done"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (a *Adapter) GetOperation(ctx context.Context, handle types.OperationHandle) (bool, types.ErrorKind, string, error) {
	var dto operationStatusDTO
	if err := a.do(ctx, http.MethodGet, "/v1/"+string(handle), nil, &dto); err != nil {
		return false, "", "", err
	}
	return dto.Done, types.ErrorKind(dto.ErrorKind), dto.ErrorMessage, nil
}

type upgradableDTO struct {
	Upgradable    bool   `json:"upgradable"`
	TargetVersion string `json:"targetVersion,omitempty"`
}

func (a *Adapter) CheckUpgradable(ctx context.Context, name string) (bool, string, error) {
	var dto upgradableDTO
	if err := a.do(ctx, http.MethodGet, "/v1/"+name+":checkUpgradable", nil, &dto); err != nil {
		return false, "", err
	}
	return dto.Upgradable, dto.TargetVersion, nil
}

// translateBreakerError maps gobreaker's own "circuit open" sentinel onto
// the engine's ErrorKind taxonomy so the executor sees a RATE_LIMITED-style
// condition rather than an opaque breaker error.
func translateBreakerError(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fleetsvc.NewError(types.ErrorRateLimited, "circuit breaker open: provider appears to be in distress", err)
	}
	return err
}

var _ fleetsvc.Service = (*Adapter)(nil)
