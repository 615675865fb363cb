// Package load runs simulated users against a target API. Each user owns a
// session and repeatedly picks a weighted action from a scenario catalog,
// executes it, and pauses for a think time.
package load

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/courier/internal/load/catalog"
	"github.com/wesleyorama2/courier/internal/load/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between actions.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing an action.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Scenario is what every simulated user runs.
type Scenario struct {
	// Name of the scenario (used in logs and reports)
	Name string

	// BaseURL is the target host, e.g. "https://api.example.com"
	BaseURL string

	// Catalog holds the weighted actions and the session bootstrap
	Catalog *catalog.Catalog

	// Wait is the think time between actions (nil means no pause)
	Wait catalog.WaitFunc

	// Headers are added to every request before session headers
	Headers map[string]string
}

// VirtualUser is a single simulated user.
//
// A VU owns its Session and random source; both are only touched from the
// goroutine running the VU. Lifecycle state is atomic so the scheduler
// can observe and stop it from elsewhere.
type VirtualUser struct {
	ID int

	Scenario   *Scenario
	HTTPClient *http.Client
	Metrics    *metrics.Engine
	Session    *catalog.Session

	logger *zap.Logger
	rng    *rand.Rand

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	iteration atomic.Int64
}

// NewVirtualUser creates a new Virtual User with a fresh session.
func NewVirtualUser(id int, scenario *Scenario, httpClient *http.Client, metricsEngine *metrics.Engine, logger *zap.Logger) *VirtualUser {
	if logger == nil {
		logger = zap.NewNop()
	}
	session := catalog.NewSession()

	return &VirtualUser{
		ID:         id,
		Scenario:   scenario,
		HTTPClient: httpClient,
		Metrics:    metricsEngine,
		Session:    session,
		logger:     logger.With(zap.Int("vu", id), zap.String("session", session.ID)),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of actions picked so far.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Start runs the session bootstrap, if the catalog has one and the dice
// say so. Bootstrap failures never stop the user.
func (vu *VirtualUser) Start(ctx context.Context) {
	b := vu.Scenario.Catalog.Bootstrap()
	if b == nil || vu.rng.Float64() >= b.Probability {
		return
	}

	result := vu.Execute(ctx, b.Action)
	if result.Error != nil || !result.Outcome.Success {
		vu.logger.Debug("session bootstrap failed",
			zap.String("action", b.Action.Name),
			zap.Int("status", result.StatusCode),
			zap.String("reason", result.Outcome.Reason),
		)
		return
	}
	if !vu.Session.Authenticated() {
		vu.logger.Debug("session bootstrap returned no token", zap.String("action", b.Action.Name))
	}
}

// RunIteration picks one action from the catalog and executes it.
func (vu *VirtualUser) RunIteration(ctx context.Context) (*RequestResult, error) {
	currentState := vu.GetState()
	if currentState == VUStateStopping || currentState == VUStateStopped {
		return nil, fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	defer vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))

	vu.iteration.Add(1)
	action := vu.Scenario.Catalog.Pick(vu.rng)
	return vu.Execute(ctx, action), nil
}

// Execute issues one action for this user's session and records the
// outcome under the action's label. Ineligible actions are skipped without
// a request.
func (vu *VirtualUser) Execute(ctx context.Context, action *catalog.Action) *RequestResult {
	result := &RequestResult{
		VUID:        vu.ID,
		Iteration:   vu.iteration.Load(),
		RequestName: action.Name,
		StartTime:   time.Now(),
	}

	if !action.Eligible(vu.Session) {
		result.Skipped = true
		result.EndTime = result.StartTime
		vu.Metrics.RecordSkipped()
		return result
	}

	req := action.Build(vu.Session, vu.rng)
	resp, err := vu.do(ctx, req)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if err != nil {
		result.Error = err
		result.Outcome = catalog.Fail(transportReason(err))
	} else {
		result.StatusCode = resp.StatusCode
		result.BytesReceived = int64(len(resp.Body))
		result.Outcome = action.Accept(resp)
		if result.Outcome.Success && action.OnSuccess != nil {
			action.OnSuccess(vu.Session, resp)
		}
	}

	// requests torn down by shutdown are not part of the measurement
	if ctx.Err() != nil {
		return result
	}

	vu.Metrics.Record(metrics.Sample{
		Name:     action.Name,
		Duration: result.Duration,
		Success:  result.Outcome.Success,
		Reason:   result.Outcome.Reason,
		Bytes:    result.BytesReceived,
	})
	return result
}

// transportReason is the failure reason for a request that got no
// response. The URL is left out so every id behind one label shares a row.
func transportReason(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Op + ": " + ue.Err.Error()
	}
	return err.Error()
}

func (vu *VirtualUser) do(ctx context.Context, req catalog.Request) (*catalog.Response, error) {
	httpReq, err := vu.buildRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := vu.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &catalog.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (vu *VirtualUser) buildRequest(ctx context.Context, req catalog.Request) (*http.Request, error) {
	target := strings.TrimRight(vu.Scenario.BaseURL, "/") + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for key, value := range vu.Scenario.Headers {
		httpReq.Header.Set(key, value)
	}
	for key, values := range vu.Session.Headers() {
		httpReq.Header[key] = values
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// Think pauses for the scenario's wait time, returning early when the VU
// is stopped or ctx is done.
func (vu *VirtualUser) Think(ctx context.Context) {
	if vu.Scenario.Wait == nil {
		return
	}
	d := vu.Scenario.Wait(vu.rng)
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-vu.stopCh:
	case <-timer.C:
	}
}

// RequestStop signals the VU to stop after its current action.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// Stopping reports whether a stop was requested.
func (vu *VirtualUser) Stopping() bool {
	s := vu.GetState()
	return s == VUStateStopping || s == VUStateStopped
}

// WaitForStop waits for the VU to stop with a timeout.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}

// RequestResult contains the result of a single action.
type RequestResult struct {
	VUID          int             `json:"vuId"`
	Iteration     int64           `json:"iteration"`
	RequestName   string          `json:"requestName"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       time.Time       `json:"endTime"`
	Duration      time.Duration   `json:"duration"`
	StatusCode    int             `json:"statusCode"`
	BytesReceived int64           `json:"bytesReceived"`
	Outcome       catalog.Outcome `json:"outcome"`
	Skipped       bool            `json:"skipped,omitempty"`
	Error         error           `json:"-"`
}
