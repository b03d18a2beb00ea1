// Package controller drives the resolve, list, derive, write loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cloudless/alloy-discovery/pkg/nomad"
	"github.com/cloudless/alloy-discovery/pkg/observability"
	"github.com/cloudless/alloy-discovery/pkg/targets"
)

const (
	// DefaultInterval is the pause between passes in continuous mode
	DefaultInterval = 60 * time.Second

	// DefaultSleepSlice bounds how long a sleep runs between shutdown checks
	DefaultSleepSlice = 5 * time.Second

	tracerName = "alloy-discovery/controller"
)

// ErrResolveNode wraps failures to determine the node this process runs on
var ErrResolveNode = errors.New("failed to resolve node identity")

// State is the lifecycle phase of a Controller
type State int32

const (
	StateStarting State = iota
	StateResolving
	StatePolling
	StateSleeping
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateResolving:
		return "resolving"
	case StatePolling:
		return "polling"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ControlPlane is the part of the Nomad client the controller needs
type ControlPlane interface {
	ResolveNodeIdentity(ctx context.Context, allocID string) (string, error)
	ListNodeAllocations(ctx context.Context, nodeID string) []nomad.Allocation
}

// TargetWriter persists a derived target list
type TargetWriter interface {
	Write(ts []targets.Target) error
}

// Config configures a Controller
type Config struct {
	ControlPlane ControlPlane
	Writer       TargetWriter
	Logger       *zap.Logger

	// AllocID identifies the allocation this process runs in
	AllocID string

	// LogBaseDir is the host directory holding allocation directories
	LogBaseDir string

	// Interval between passes; DefaultInterval when zero
	Interval time.Duration

	// SleepSlice bounds shutdown latency while sleeping; DefaultSleepSlice when zero
	SleepSlice time.Duration

	// Continuous keeps polling until the context is cancelled.
	// Otherwise Run returns after one pass.
	Continuous bool
}

// Validate validates the controller configuration
func (c *Config) Validate() error {
	if c.ControlPlane == nil {
		return fmt.Errorf("control plane client is required")
	}
	if c.Writer == nil {
		return fmt.Errorf("target writer is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.LogBaseDir == "" {
		return fmt.Errorf("log base directory is required")
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.SleepSlice <= 0 {
		c.SleepSlice = DefaultSleepSlice
	}
	return nil
}

// Controller runs polling passes one at a time
type Controller struct {
	config *Config
	logger *zap.Logger

	state  atomic.Int32
	ready  atomic.Bool
	nodeID atomic.Value
}

// New creates a controller
func New(config *Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Controller{
		config: config,
		logger: observability.WithFields(config.Logger, zap.String("component", "controller")),
	}
	c.setState(StateStarting)

	return c, nil
}

// State returns the current lifecycle phase
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Ready reports whether a pass has written the discovery file
func (c *Controller) Ready() bool {
	return c.ready.Load()
}

// NodeID returns the resolved node, empty before resolution
func (c *Controller) NodeID() string {
	id, _ := c.nodeID.Load().(string)
	return id
}

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debug("Controller state changed",
			zap.Stringer("from", old),
			zap.Stringer("to", s),
		)
	}
}

// Run resolves the node and then polls until ctx is cancelled or, outside
// continuous mode, until the first pass finishes. It returns nil on a clean
// stop and an error for a resolution failure or a failed single pass.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setState(StateStopped)

	c.setState(StateResolving)
	// Like a pass, resolution finishes even if shutdown arrives meanwhile;
	// the loop below then stops cleanly.
	nodeID, err := c.config.ControlPlane.ResolveNodeIdentity(context.WithoutCancel(ctx), c.config.AllocID)
	if err != nil {
		c.setState(StateStopping)
		return fmt.Errorf("%w: %w", ErrResolveNode, err)
	}
	c.nodeID.Store(nodeID)
	c.logger.Info("Running on node", zap.String("node_id", nodeID))

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			break
		}

		c.setState(StatePolling)
		// A pass is never cut short by shutdown so the file is not left
		// half replaced; requests remain bounded by the transport timeout.
		err := c.Poll(context.WithoutCancel(ctx), iteration)

		if err != nil {
			if !c.config.Continuous {
				c.setState(StateStopping)
				return err
			}
			c.logger.Error("Polling pass failed, retrying after interval",
				zap.Int("iteration", iteration),
				zap.Duration("retry_in", c.config.Interval),
				zap.Error(err),
			)
		}

		if !c.config.Continuous {
			c.logger.Info("Single run mode, exiting")
			break
		}

		c.setState(StateSleeping)
		if !c.sleep(ctx, c.config.Interval) {
			break
		}
	}

	c.setState(StateStopping)
	c.logger.Info("Discovery generator stopped")
	return nil
}

// Poll runs one list, derive, write pass against the resolved node
func (c *Controller) Poll(ctx context.Context, iteration int) (err error) {
	ctx = observability.WithCycleID(ctx, observability.GenerateCycleID())
	nodeID := c.NodeID()
	ctx = observability.WithNodeID(ctx, nodeID)
	ctx, span := observability.StartSpan(ctx, tracerName, "poll",
		trace.WithAttributes(
			attribute.Int("iteration", iteration),
			attribute.String("node_id", nodeID),
		),
	)
	logger := observability.ContextLogger(ctx, c.logger)
	start := time.Now()

	defer func() {
		observability.PollCycleDurationSeconds.Observe(time.Since(start).Seconds())
		if err != nil {
			observability.PollCyclesTotal.WithLabelValues("failure").Inc()
			observability.RecordError(ctx, err)
			observability.SetSpanStatus(ctx, codes.Error, err.Error())
		} else {
			observability.PollCyclesTotal.WithLabelValues("success").Inc()
			observability.LastSuccessTimestampSeconds.SetToCurrentTime()
			observability.SetSpanStatus(ctx, codes.Ok, "")
		}
		span.End()
	}()

	allocs := c.config.ControlPlane.ListNodeAllocations(ctx, nodeID)
	observability.AllocationsObserved.Set(float64(len(allocs)))
	logger.Info("Found allocations on node",
		zap.Int("iteration", iteration),
		zap.Int("allocations", len(allocs)),
	)

	ts := targets.Derive(allocs, c.config.LogBaseDir)
	observability.AddSpanEvent(ctx, "targets.derived")

	if err := c.config.Writer.Write(ts); err != nil {
		return fmt.Errorf("failed to write discovery file: %w", err)
	}
	observability.TargetsWritten.Set(float64(len(ts)))
	c.ready.Store(true)

	logger.Info("Discovery file generated",
		zap.Int("allocations", len(allocs)),
		zap.Int("targets", len(ts)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

// sleep waits for d in slices of SleepSlice. It returns false as soon as a
// slice observes ctx cancelled.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	for remaining := d; remaining > 0; {
		slice := min(c.config.SleepSlice, remaining)

		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		remaining -= slice
	}
	return ctx.Err() == nil
}
