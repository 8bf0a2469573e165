// Package gate composes the path resolver, cgroup tracker, and
// length-bucketed matcher into the two hook-bound operations spec §4.4
// (execution-trace emitter) and §4.5 (enforcement gate) define. It is
// the pure, fully unit-testable core; internal/gate's backend_*.go
// files wire it to a real attachment point on supported hosts.
package gate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/strongdm/execwall/internal/cgrouptrack"
	"github.com/strongdm/execwall/internal/eventlog"
	"github.com/strongdm/execwall/internal/matcher"
	"github.com/strongdm/execwall/internal/pathresolve"
	"github.com/strongdm/execwall/internal/ringbuf"
	"github.com/strongdm/execwall/internal/telemetry/otel"
)

// Config carries the load-time parameters spec §4.6 describes as a
// read-only record addressable from all hooks.
type Config struct {
	Hierarchy          cgrouptrack.HierarchyKind
	V1ControllerIndex  cgrouptrack.ControllerIndex
	Strategy           pathresolve.Strategy
	LargeKeysSupported bool
	// LengthCap bounds resolved path length before bucket lookup; 512
	// on old-verifier hosts, PathMax otherwise (spec §4.5 step 4).
	LengthCap int
	Debug     bool
}

// DefaultLengthCap mirrors the unlimited-up-to-PATH_MAX case.
const DefaultLengthCap = pathresolve.PathMax

// OldVerifierLengthCap mirrors the small-key-only fallback cap.
const OldVerifierLengthCap = 512

// Engine wires components A (pathresolve), B (cgrouptrack), and C
// (matcher) to the two publish-capable hooks, D and E.
type Engine struct {
	cfg Config

	Tracker  *cgrouptrack.TrackerMap
	Bindings *cgrouptrack.PolicyBindingMap
	Modes    *cgrouptrack.PolicyModeMap
	Store    *matcher.Store

	execveRing  *ringbuf.RingBuffer
	monitorRing *ringbuf.RingBuffer

	scratchPool sync.Pool

	logger      *log.Logger
	instruments *otel.GateInstruments
}

// SetInstruments attaches OTEL metrics/tracing to subsequent Observe and
// Enforce calls. Optional; a nil or never-called engine simply skips
// instrumentation, matching otel.GateInstruments' own nil-receiver safety.
func (e *Engine) SetInstruments(inst *otel.GateInstruments) {
	e.instruments = inst
}

// New constructs an Engine. execveRing and monitorRing are the two
// ring buffers spec §3 specifies; callers (cmd/execwalld, tests)
// provide them so their capacity and lifecycle are owned by the
// caller rather than hidden inside the engine.
func New(cfg Config, execveRing, monitorRing *ringbuf.RingBuffer, logger *log.Logger) *Engine {
	if cfg.LengthCap == 0 {
		cfg.LengthCap = DefaultLengthCap
	}
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		cfg:         cfg,
		Tracker:     cgrouptrack.NewTrackerMap(),
		Bindings:    cgrouptrack.NewPolicyBindingMap(),
		Modes:       cgrouptrack.NewPolicyModeMap(),
		Store:       matcher.NewStore(cfg.LargeKeysSupported),
		execveRing:  execveRing,
		monitorRing: monitorRing,
		logger:      logger,
	}
	e.scratchPool.New = func() any { return new(pathresolve.Scratch) }
	return e
}

// SeedTracker, BindPolicy, SetPolicyMode, and InsertAllowlistEntry
// expose the engine's maps through the narrow interface
// internal/config.Apply uses to seed them at load time, keeping
// internal/config free of a direct dependency on this package.

// SeedTracker attaches cgid to tracker.
func (e *Engine) SeedTracker(cgid, tracker cgrouptrack.CgroupID) bool {
	return e.Tracker.Seed(cgid, tracker)
}

// BindPolicy binds tracker id t to policy p.
func (e *Engine) BindPolicy(t cgrouptrack.CgroupID, p cgrouptrack.PolicyID) bool {
	return e.Bindings.Bind(t, p)
}

// SetPolicyMode sets policy p's enforcement mode.
func (e *Engine) SetPolicyMode(p cgrouptrack.PolicyID, mode cgrouptrack.Mode) bool {
	return e.Modes.Set(p, mode)
}

// InsertAllowlistEntry adds path to policy's allowlist.
func (e *Engine) InsertAllowlistEntry(policy uint64, path string) bool {
	return e.Store.Insert(policy, path)
}

func (e *Engine) trace(event string, kv ...any) {
	if !e.cfg.Debug {
		return
	}
	parts := []string{fmt.Sprintf("time=%d event=%s", time.Now().UnixNano(), event)}
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
	}
	line := parts[0]
	for _, p := range parts[1:] {
		line += " " + p
	}
	e.logger.Print(line)
}

func (e *Engine) resolve(leaf, root pathresolve.PathHandle) (*pathresolve.Scratch, pathresolve.Result) {
	scratch := e.scratchPool.Get().(*pathresolve.Scratch)
	res := pathresolve.Walk(scratch, leaf, root, e.cfg.Strategy)
	return scratch, res
}

func (e *Engine) putScratch(s *pathresolve.Scratch) {
	e.scratchPool.Put(s)
}

// Observe implements spec §4.4: resolve the execed binary's path,
// compute cgid/tracker, and publish an observe-mode record on the
// execve ring. A failed resolution drops the event, per spec §7's
// "the observation emitter drops the event on any failure", and
// returns ErrUnresolved to the caller.
func (e *Engine) Observe(leaf, root pathresolve.PathHandle, cgid cgrouptrack.CgroupID) error {
	span, ctx := e.instruments.StartDecision(context.Background(), "observe")

	scratch, res := e.resolve(leaf, root)
	defer e.putScratch(scratch)

	if res.Offset < 0 {
		e.trace("observe_dropped", "reason", ErrUnresolved)
		e.instruments.RecordResolverError(ctx, "unresolved")
		return ErrUnresolved
	}

	tracker := e.Tracker.Tracker(cgid)
	path := string(scratch[res.Offset : res.Offset+res.Len])
	rec := eventlog.NewRecord(uint64(cgid), uint64(tracker), eventlog.ModeObserve, path)
	wire, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := e.execveRing.Publish(wire); err != nil {
		e.trace("observe_publish_failed", "err", err)
		return err
	}
	e.trace("observe", "cgid", cgid, "tracker", tracker, "path", path)
	e.instruments.RecordDecision(span, "observe", "observe")
	return nil
}

// ObserveResolved is Observe's counterpart for backends that already
// hold a canonical, OS-resolved absolute path (spec §0: the fanotify
// backend reads one via /proc/self/fd/<fd>) instead of a dentry/mount
// graph to walk.
func (e *Engine) ObserveResolved(path string, cgid cgrouptrack.CgroupID) error {
	span, ctx := e.instruments.StartDecision(context.Background(), "observe")

	scratch := e.scratchPool.Get().(*pathresolve.Scratch)
	defer e.putScratch(scratch)
	res := pathresolve.PlaceResolved(scratch, path)
	if res.Offset < 0 {
		e.trace("observe_dropped", "reason", ErrUnresolved)
		e.instruments.RecordResolverError(ctx, "unresolved")
		return ErrUnresolved
	}
	tracker := e.Tracker.Tracker(cgid)
	rec := eventlog.NewRecord(uint64(cgid), uint64(tracker), eventlog.ModeObserve, path)
	wire, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := e.execveRing.Publish(wire); err != nil {
		e.trace("observe_publish_failed", "err", err)
		return err
	}
	e.trace("observe", "cgid", cgid, "tracker", tracker, "path", path)
	e.instruments.RecordDecision(span, "observe", "observe")
	return nil
}

// EnforceResolved is Enforce's counterpart for backends holding an
// already-resolved path; see ObserveResolved.
func (e *Engine) EnforceResolved(path string, cgid cgrouptrack.CgroupID) Decision {
	span, ctx := e.instruments.StartDecision(context.Background(), "enforce")

	tid := e.Tracker.Tracker(cgid)
	if tid == 0 {
		e.trace("enforce_allow", "reason", "no_tracker")
		e.instruments.RecordDecision(span, "allow", "untracked")
		return DecisionAllow
	}
	policy, ok := e.Bindings.Lookup(tid)
	if !ok {
		e.trace("enforce_allow", "reason", "no_binding", "tracker", tid)
		e.instruments.RecordDecision(span, "allow", "unbound")
		return DecisionAllow
	}

	scratch := e.scratchPool.Get().(*pathresolve.Scratch)
	defer e.putScratch(scratch)
	res := pathresolve.PlaceResolved(scratch, path)
	if res.Offset < 0 {
		e.trace("enforce_allow", "reason", ErrUnresolved, "policy", policy)
		e.instruments.RecordResolverError(ctx, "unresolved")
		e.instruments.RecordDecision(span, "allow", "unresolved")
		return DecisionAllow
	}

	if res.Len > e.cfg.LengthCap {
		e.trace("enforce_allow", "reason", ErrLengthCapExceeded, "len", res.Len)
		e.instruments.RecordResolverError(ctx, "length_cap_exceeded")
		e.instruments.RecordDecision(span, "allow", "length_cap")
		return DecisionAllow
	}

	if e.Store.Contains(uint64(policy), path) {
		e.trace("enforce_allow", "reason", "allowlisted", "path", path)
		e.instruments.RecordDecision(span, "allow", "allowlisted")
		return DecisionAllow
	}

	mode, ok := e.Modes.Lookup(policy)
	if !ok {
		e.trace("enforce_monitor_fallback", "reason", ErrConfigMissing, "policy", policy)
		mode = cgrouptrack.ModeMonitor
	}

	wireMode := eventlog.ModeMonitor
	if mode == cgrouptrack.ModeEnforce {
		wireMode = eventlog.ModeEnforce
	}
	rec := eventlog.NewRecord(uint64(cgid), uint64(tid), wireMode, path)
	wire, err := rec.MarshalBinary()
	if err == nil {
		if _, err := e.monitorRing.Publish(wire); err != nil {
			e.trace("monitor_publish_failed", "err", err)
		}
	}

	if mode == cgrouptrack.ModeEnforce {
		e.trace("enforce_deny", "policy", policy, "path", path)
		e.instruments.RecordDecision(span, "deny", mode.String())
		return DecisionDeny
	}
	e.trace("enforce_monitor", "policy", policy, "path", path)
	e.instruments.RecordDecision(span, "allow", mode.String())
	return DecisionAllow
}

// Enforce implements spec §4.5's eight-step sequence exactly, always
// returning a Decision: it never surfaces an error, because every
// failure mode here is specified to fail open (or fall back to
// monitor for a missing mode).
func (e *Engine) Enforce(leaf, root pathresolve.PathHandle, cgid cgrouptrack.CgroupID) Decision {
	span, ctx := e.instruments.StartDecision(context.Background(), "enforce")

	// Step 1: tracker id; zero means allow.
	tid := e.Tracker.Tracker(cgid)
	if tid == 0 {
		e.trace("enforce_allow", "reason", "no_tracker")
		e.instruments.RecordDecision(span, "allow", "untracked")
		return DecisionAllow
	}

	// Step 2: policy binding; absent means allow.
	policy, ok := e.Bindings.Lookup(tid)
	if !ok {
		e.trace("enforce_allow", "reason", "no_binding", "tracker", tid)
		e.instruments.RecordDecision(span, "allow", "unbound")
		return DecisionAllow
	}

	// Step 3: resolve path; failure means allow.
	scratch, res := e.resolve(leaf, root)
	defer e.putScratch(scratch)
	if res.Offset < 0 {
		e.trace("enforce_allow", "reason", ErrUnresolved, "policy", policy)
		e.instruments.RecordResolverError(ctx, "unresolved")
		e.instruments.RecordDecision(span, "allow", "unresolved")
		return DecisionAllow
	}
	path := string(scratch[res.Offset : res.Offset+res.Len])

	// Step 4: length cap; exceeding it means allow.
	if res.Len > e.cfg.LengthCap {
		e.trace("enforce_allow", "reason", ErrLengthCapExceeded, "len", res.Len)
		e.instruments.RecordResolverError(ctx, "length_cap_exceeded")
		e.instruments.RecordDecision(span, "allow", "length_cap")
		return DecisionAllow
	}

	// Step 5: bucket membership test; hit means allow.
	if e.Store.Contains(uint64(policy), path) {
		e.trace("enforce_allow", "reason", "allowlisted", "path", path)
		e.instruments.RecordDecision(span, "allow", "allowlisted")
		return DecisionAllow
	}

	// Step 6: mode lookup; absent means log and behave as monitor.
	mode, ok := e.Modes.Lookup(policy)
	if !ok {
		e.trace("enforce_monitor_fallback", "reason", ErrConfigMissing, "policy", policy)
		mode = cgrouptrack.ModeMonitor
	}

	// Step 7: publish a monitoring-ring record regardless of mode.
	wireMode := eventlog.ModeMonitor
	if mode == cgrouptrack.ModeEnforce {
		wireMode = eventlog.ModeEnforce
	}
	rec := eventlog.NewRecord(uint64(cgid), uint64(tid), wireMode, path)
	wire, err := rec.MarshalBinary()
	if err == nil {
		if _, err := e.monitorRing.Publish(wire); err != nil {
			e.trace("monitor_publish_failed", "err", err)
		}
	}

	// Step 8: allow for monitor, deny for enforce.
	if mode == cgrouptrack.ModeEnforce {
		e.trace("enforce_deny", "policy", policy, "path", path)
		e.instruments.RecordDecision(span, "deny", mode.String())
		return DecisionDeny
	}
	e.trace("enforce_monitor", "policy", policy, "path", path)
	e.instruments.RecordDecision(span, "allow", mode.String())
	return DecisionAllow
}
