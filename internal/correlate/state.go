package correlate

import (
	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/log"
)

// SessionState is one state of the per (identity, procedure) pairing machine.
type SessionState interface {
	Name() string
	IsTerminated() bool
	HandleEvent(ctx *SessionContext, ev *core.ClassifiedEvent) SessionState
}

// State names.
const (
	StateAwaitingStart = "AWAITING_START"
	StateHaveStart     = "HAVE_START"
	StatePaired        = "PAIRED"
)

// AwaitingStartState holds no start yet. Ends seen here are dropped.
type AwaitingStartState struct{}

func (s *AwaitingStartState) Name() string       { return StateAwaitingStart }
func (s *AwaitingStartState) IsTerminated() bool { return false }

func (s *AwaitingStartState) HandleEvent(ctx *SessionContext, ev *core.ClassifiedEvent) SessionState {
	switch ev.Role {
	case core.RoleStart:
		ctx.start = ev
		return &HaveStartState{}
	case core.RoleEnd:
		ctx.droppedEnds++
	}
	return s
}

// HaveStartState holds a start and waits for its end.
type HaveStartState struct{}

func (s *HaveStartState) Name() string       { return StateHaveStart }
func (s *HaveStartState) IsTerminated() bool { return false }

func (s *HaveStartState) HandleEvent(ctx *SessionContext, ev *core.ClassifiedEvent) SessionState {
	switch ev.Role {
	case core.RoleStart:
		if ev.Policy == core.StartLastWins {
			ctx.start = ev
			ctx.replacedStarts++
		} else {
			ctx.ignoredStarts++
		}
	case core.RoleEnd:
		// Only reachable with merged traces whose clocks disagree.
		if ev.Timestamp() < ctx.start.Timestamp() {
			ctx.droppedEnds++
			return s
		}
		ctx.end = ev
		return &PairedState{}
	}
	return s
}

// PairedState is terminal: one trace segment covers one procedure instance
// per identity, so later events are ignored.
type PairedState struct{}

func (s *PairedState) Name() string       { return StatePaired }
func (s *PairedState) IsTerminated() bool { return true }

func (s *PairedState) HandleEvent(ctx *SessionContext, ev *core.ClassifiedEvent) SessionState {
	ctx.afterPaired++
	return s
}

// SessionContext runs the machine of one (identity, procedure) group.
type SessionContext struct {
	identity  core.CanonicalId
	procedure core.ProcedureKind
	state     SessionState

	start *core.ClassifiedEvent
	end   *core.ClassifiedEvent

	droppedEnds    int
	ignoredStarts  int
	replacedStarts int
	afterPaired    int
}

// NewSessionContext starts a machine in AWAITING_START.
func NewSessionContext(id core.CanonicalId, procedure core.ProcedureKind) *SessionContext {
	return &SessionContext{
		identity:  id,
		procedure: procedure,
		state:     &AwaitingStartState{},
	}
}

// HandleEvent feeds one event, in processing order.
func (ctx *SessionContext) HandleEvent(ev *core.ClassifiedEvent) {
	next := ctx.state.HandleEvent(ctx, ev)
	if next != ctx.state {
		ctx.transitionTo(next)
	}
}

func (ctx *SessionContext) transitionTo(next SessionState) {
	logger := log.GetLogger()
	if logger.IsTraceEnabled() {
		logger.WithField("identity", ctx.identity.String()).
			WithField("procedure", string(ctx.procedure)).
			Tracef("session state %s -> %s", ctx.state.Name(), next.Name())
	}
	ctx.state = next
}

// State returns the current state.
func (ctx *SessionContext) State() SessionState { return ctx.state }

// Pair returns the pair once the machine reached PAIRED.
func (ctx *SessionContext) Pair() (core.EventPair, bool) {
	if !ctx.state.IsTerminated() {
		return core.EventPair{}, false
	}
	return core.EventPair{
		Identity:  ctx.identity,
		Procedure: ctx.procedure,
		Start:     ctx.start,
		End:       ctx.end,
	}, true
}
