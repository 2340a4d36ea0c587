// Package correlate classifies records and pairs start and end events per
// (identity, procedure).
package correlate

import (
	"runtime"
	"sort"

	"github.com/sourcegraph/conc/iter"

	"firestige.xyz/proclat/internal/core"
)

// Unpaired reasons.
const (
	ReasonNoEnd   = "no_end"   // A start was held but no end followed
	ReasonNoStart = "no_start" // Only ends were seen
)

// Unpaired describes an (identity, procedure) group that produced no pair.
type Unpaired struct {
	Identity  core.CanonicalId
	Procedure core.ProcedureKind
	Reason    string
	Event     *core.ClassifiedEvent // Held start, or first dropped end
}

// Counters summarizes the machines of one correlation run.
type Counters struct {
	Groups         int
	DroppedEnds    int // Ends without a held start
	IgnoredStarts  int // Duplicate starts under first_wins
	ReplacedStarts int // Duplicate starts under last_wins
	AfterPaired    int // Events reaching a PAIRED machine
}

// Result is the outcome of Engine.Correlate.
type Result struct {
	Pairs    []core.EventPair
	Unpaired []Unpaired
	States   map[string]int // Final state name -> group count
	Counters Counters
}

// Options tunes an Engine.
type Options struct {
	// Workers bounds the goroutines running machines; 0 means GOMAXPROCS.
	Workers int
	// Merged orders events by timestamp first, for events pooled from
	// several traces that share a timebase. Native and ordinal ids are only
	// meaningful inside one network function, so merged groups of those are
	// also split by function.
	Merged bool
}

// Engine pairs classified events. Machines of different groups never
// interact, so groups run in parallel.
type Engine struct {
	opts Options
}

// NewEngine returns an engine with opts.
func NewEngine(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{opts: opts}
}

type groupKey struct {
	id    core.CanonicalId
	proc  core.ProcedureKind
	scope string
}

type group struct {
	key    groupKey
	events []*core.ClassifiedEvent
}

type groupOutcome struct {
	ctx      *SessionContext
	unpaired *Unpaired
}

// Correlate orders events, groups them by (identity, procedure) and runs
// one machine per group. Output ordering does not depend on scheduling.
func (e *Engine) Correlate(events []*core.ClassifiedEvent) *Result {
	ordered := make([]*core.ClassifiedEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, e.less(ordered))

	index := make(map[groupKey]int)
	var groups []*group
	for _, ev := range ordered {
		k := groupKey{id: ev.Identity, proc: ev.Procedure}
		if e.opts.Merged && ev.Identity.Space != core.SpaceSubscriber {
			k.scope = ev.Record.Function
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, &group{key: k})
		}
		groups[i].events = append(groups[i].events, ev)
	}

	mapper := iter.Mapper[*group, groupOutcome]{MaxGoroutines: e.opts.Workers}
	outcomes := mapper.Map(groups, func(g **group) groupOutcome {
		return runGroup(*g)
	})

	res := &Result{States: make(map[string]int)}
	for _, o := range outcomes {
		ctx := o.ctx
		res.States[ctx.state.Name()]++
		res.Counters.Groups++
		res.Counters.DroppedEnds += ctx.droppedEnds
		res.Counters.IgnoredStarts += ctx.ignoredStarts
		res.Counters.ReplacedStarts += ctx.replacedStarts
		res.Counters.AfterPaired += ctx.afterPaired
		if p, ok := ctx.Pair(); ok {
			res.Pairs = append(res.Pairs, p)
		}
		if o.unpaired != nil {
			res.Unpaired = append(res.Unpaired, *o.unpaired)
		}
	}

	sortPairs(res.Pairs)
	sortUnpaired(res.Unpaired)
	return res
}

func runGroup(g *group) groupOutcome {
	ctx := NewSessionContext(g.key.id, g.key.proc)
	var firstEnd *core.ClassifiedEvent
	for _, ev := range g.events {
		if firstEnd == nil && ev.Role == core.RoleEnd {
			firstEnd = ev
		}
		ctx.HandleEvent(ev)
	}

	out := groupOutcome{ctx: ctx}
	switch ctx.state.Name() {
	case StateHaveStart:
		out.unpaired = &Unpaired{Identity: ctx.identity, Procedure: ctx.procedure, Reason: ReasonNoEnd, Event: ctx.start}
	case StateAwaitingStart:
		if firstEnd != nil {
			out.unpaired = &Unpaired{Identity: ctx.identity, Procedure: ctx.procedure, Reason: ReasonNoStart, Event: firstEnd}
		}
	}
	return out
}

func (e *Engine) less(evs []*core.ClassifiedEvent) func(i, j int) bool {
	if e.opts.Merged {
		return func(i, j int) bool {
			a, b := evs[i], evs[j]
			if a.Timestamp() != b.Timestamp() {
				return a.Timestamp() < b.Timestamp()
			}
			if a.Record.Trace != b.Record.Trace {
				return a.Record.Trace < b.Record.Trace
			}
			if a.Sequence() != b.Sequence() {
				return a.Sequence() < b.Sequence()
			}
			return a.Order < b.Order
		}
	}
	return func(i, j int) bool {
		a, b := evs[i], evs[j]
		if a.Sequence() != b.Sequence() {
			return a.Sequence() < b.Sequence()
		}
		if a.Timestamp() != b.Timestamp() {
			return a.Timestamp() < b.Timestamp()
		}
		return a.Order < b.Order
	}
}

func eventLess(a, b *core.ClassifiedEvent) bool {
	if a.Timestamp() != b.Timestamp() {
		return a.Timestamp() < b.Timestamp()
	}
	if a.Record.Trace != b.Record.Trace {
		return a.Record.Trace < b.Record.Trace
	}
	return a.Sequence() < b.Sequence()
}

func sortPairs(pairs []core.EventPair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Procedure != b.Procedure {
			return a.Procedure < b.Procedure
		}
		if eventLess(a.Start, b.Start) || eventLess(b.Start, a.Start) {
			return eventLess(a.Start, b.Start)
		}
		return a.Identity.Less(b.Identity)
	})
}

func sortUnpaired(list []Unpaired) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Procedure != b.Procedure {
			return a.Procedure < b.Procedure
		}
		if a.Identity != b.Identity {
			return a.Identity.Less(b.Identity)
		}
		return a.Reason < b.Reason
	})
}
