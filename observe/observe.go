package observe

import (
	"context"
	"slices"

	"github.com/hupe1980/saathi/core"
)

// Multi fans events out to several observers in order. Nil observers are
// skipped.
type Multi []core.Observer

var _ core.Observer = Multi(nil)

// Observe implements core.Observer.
func (m Multi) Observe(ctx context.Context, ev core.Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}

// Combine returns a single observer for observers. It avoids wrapping when
// only one observer is left after dropping nils.
func Combine(observers ...core.Observer) core.Observer {
	var live Multi
	for _, o := range observers {
		if o == nil {
			continue
		}
		if _, nop := o.(core.NopObserver); nop {
			continue
		}
		live = append(live, o)
	}
	switch len(live) {
	case 0:
		return core.NopObserver{}
	case 1:
		return live[0]
	default:
		return live
	}
}

// Filter forwards only events of the given kinds to next.
func Filter(next core.Observer, kinds ...core.EventKind) core.Observer {
	return core.ObserverFunc(func(ctx context.Context, ev core.Event) {
		if slices.Contains(kinds, ev.Kind) {
			next.Observe(ctx, ev)
		}
	})
}
