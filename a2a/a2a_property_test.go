package a2a

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// op is one step of a random bus workload: either a publish or a bounded read.
type op struct {
	Publish    bool
	Actor      int
	Topic      int
	ReadBudget int
}

func genOp() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.IntRange(0, 3),
		gen.IntRange(0, 2),
		gen.IntRange(0, 4),
	).Map(func(vals []any) op {
		return op{Publish: vals[0].(bool), Actor: vals[1].(int), Topic: vals[2].(int), ReadBudget: vals[3].(int)}
	})
}

func TestBus_ExactlyOnceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every message reaches every other subscriber exactly once, in order", prop.ForAll(
		func(ops []op) bool {
			b := NewBus("run")
			received := map[string][]uint64{} // actor/topic -> seqs

			read := func(actor, topic, budget int) {
				key := fmt.Sprintf("a%d/t%d", actor, topic)
				n := 0
				for m := range b.Subscribe(fmt.Sprintf("a%d", actor), fmt.Sprintf("t%d", topic)) {
					received[key] = append(received[key], m.Seq)
					n++
					if budget > 0 && n >= budget {
						break
					}
				}
			}

			for _, o := range ops {
				if o.Publish {
					if _, err := b.Publish(fmt.Sprintf("a%d", o.Actor), fmt.Sprintf("t%d", o.Topic), nil); err != nil {
						return false
					}
					continue
				}
				read(o.Actor, o.Topic, o.ReadBudget)
			}
			// drain everything
			for a := range 4 {
				for tp := range 3 {
					read(a, tp, 0)
				}
			}

			history := b.History()
			for a := range 4 {
				for tp := range 3 {
					var want []uint64
					for _, m := range history {
						if m.Topic == fmt.Sprintf("t%d", tp) && m.Sender != fmt.Sprintf("a%d", a) {
							want = append(want, m.Seq)
						}
					}
					got := received[fmt.Sprintf("a%d/t%d", a, tp)]
					if len(got) != len(want) {
						return false
					}
					for i := range got {
						if got[i] != want[i] {
							return false
						}
					}
				}
			}
			for i := 1; i < len(history); i++ {
				if history[i].Seq <= history[i-1].Seq {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genOp()),
	))

	properties.TestingRun(t)
}
