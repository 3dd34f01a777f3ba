package memory

import (
	"context"

	"github.com/hupe1980/saathi/core"
)

// Journal is the durable backing of a store. Upsert and Delete are called with
// the affected key locked, before the in-memory bank changes; a failing call
// aborts the operation.
type Journal interface {
	Load(ctx context.Context) ([]core.MemoryRecord, error)
	Upsert(ctx context.Context, rec core.MemoryRecord) error
	Delete(ctx context.Context, keys ...core.RecordKey) error
}

// PinSource reports the natural keys referenced by open sessions. Session
// stores implement it.
type PinSource interface {
	OpenScratchKeys(ctx context.Context) (map[string]struct{}, error)
}

// PinSet is a static PinSource, handy for tests and single-session tools.
type PinSet map[string]struct{}

// Pins builds a PinSet from natural keys.
func Pins(keys ...string) PinSet {
	p := make(PinSet, len(keys))
	for _, k := range keys {
		p[k] = struct{}{}
	}
	return p
}

// OpenScratchKeys returns the set itself.
func (p PinSet) OpenScratchKeys(context.Context) (map[string]struct{}, error) {
	return p, nil
}
