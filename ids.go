package mcpruntime

import "sync/atomic"

// idGenerator hands out unique, monotonically increasing JSON-RPC request
// ids. It is the single source of request ids for the whole process; no
// other component is permitted to mint one.
//
// A zero idGenerator is ready to use and starts at 1 (0 is reserved so a
// zero-valued id is never mistaken for a real in-flight request).
type idGenerator struct {
	counter atomic.Uint64
}

// next returns the next id, strictly greater than every id previously
// returned by this generator, including under concurrent callers.
func (g *idGenerator) next() uint64 {
	return g.counter.Add(1)
}
