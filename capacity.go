package kage

import "sync/atomic"

// MaxAgents caps the number of live Agent instances per process. The cap
// is global: root agents and clones at any depth share the same pool.
const MaxAgents = 5

// MaxCloneDepth caps the delegation hierarchy. A clone at this depth may
// not delegate further.
const MaxCloneDepth = 3

var liveAgents atomic.Int64

// acquireAgentSlot claims one instance slot, failing when the process is
// already at MaxAgents. The slot must be released exactly once.
func acquireAgentSlot() error {
	for {
		n := liveAgents.Load()
		if n >= MaxAgents {
			return &ErrCapacity{Limit: MaxAgents}
		}
		if liveAgents.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// releaseAgentSlot returns a slot to the pool. Releasing below zero is
// clamped so a double release cannot corrupt the counter.
func releaseAgentSlot() {
	for {
		n := liveAgents.Load()
		if n <= 0 {
			return
		}
		if liveAgents.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// LiveAgents reports the number of currently live agents in this process.
func LiveAgents() int {
	return int(liveAgents.Load())
}
