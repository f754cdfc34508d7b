package boundary

import "sync"

// AsyncFaultSink receives a fault observed outside the producer's
// synchronous execution path.
type AsyncFaultSink func(fault error, trace string)

// The process-wide sink chain. Controllers push their sink on creation
// and pop it on disposal, so the previously active sink is restored
// rather than permanently displaced. Multiple live boundaries stack.
var (
	hookMu    sync.Mutex
	hookChain []*hookEntry
)

type hookEntry struct {
	sink AsyncFaultSink
}

// installSink pushes a sink onto the chain and returns a restore
// function that removes exactly that entry, wherever it sits by then.
func installSink(sink AsyncFaultSink) (restore func()) {
	hookMu.Lock()
	defer hookMu.Unlock()
	e := &hookEntry{sink: sink}
	hookChain = append(hookChain, e)
	return func() {
		hookMu.Lock()
		defer hookMu.Unlock()
		for i, cur := range hookChain {
			if cur == e {
				hookChain = append(hookChain[:i], hookChain[i+1:]...)
				return
			}
		}
	}
}

// DispatchAsyncFault delivers a fault from the host environment to the
// most recently installed boundary sink. It returns false when no
// boundary is active, in which case the host's own fault handling
// should proceed.
func DispatchAsyncFault(fault error, trace string) bool {
	hookMu.Lock()
	var sink AsyncFaultSink
	if n := len(hookChain); n > 0 {
		sink = hookChain[n-1].sink
	}
	hookMu.Unlock()

	if sink == nil {
		return false
	}
	sink(fault, trace)
	return true
}
