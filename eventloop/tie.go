package eventloop

// AliveFunc reports whether a Channel's logical owner (typically a
// Connection, see package conn) is still live. It backs Channel.SetTie.
type AliveFunc func() bool

// Tie is a back-reference from a Channel to its logical owner, used to
// guard HandleEvent: if the owner has begun tearing down by the time a
// callback would run, dispatch is skipped silently instead of running
// against a half-destroyed owner.
//
// A refcounted-pointer implementation would tie a Channel to its owner
// with a weak reference and upgrade it at dispatch entry, failing exactly
// when the strong refcount has already hit zero — a deterministic,
// synchronous event. The standard library's weak.Pointer looks like the
// obvious translation, but it is the wrong one here: weak.Pointer.Value
// only reports nil once the GC has actually collected the referent, which
// is not deterministic and would turn "destroyed mid-callback does not
// crash" into a race against the garbage collector instead of a
// synchronous guarantee. Go has no refcounted pointer type, so the
// deterministic signal has to be modeled explicitly: Tie wraps a closure
// the owner supplies, which it flips the moment its own teardown begins.
type Tie struct {
	alive AliveFunc
}

// MakeTie wraps alive as a Tie. A nil alive produces a Tie that always
// reports not-alive.
func MakeTie(alive AliveFunc) Tie {
	return Tie{alive: alive}
}

// Alive reports whether the tied owner is still live.
func (t Tie) Alive() bool {
	return t.alive != nil && t.alive()
}
