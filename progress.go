package brep

// ProgressFunc is invoked by long running operations with the completed
// fraction in [0,1]. Returning false requests cancellation.
type ProgressFunc func(fraction float32) (continueOp bool)

// ProgressStep is the canonical number of inner loop iterations between
// progress callback invocations.
const ProgressStep = 100_000

// CallProgress invokes fn and reports whether the operation should continue.
// A nil fn always continues. A panicking callback is recovered and treated
// as a cancellation request.
func CallProgress(fn ProgressFunc, fraction float32) (ok bool) {
	if fn == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	return fn(fraction)
}

// Ticker rate-limits progress callbacks to once every ProgressStep ticks.
// The zero value is not usable; create with NewTicker. A nil Ticker ticks
// without reporting.
type Ticker struct {
	fn    ProgressFunc
	op    string
	total int
	count int
	step  int
	// Ticks since base are mapped into the fraction range [lo, hi].
	base   int
	lo, hi float32
	last   float32
}

// NewTicker returns a Ticker for an operation with total expected iterations.
func NewTicker(op string, fn ProgressFunc, total int) *Ticker {
	if total <= 0 {
		total = 1
	}
	return &Ticker{fn: fn, op: op, total: total, step: ProgressStep, hi: 1}
}

// Tick advances by one iteration and returns a cancellation error if the
// callback asked to stop.
func (t *Ticker) Tick() error {
	if t == nil {
		return nil
	}
	t.count++
	if t.fn == nil || t.count%t.step != 0 {
		return nil
	}
	done := float32(t.count-t.base) / float32(t.total)
	return t.Report(t.lo + (t.hi-t.lo)*min(done, 1))
}

// Stage reports lo and maps the next total ticks into [lo, hi]. Operations
// made of several passes of estimated length start each pass with Stage.
func (t *Ticker) Stage(lo, hi float32, total int) error {
	if total <= 0 {
		total = 1
	}
	t.base, t.total, t.lo, t.hi = t.count, total, lo, hi
	return t.Report(lo)
}

// Report invokes the callback immediately with the given fraction. Reported
// fractions never decrease.
func (t *Ticker) Report(fraction float32) error {
	fraction = max(fraction, t.last)
	t.last = fraction
	if !CallProgress(t.fn, fraction) {
		return Cancelled(t.op)
	}
	return nil
}

// Done reports completion to the callback.
func (t *Ticker) Done() error { return t.Report(1) }
