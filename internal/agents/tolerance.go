// Tolerance window: a fixed-length ring of recent concentrations whose running
// sum feeds the habit curve.
package agents

// ToleranceWindow holds the last N concentration values, oldest first, padded
// with zeros until N values have been pushed. The running sum is maintained
// incrementally so habit costs O(1) per tick.
type ToleranceWindow struct {
	buf  []float64
	head int // index of the oldest value, where the next push lands
	sum  float64
}

// NewToleranceWindow returns a zero-filled window of length n.
func NewToleranceWindow(n int) *ToleranceWindow {
	if n < 1 {
		n = 1
	}
	return &ToleranceWindow{buf: make([]float64, n)}
}

// Push drops the oldest value and appends x.
func (w *ToleranceWindow) Push(x float64) {
	w.sum += x - w.buf[w.head]
	w.buf[w.head] = x
	w.head = (w.head + 1) % len(w.buf)
}

// ReplaceNewest overwrites the most recently pushed value.
func (w *ToleranceWindow) ReplaceNewest(x float64) {
	i := (w.head - 1 + len(w.buf)) % len(w.buf)
	w.sum += x - w.buf[i]
	w.buf[i] = x
}

// Sum returns the sum of the window.
func (w *ToleranceWindow) Sum() float64 {
	return w.sum
}

// Mean returns Sum divided by the window length, zero padding included.
func (w *ToleranceWindow) Mean() float64 {
	return w.sum / float64(len(w.buf))
}

// Len returns the window length.
func (w *ToleranceWindow) Len() int {
	return len(w.buf)
}

// Values returns a copy of the window, oldest first.
func (w *ToleranceWindow) Values() []float64 {
	out := make([]float64, 0, len(w.buf))
	out = append(out, w.buf[w.head:]...)
	out = append(out, w.buf[:w.head]...)
	return out
}
