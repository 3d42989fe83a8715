package strategy

// priceWindow is a fixed capacity ring buffer of the most recent prices.
type priceWindow struct {
	buf   []float64
	start int
	size  int
}

func newPriceWindow(capacity int) *priceWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &priceWindow{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest price when full.
func (w *priceWindow) Push(v float64) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = v
		w.size++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

func (w *priceWindow) Len() int { return w.size }

func (w *priceWindow) Cap() int { return len(w.buf) }

// Values returns the prices oldest first.
func (w *priceWindow) Values() []float64 {
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Last returns the newest n prices oldest first, or all of them if fewer exist.
func (w *priceWindow) Last(n int) []float64 {
	if n > w.size {
		n = w.size
	}
	out := make([]float64, n)
	offset := w.size - n
	for i := 0; i < n; i++ {
		out[i] = w.buf[(w.start+offset+i)%len(w.buf)]
	}
	return out
}

func (w *priceWindow) Reset() {
	w.start = 0
	w.size = 0
}
