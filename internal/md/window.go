package md

// Window is a bounded FIFO of recent trade prices backed by a ring buffer.
type Window struct {
	values []float64
	size   int
	index  int
	filled bool
	last   float64
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{
		values: make([]float64, size),
		size:   size,
	}
}

// Add appends a price, evicting the oldest one once the window is full.
func (w *Window) Add(value float64) {
	w.values[w.index] = value
	w.index = (w.index + 1) % w.size
	if w.index == 0 {
		w.filled = true
	}
	w.last = value
}

func (w *Window) Len() int {
	if w.filled {
		return w.size
	}
	return w.index
}

func (w *Window) Cap() int {
	return w.size
}

// Last returns the most recent price; ok is false for an empty window.
func (w *Window) Last() (float64, bool) {
	if w.Len() == 0 {
		return 0, false
	}
	return w.last, true
}

// Values returns the prices oldest first. The slice is a copy.
func (w *Window) Values() []float64 {
	length := w.Len()
	result := make([]float64, 0, length)
	if length == 0 {
		return result
	}
	if w.filled {
		result = append(result, w.values[w.index:]...)
	}
	result = append(result, w.values[:w.index]...)
	return result
}
