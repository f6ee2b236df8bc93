package reliability

import "errors"

// DefaultWindowSize is the initial width of the reliable window
// (spec.md §3: reliableWindow_d = {start, end}, initially {0, 2048}).
const DefaultWindowSize = 2048

// ErrDuplicateIndex is returned when a reliable index already present in
// the window's received set is admitted again; the session is torn down
// (spec.md §7).
var ErrDuplicateIndex = errors.New("reliability: duplicate reliable index")

// Window is the sliding set of accepted inbound reliable indices for one
// direction (spec.md §3, invariants 2–3).
type Window struct {
	Start, End uint32
	received   map[uint32]struct{}
}

// NewWindow constructs a window at its initial {0, DefaultWindowSize}
// extent.
func NewWindow() *Window {
	return &Window{Start: 0, End: DefaultWindowSize, received: make(map[uint32]struct{})}
}

// Admit applies spec.md §4.3's window-admission rule for reliable index i.
// It returns admitted=false with a nil error when i falls outside
// [Start, End] — a silent drop, not a fatal condition. A duplicate index
// already in the window's received set is fatal and returns
// ErrDuplicateIndex.
func (w *Window) Admit(i uint32) (admitted bool, err error) {
	if i < w.Start || i > w.End {
		return false, nil
	}
	if _, dup := w.received[i]; dup {
		return false, ErrDuplicateIndex
	}
	w.received[i] = struct{}{}
	for {
		if _, ok := w.received[w.Start]; !ok {
			break
		}
		delete(w.received, w.Start)
		w.Start++
		w.End++
	}
	return true, nil
}
