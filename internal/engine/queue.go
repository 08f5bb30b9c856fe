package engine

import (
	"sync"

	"github.com/roach88/ledcore/internal/signal"
)

// InputKind distinguishes host inputs.
type InputKind int

const (
	// InputAudio latches a captured audio frame for the next tick.
	InputAudio InputKind = iota + 1
	// InputToggle sets a user toggle from the UI.
	InputToggle
	// InputLayerEnabled enables or disables a layer.
	InputLayerEnabled
	// InputLayerOrder moves a layer to a new order_index.
	InputLayerOrder
)

func (k InputKind) String() string {
	switch k {
	case InputAudio:
		return "audio"
	case InputToggle:
		return "toggle"
	case InputLayerEnabled:
		return "layer_enabled"
	case InputLayerOrder:
		return "layer_order"
	}
	return "unknown"
}

// Input is an external change submitted from outside the tick goroutine.
// Inputs are applied between ticks, never during one.
type Input struct {
	Kind  InputKind
	Audio *signal.AudioFrame // InputAudio
	Name  string             // toggle name or layer id
	Bool  bool               // InputToggle, InputLayerEnabled
	Order int                // InputLayerOrder
}

// ToggleInput sets toggle name to v.
func ToggleInput(name string, v bool) Input {
	return Input{Kind: InputToggle, Name: name, Bool: v}
}

// AudioInput latches f for the next tick.
func AudioInput(f signal.AudioFrame) Input {
	return Input{Kind: InputAudio, Audio: &f}
}

// LayerEnabledInput enables or disables layer id.
func LayerEnabledInput(id string, enabled bool) Input {
	return Input{Kind: InputLayerEnabled, Name: id, Bool: enabled}
}

// LayerOrderInput moves layer id to order.
func LayerOrderInput(id string, order int) Input {
	return Input{Kind: InputLayerOrder, Name: id, Order: order}
}

// inputQueue is a thread-safe FIFO of host inputs.
//
// Producers (UI handlers, audio capture) enqueue from any goroutine; the tick
// goroutine drains the queue between ticks. The signal channel enables
// context-aware waiting in the Run loop.
type inputQueue struct {
	mu     sync.Mutex
	inputs []Input
	closed bool
	signal chan struct{} // buffered, size 1
}

func newInputQueue() *inputQueue {
	return &inputQueue{
		inputs: make([]Input, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends in. Returns false if the queue is closed.
func (q *inputQueue) Enqueue(in Input) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.inputs = append(q.inputs, in)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front input without blocking.
func (q *inputQueue) TryDequeue() (Input, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.inputs) == 0 {
		return Input{}, false
	}
	in := q.inputs[0]

	// Release the audio frame pointer held by the backing array.
	q.inputs[0] = Input{}
	if len(q.inputs) == 1 {
		q.inputs = q.inputs[:0]
	} else {
		q.inputs = q.inputs[1:]
	}
	return in, true
}

// Drain removes and returns every queued input in FIFO order.
func (q *inputQueue) Drain() []Input {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.inputs) == 0 {
		return nil
	}
	out := make([]Input, len(q.inputs))
	copy(out, q.inputs)
	clear(q.inputs)
	q.inputs = q.inputs[:0]
	return out
}

// Wait returns a channel that fires when inputs may be available, and is
// closed when the queue is closed.
func (q *inputQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued inputs.
func (q *inputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inputs)
}

// Closed reports whether Close has been called.
func (q *inputQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting inputs and wakes waiters.
func (q *inputQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
