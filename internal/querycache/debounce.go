package querycache

import (
	"sync"
	"time"
)

// Debouncer delays publishing a value until it has stopped changing for a
// quiet period. It gates search-as-you-type query keys: because the key
// itself changes with each settled value, in-flight requests for superseded
// keys are naturally abandoned — no explicit cancellation is needed.
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	latest  T
	out     chan T
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer[T any](delay time.Duration) *Debouncer[T] {
	return &Debouncer[T]{
		delay: delay,
		out:   make(chan T, 1),
	}
}

// Set records the latest value and restarts the quiet-period timer. Only the
// value in place when the timer fires is published.
func (d *Debouncer[T]) Set(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.latest = value
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	value := d.latest
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	// Replace any unconsumed pending value so a slow consumer only ever sees
	// the newest settled input.
	select {
	case d.out <- value:
	default:
		select {
		case <-d.out:
		default:
		}
		d.out <- value
	}
}

// C delivers settled values.
func (d *Debouncer[T]) C() <-chan T {
	return d.out
}

// Stop cancels any pending publish.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
