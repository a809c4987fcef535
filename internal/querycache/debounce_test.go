package querycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebounceSettlesOnLatestValue(t *testing.T) {
	d := NewDebouncer[string](150 * time.Millisecond)
	defer d.Stop()

	// Rapid keystrokes well inside the quiet period.
	d.Set("a")
	time.Sleep(20 * time.Millisecond)
	d.Set("ab")
	time.Sleep(20 * time.Millisecond)
	d.Set("abc")

	select {
	case v := <-d.C():
		assert.Equal(t, "abc", v, "only the final settled value fires")
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}

	// No further emissions for the superseded inputs.
	select {
	case v := <-d.C():
		t.Fatalf("unexpected extra emission %q", v)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDebounceKeepsNewestPendingValue(t *testing.T) {
	d := NewDebouncer[string](10 * time.Millisecond)
	defer d.Stop()

	d.Set("first")
	require.Eventually(t, func() bool { return len(d.C()) == 1 }, time.Second, time.Millisecond)

	// The consumer is slow; a second settle replaces the unread value.
	d.Set("second")
	require.Eventually(t, func() bool {
		select {
		case v := <-d.C():
			return v == "second"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestDebounceStop(t *testing.T) {
	d := NewDebouncer[int](10 * time.Millisecond)
	d.Set(1)
	d.Stop()

	select {
	case v := <-d.C():
		t.Fatalf("stopped debouncer emitted %d", v)
	case <-time.After(100 * time.Millisecond):
	}
}
