package taskloop

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoop_OrderedExecution(t *testing.T) {
	l := New()
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Sync(func() {})

	if len(got) != 100 {
		t.Fatalf("expected 100 tasks, ran %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task order violated at index %d: got %d", i, v)
		}
	}
}

func TestLoop_SyncObservesPriorPosts(t *testing.T) {
	l := New()
	defer l.Close()

	counter := 0
	l.Post(func() { counter++ })
	l.Post(func() { counter++ })

	var observed int
	l.Sync(func() { observed = counter })
	assert.Equal(t, 2, observed)
}

func TestLoop_PostAfterClose(t *testing.T) {
	l := New()
	l.Close()

	// Must not panic or hang.
	l.Post(func() { t.Fatal("task ran after close") })
}

func TestCancellable_CancelBeforeRun(t *testing.T) {
	ran := false
	c := NewCancellable(func() { ran = true })
	c.Cancel()
	c.Run()
	assert.False(t, ran)
}

func TestCancellable_RunOnce(t *testing.T) {
	count := 0
	c := NewCancellable(func() { count++ })
	c.Run()
	c.Cancel()
	c.Run()
	assert.Equal(t, 1, count)
}

// postRecorder queues runner posts so a test controls when a timer
// completion runs, independent of which goroutine fired the timer.
type postRecorder struct {
	ch chan func()
}

func newPostRecorder() *postRecorder {
	return &postRecorder{ch: make(chan func(), 1)}
}

func (r *postRecorder) Post(fn func()) { r.ch <- fn }

func (r *postRecorder) next(t *testing.T) func() {
	t.Helper()
	select {
	case fn := <-r.ch:
		return fn
	case <-time.After(time.Second):
		t.Fatal("no completion was posted")
		return nil
	}
}

func TestAfter_FiresOnRunner(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newPostRecorder()
	fired := false

	After(clock, runner, 5*time.Second, func() { fired = true })

	clock.Advance(4 * time.Second)
	select {
	case <-runner.ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	clock.Advance(time.Second)
	runner.next(t)()
	assert.True(t, fired)
}

func TestAfter_CancelSuppressesCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := false

	d := After(clock, Inline{}, 5*time.Second, func() { fired = true })
	d.Cancel()

	clock.Advance(10 * time.Second)
	assert.False(t, fired)
}

func TestAfter_CancelAfterFireIsNoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newPostRecorder()
	count := 0

	d := After(clock, runner, time.Second, func() { count++ })
	clock.Advance(2 * time.Second)
	runner.next(t)()
	assert.Equal(t, 1, count)

	// A cancel arriving after the completion already ran must not
	// disturb the result or run the callback again.
	d.Cancel()
	d.cb.Run()
	assert.Equal(t, 1, count)
}

func TestAfter_CancelSuppressesQueuedCompletion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newPostRecorder()
	count := 0

	d := After(clock, runner, time.Second, func() { count++ })
	clock.Advance(2 * time.Second)

	// The timer fired and the completion is queued; cancellation still
	// wins because the callback is deregistered before it runs.
	fn := runner.next(t)
	d.Cancel()
	fn()
	assert.Equal(t, 0, count)
}
