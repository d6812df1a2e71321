package bridge_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bus/api"
	"github.com/momentics/hioload-bus/bridge"
	"github.com/momentics/hioload-bus/control"
	"github.com/momentics/hioload-bus/fake"
	"github.com/momentics/hioload-bus/loop"
)

func newHarness(t *testing.T) (*fake.Backend, *loop.Loop, *bridge.Binding) {
	t.Helper()
	be := fake.NewBackend()
	l, err := loop.New(
		loop.Config{Slots: 1, FdLimitPerSlot: 64, PollBatch: 8, TickInterval: time.Second},
		loop.WithBackendFactory(be.Factory()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	b := bridge.Attach(l.Slot(0), bridge.WithStats(control.NewStats()))
	return be, l, b
}

func setupConn(t *testing.T, b *bridge.Binding, closing bridge.ClosingFunc) (*fake.Conn, *bridge.Ctx) {
	t.Helper()
	conn := fake.NewConn()
	ctx, err := b.ConnectionSetup(conn, closing)
	require.NoError(t, err)
	return conn, ctx
}

func TestWatchMergeLifecycle(t *testing.T) {
	be, _, b := newHarness(t)
	conn, ctx := setupConn(t, b, nil)
	hooks := conn.WatchHooks()

	w1 := fake.NewWatch(5, api.WatchReadable)
	w2 := fake.NewWatch(5, api.WatchWritable)

	require.True(t, hooks.Add(w1))
	ev, ok := be.Interest(5)
	require.True(t, ok, "shadow handle must exist after first add")
	assert.Equal(t, api.EventReadable, ev)
	assert.Equal(t, 5, ctx.ShadowFd())

	require.True(t, hooks.Add(w2))
	ev, ok = be.Interest(5)
	require.True(t, ok)
	assert.Equal(t, api.EventReadable|api.EventWritable, ev, "merged mask is the OR of both slots")

	hooks.Remove(w1)
	ev, ok = be.Interest(5)
	require.True(t, ok, "handle survives while one watch remains")
	assert.Equal(t, api.EventWritable, ev)

	hooks.Remove(w2)
	assert.False(t, be.Registered(5), "last removal destroys the shadow handle")
	assert.Equal(t, -1, ctx.ShadowFd())

	// Shadow fds are never closed by the loop.
	assert.Empty(t, be.ClosedFds())
}

func TestAddWatchIdempotent(t *testing.T) {
	be, _, b := newHarness(t)
	conn, _ := setupConn(t, b, nil)
	hooks := conn.WatchHooks()

	w1 := fake.NewWatch(5, api.WatchReadable)
	w2 := fake.NewWatch(5, api.WatchWritable)

	require.True(t, hooks.Add(w1))
	require.True(t, hooks.Add(w1), "re-adding the same token succeeds")
	require.True(t, hooks.Add(w2), "second identity slot still free")

	ev, _ := be.Interest(5)
	assert.Equal(t, api.EventReadable|api.EventWritable, ev)

	// If w1 had been recorded twice, a stale copy would keep the
	// readable bit alive here.
	hooks.Remove(w1)
	ev, _ = be.Interest(5)
	assert.Equal(t, api.EventWritable, ev)
}

func TestRemoveWithoutHandleIsNoop(t *testing.T) {
	be, _, b := newHarness(t)
	conn, _ := setupConn(t, b, nil)

	w := fake.NewWatch(9, api.WatchReadable)
	conn.WatchHooks().Remove(w)

	assert.False(t, be.Registered(9))
}

func TestToggleDispatchesOnEnabled(t *testing.T) {
	be, _, b := newHarness(t)
	conn, _ := setupConn(t, b, nil)
	hooks := conn.WatchHooks()

	w := fake.NewWatch(5, api.WatchReadable)
	hooks.Toggle(w)
	assert.True(t, be.Registered(5))

	w.SetEnabled(false)
	hooks.Toggle(w)
	assert.False(t, be.Registered(5))
}

func TestCrossContextFdRejected(t *testing.T) {
	be, _, b := newHarness(t)
	conn1, _ := setupConn(t, b, nil)
	conn2, _ := setupConn(t, b, nil)

	w1 := fake.NewWatch(5, api.WatchReadable)
	require.True(t, conn1.WatchHooks().Add(w1))

	w2 := fake.NewWatch(5, api.WatchWritable)
	assert.False(t, conn2.WatchHooks().Add(w2), "descriptor owned by another context")

	ev, ok := be.Interest(5)
	require.True(t, ok)
	assert.Equal(t, api.EventReadable, ev, "rejected add leaves the mask untouched")

	// Removal through the wrong context must not disturb it either.
	conn2.WatchHooks().Remove(w2)
	assert.True(t, be.Registered(5))
}

func TestFdOutOfRangeRejected(t *testing.T) {
	be, _, b := newHarness(t)
	conn, ctx := setupConn(t, b, nil)
	hooks := conn.WatchHooks()

	assert.False(t, hooks.Add(fake.NewWatch(64, api.WatchReadable)), "fd at limit")
	assert.False(t, hooks.Add(fake.NewWatch(-1, api.WatchReadable)), "negative fd")
	assert.Equal(t, -1, ctx.ShadowFd())
	assert.False(t, be.Registered(64))
}

func TestAddWatchRollbackOnRegistrationFailure(t *testing.T) {
	be, _, b := newHarness(t)
	conn, ctx := setupConn(t, b, nil)
	hooks := conn.WatchHooks()

	be.SetFailAdd(true)
	w := fake.NewWatch(5, api.WatchReadable)
	assert.False(t, hooks.Add(w))
	assert.False(t, be.Registered(5))
	assert.Equal(t, -1, ctx.ShadowFd(), "partial registration rolled back")

	be.SetFailAdd(false)
	assert.True(t, hooks.Add(w), "descriptor usable after rollback")
}

func TestReadinessForwardedToAllWatches(t *testing.T) {
	_, l, b := newHarness(t)
	conn, _ := setupConn(t, b, nil)
	hooks := conn.WatchHooks()

	w1 := fake.NewWatch(5, api.WatchReadable)
	w2 := fake.NewWatch(5, api.WatchWritable)
	require.True(t, hooks.Add(w1))
	require.True(t, hooks.Add(w2))

	// A failing watch is logged, not fatal to the other one.
	w1.SetFail(true)

	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventReadable | api.EventWritable})

	require.Len(t, w1.Handled(), 1)
	require.Len(t, w2.Handled(), 1)
	assert.Equal(t, api.WatchReadable|api.WatchWritable, w2.Handled()[0])
}

func TestDispatchDrainRunsToCompletion(t *testing.T) {
	_, l, b := newHarness(t)
	conn, _ := setupConn(t, b, nil)
	hooks := conn.WatchHooks()

	w := fake.NewWatch(5, api.WatchReadable)
	require.True(t, hooks.Add(w))

	conn.SetStatusSequence(api.DispatchDataRemains, api.DispatchDataRemains, api.DispatchComplete)
	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventReadable})

	assert.Equal(t, 2, conn.Dispatched(), "dispatch repeats until no data remains")
}

func TestHangupIsSticky(t *testing.T) {
	_, l, b := newHarness(t)
	conn, ctx := setupConn(t, b, nil)
	hooks := conn.WatchHooks()

	w := fake.NewWatch(5, api.WatchReadable)
	require.True(t, hooks.Add(w))

	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventReadable | api.EventHangup})
	assert.True(t, ctx.HupSeen())

	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventReadable})
	assert.True(t, ctx.HupSeen(), "hangup is never cleared")
}

func TestClosingNotificationExactlyOnce(t *testing.T) {
	be, l, b := newHarness(t)

	closings := 0
	conn, _ := setupConn(t, b, func(*bridge.Ctx) { closings++ })
	hooks := conn.WatchHooks()

	w := fake.NewWatch(5, api.WatchReadable)
	require.True(t, hooks.Add(w))

	// The bus drops its watch while readiness is being delivered, the
	// usual shape of its close path.
	w.SetOnHandle(func(api.WatchFlags) { hooks.Remove(w) })

	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventReadable | api.EventHangup})

	assert.Equal(t, 1, closings)
	assert.False(t, be.Registered(5), "shadow handle destroyed")

	// A second readiness delivery for the dead descriptor must find no
	// handle and touch nothing.
	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventReadable})
	assert.Len(t, w.Handled(), 1, "no delivery after destruction")
	assert.Equal(t, 1, closings)
}

func TestClosingRequiresHangup(t *testing.T) {
	_, l, b := newHarness(t)

	closings := 0
	conn, _ := setupConn(t, b, func(*bridge.Ctx) { closings++ })
	hooks := conn.WatchHooks()

	w := fake.NewWatch(5, api.WatchReadable)
	require.True(t, hooks.Add(w))
	w.SetOnHandle(func(api.WatchFlags) { hooks.Remove(w) })

	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventReadable})
	assert.Equal(t, 0, closings, "no hangup, no closing")
}

func TestClosingGatedByPendingTimeouts(t *testing.T) {
	_, l, b := newHarness(t)

	closings := 0
	conn, ctx := setupConn(t, b, func(*bridge.Ctx) { closings++ })
	hooks := conn.WatchHooks()
	thooks := conn.TimeoutHooks()

	to := fake.NewTimeout(2 * time.Second)
	require.True(t, thooks.Add(to))
	require.Equal(t, 1, ctx.PendingTimeouts())

	w := fake.NewWatch(5, api.WatchReadable)
	require.True(t, hooks.Add(w))
	w.SetOnHandle(func(api.WatchFlags) { hooks.Remove(w) })

	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventHangup | api.EventReadable})
	assert.Equal(t, 0, closings, "pending timer holds the notification back")

	thooks.Remove(to)
	require.Equal(t, 0, ctx.PendingTimeouts())

	// The bus asks for a watch again and drops it: the destroy check
	// now finds every condition met.
	w2 := fake.NewWatch(5, api.WatchReadable)
	require.True(t, hooks.Add(w2))
	hooks.Remove(w2)
	assert.Equal(t, 1, closings)
}

func TestClosingGatedByBufferedDispatch(t *testing.T) {
	_, l, b := newHarness(t)

	closings := 0
	conn, _ := setupConn(t, b, func(*bridge.Ctx) { closings++ })
	hooks := conn.WatchHooks()

	w := fake.NewWatch(5, api.WatchReadable)
	require.True(t, hooks.Add(w))

	// Status stays data-remains during the watch removal, so the check
	// inside the removal holds off; the post-drain check fires once
	// the drain consumed everything.
	conn.SetStatusSequence(api.DispatchDataRemains, api.DispatchComplete)
	w.SetOnHandle(func(api.WatchFlags) { hooks.Remove(w) })

	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 5, Flags: api.EventHangup | api.EventReadable})

	assert.Equal(t, 1, conn.Dispatched())
	assert.Equal(t, 1, closings, "closing delivered after the drain, not before")
}

func TestConnectionSetupHookRejection(t *testing.T) {
	_, _, b := newHarness(t)

	conn := fake.NewConn()
	conn.SetRejectHooks(true)
	_, err := b.ConnectionSetup(conn, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrHooksRejected))
}

func TestServerListen(t *testing.T) {
	_, l, b := newHarness(t)

	srv := fake.NewServer()
	ctx, got, err := b.ServerListen("unix:path=/run/bus", func(string) (api.Server, error) {
		return srv, nil
	})
	require.NoError(t, err)
	require.Same(t, srv, got.(*fake.Server))
	require.NotNil(t, ctx.Server())

	// Server readiness merges and forwards, nothing more; acceptance
	// is the bus library's own callback.
	w := fake.NewWatch(7, api.WatchReadable)
	require.True(t, srv.WatchHooks().Add(w))
	l.Slot(0).Dispatch(loop.ReadyEvent{Fd: 7, Flags: api.EventReadable})
	assert.Len(t, w.Handled(), 1)
}

func TestServerListenUnwindsOnHookRejection(t *testing.T) {
	_, _, b := newHarness(t)

	srv := fake.NewServer()
	srv.SetRejectHooks(true)
	_, _, err := b.ServerListen("unix:path=/run/bus", func(string) (api.Server, error) {
		return srv, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrHooksRejected))
	assert.True(t, srv.Disconnected())
}

func TestServerListenPropagatesListenError(t *testing.T) {
	_, _, b := newHarness(t)

	boom := fmt.Errorf("address in use")
	_, _, err := b.ServerListen("unix:path=/run/bus", func(string) (api.Server, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestTimeoutClampAndFire(t *testing.T) {
	_, _, b := newHarness(t)
	conn, ctx := setupConn(t, b, nil)
	thooks := conn.TimeoutHooks()

	to := fake.NewTimeout(200 * time.Millisecond)
	require.True(t, thooks.Add(to))
	require.Equal(t, 1, ctx.PendingTimeouts())

	b.Tick(time.Now().Add(500 * time.Millisecond))
	assert.Equal(t, 0, to.Fired(), "clamped deadline is a full second out")

	b.Tick(time.Now().Add(1100 * time.Millisecond))
	assert.Equal(t, 1, to.Fired())

	b.Tick(time.Now().Add(10 * time.Second))
	assert.Equal(t, 1, to.Fired(), "fired entry was unlinked")
}

func TestTimeoutRoundsUpToWholeSeconds(t *testing.T) {
	_, _, b := newHarness(t)
	conn, _ := setupConn(t, b, nil)
	thooks := conn.TimeoutHooks()

	to := fake.NewTimeout(1500 * time.Millisecond)
	require.True(t, thooks.Add(to))

	b.Tick(time.Now().Add(1700 * time.Millisecond))
	assert.Equal(t, 0, to.Fired(), "1.5s rounds up to 2s")

	b.Tick(time.Now().Add(2500 * time.Millisecond))
	assert.Equal(t, 1, to.Fired())
}

func TestDisabledTimeoutNeverEnqueued(t *testing.T) {
	_, _, b := newHarness(t)
	conn, ctx := setupConn(t, b, nil)
	thooks := conn.TimeoutHooks()

	to := fake.NewTimeout(time.Millisecond)
	to.SetEnabled(false)
	require.True(t, thooks.Add(to), "disabled add reports success")
	assert.Equal(t, 0, ctx.PendingTimeouts())

	b.Tick(time.Now().Add(time.Hour))
	assert.Equal(t, 0, to.Fired())
}

func TestTimeoutRemoveAndToggle(t *testing.T) {
	_, _, b := newHarness(t)
	conn, ctx := setupConn(t, b, nil)
	thooks := conn.TimeoutHooks()

	to := fake.NewTimeout(time.Second)
	require.True(t, thooks.Add(to))
	thooks.Remove(to)
	assert.Equal(t, 0, ctx.PendingTimeouts())

	b.Tick(time.Now().Add(time.Hour))
	assert.Equal(t, 0, to.Fired(), "removed entry does not fire")

	// Unknown token removal is a no-op.
	thooks.Remove(fake.NewTimeout(time.Second))
	assert.Equal(t, 0, ctx.PendingTimeouts())

	thooks.Toggle(to)
	assert.Equal(t, 1, ctx.PendingTimeouts())
	to.SetEnabled(false)
	thooks.Toggle(to)
	assert.Equal(t, 0, ctx.PendingTimeouts())
}

func TestTimerListIsPerBinding(t *testing.T) {
	// Two independent loops in one process must not share timer state.
	be1 := fake.NewBackend()
	l1, err := loop.New(loop.Config{Slots: 1, FdLimitPerSlot: 16, PollBatch: 4, TickInterval: time.Second},
		loop.WithBackendFactory(be1.Factory()))
	require.NoError(t, err)
	defer l1.Close()
	be2 := fake.NewBackend()
	l2, err := loop.New(loop.Config{Slots: 1, FdLimitPerSlot: 16, PollBatch: 4, TickInterval: time.Second},
		loop.WithBackendFactory(be2.Factory()))
	require.NoError(t, err)
	defer l2.Close()

	b1 := bridge.Attach(l1.Slot(0))
	b2 := bridge.Attach(l2.Slot(0))

	conn1 := fake.NewConn()
	_, err = b1.ConnectionSetup(conn1, nil)
	require.NoError(t, err)

	to := fake.NewTimeout(time.Second)
	require.True(t, conn1.TimeoutHooks().Add(to))

	b2.Tick(time.Now().Add(time.Hour))
	assert.Equal(t, 0, to.Fired(), "foreign binding's tick must not fire it")
	b1.Tick(time.Now().Add(time.Hour))
	assert.Equal(t, 1, to.Fired())
}

func TestStatsCounting(t *testing.T) {
	be := fake.NewBackend()
	st := control.NewStats()
	l, err := loop.New(loop.Config{Slots: 1, FdLimitPerSlot: 16, PollBatch: 4, TickInterval: time.Second},
		loop.WithBackendFactory(be.Factory()), loop.WithStats(st))
	require.NoError(t, err)
	defer l.Close()
	b := bridge.Attach(l.Slot(0), bridge.WithStats(st))

	conn := fake.NewConn()
	_, err = b.ConnectionSetup(conn, nil)
	require.NoError(t, err)

	w := fake.NewWatch(5, api.WatchReadable)
	require.True(t, conn.WatchHooks().Add(w))
	conn.WatchHooks().Remove(w)

	snap := st.Snapshot()
	assert.Equal(t, int64(1), snap["handles_created"])
	assert.Equal(t, int64(1), snap["handles_destroyed"])
	assert.Equal(t, int64(1), snap["watches_added"])
	assert.Equal(t, int64(1), snap["watches_removed"])
	assert.Equal(t, int64(0), st.HandlesLive())
}
