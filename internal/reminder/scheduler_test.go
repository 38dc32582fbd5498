package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chispitas/internal/eventbus"
	"chispitas/internal/storage"
	"chispitas/internal/transport"
	"chispitas/pkg/logx"
)

var t0 = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fakeTimer struct {
	d       time.Duration
	fire    func()
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := !f.stopped
	f.stopped = true
	return was
}

func (f *fakeTimer) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fire: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) timer(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

type memStore struct {
	mu    sync.Mutex
	saves [][]storage.ReminderRecord
	err   error
}

func (m *memStore) Save(recs []storage.ReminderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, append([]storage.ReminderRecord(nil), recs...))
	return m.err
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *memStore) last() []storage.ReminderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

type recordingSender struct {
	mu   sync.Mutex
	sent []transport.Notification
}

func (r *recordingSender) Notify(_ context.Context, n transport.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSender) all() []transport.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.Notification(nil), r.sent...)
}

type harness struct {
	s      *Scheduler
	clock  *fakeClock
	store  Store
	sender *recordingSender
	bus    eventbus.Bus
	stop   func()
}

func start(t *testing.T, store Store) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{}, store: store, sender: &recordingSender{}, bus: eventbus.New()}
	h.s = New(Options{
		Store:     store,
		Sender:    h.sender,
		Log:       logx.Nop(),
		Bus:       h.bus,
		Now:       func() time.Time { return t0 },
		AfterFunc: h.clock.AfterFunc,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.s.Run(ctx)
	}()
	var once sync.Once
	h.stop = func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(h.stop)
	return h
}

func TestCreateListCancel(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	h := start(t, store)
	ctx := context.Background()

	c, err := h.s.Create(ctx, 42, t0.Add(26*time.Hour+5*time.Minute), "sacar la basura")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, "1 día, 2 horas, 5 minutos", c.Wait)
	assert.Equal(t, 26*time.Hour+5*time.Minute, h.clock.timer(0).d)

	list, err := h.s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.Reminder, list[0])
	require.Len(t, store.last(), 1)
	assert.Equal(t, "sacar la basura", store.last()[0].Message)

	require.NoError(t, h.s.Cancel(ctx, c.ID))
	assert.True(t, h.clock.timer(0).isStopped())
	list, err = h.s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, store.last())
	assert.Equal(t, 2, store.count())
}

func TestCancelUnknownDoesNotSave(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	h := start(t, store)

	err := h.s.Cancel(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.count())
}

func TestCapacity(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	h := start(t, store)
	ctx := context.Background()

	for i := 0; i < MaxPending; i++ {
		_, err := h.s.Create(ctx, 1, t0.Add(time.Duration(i+1)*time.Hour), "x")
		require.NoError(t, err)
	}
	saves := store.count()

	_, err := h.s.Create(ctx, 1, t0.Add(99*time.Hour), "uno de más")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, MaxPending, verr.Limit)
	assert.Equal(t, saves, store.count())
	assert.Len(t, store.last(), MaxPending)
}

func TestCreateRejectsNonFuture(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	h := start(t, store)

	for _, at := range []time.Time{t0, t0.Add(-time.Minute)} {
		_, err := h.s.Create(context.Background(), 1, at, "tarde")
		assert.ErrorIs(t, err, ErrPastDue)
	}
	assert.Zero(t, store.count())
}

func TestTimerFireDeliversOnce(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	h := start(t, store)
	ctx := context.Background()
	events, unsub := h.bus.Subscribe(16)
	defer unsub()

	c, err := h.s.Create(ctx, 7, t0.Add(time.Minute), "llamar a mamá")
	require.NoError(t, err)

	fire := h.clock.timer(0).fire
	fire()
	fire()

	list, err := h.s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	sent := h.sender.all()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(7), sent[0].Target.ChatID)
	assert.Equal(t, "⏰ Recordatorio: llamar a mamá", sent[0].Text)
	assert.Empty(t, store.last())
	assert.Equal(t, 2, store.count())

	var fired int
	for len(events) > 0 {
		if ev := <-events; ev.Type == eventbus.ReminderFired {
			fired++
			assert.Equal(t, c.ID, ev.Data.(Reminder).ID)
		}
	}
	assert.Equal(t, 1, fired)
}

func TestFireByIDIsIdempotent(t *testing.T) {
	t.Parallel()

	h := start(t, &memStore{})
	ctx := context.Background()

	c, err := h.s.Create(ctx, 7, t0.Add(time.Hour), "hola")
	require.NoError(t, err)

	require.NoError(t, h.s.Fire(ctx, c.ID))
	require.NoError(t, h.s.Fire(ctx, c.ID))
	assert.Len(t, h.sender.all(), 1)
}

func TestStaleTimerIsIgnored(t *testing.T) {
	t.Parallel()

	h := start(t, &memStore{})
	ctx := context.Background()

	_, err := h.s.Create(ctx, 1, t0.Add(time.Hour), "a")
	require.NoError(t, err)

	// A timer whose entry is not the one in the table must not deliver.
	stale := &entry{rem: Reminder{ID: 1, ChatID: 1, Message: "a"}, timer: &fakeTimer{}}
	require.NoError(t, h.s.do(ctx, func(ctx context.Context, st *State) {
		h.s.dispatch(ctx, st, stale)
	}))

	assert.Empty(t, h.sender.all())
	list, err := h.s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()

	store := &memStore{err: errors.New("disk full")}
	h := start(t, store)
	ctx := context.Background()
	events, unsub := h.bus.Subscribe(4)
	defer unsub()

	c, err := h.s.Create(ctx, 1, t0.Add(time.Hour), "a")
	require.NoError(t, err)

	list, err := h.s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	types := map[string]bool{}
	for len(events) > 0 {
		types[(<-events).Type] = true
	}
	assert.True(t, types[eventbus.ReminderSaveError])
	assert.True(t, types[eventbus.ReminderCreated])
}

func TestRestore(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	h := start(t, store)
	ctx := context.Background()

	recs := []storage.ReminderRecord{
		{ID: 4, ChatID: 1, RunAt: t0.Add(time.Hour), Message: "cuatro"},
		{ID: 9, ChatID: 2, RunAt: t0.Add(2 * time.Hour), Message: "nueve"},
		{ID: 12, ChatID: 2, RunAt: t0.Add(-time.Hour), Message: "pasado"},
		{ID: 2, ChatID: 3, RunAt: t0.Add(3 * time.Hour), Message: "dos"},
		{ID: 4, ChatID: 1, RunAt: t0.Add(4 * time.Hour), Message: "repetido"},
	}
	n, err := h.s.Restore(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, store.count())

	list, err := h.s.List(ctx)
	require.NoError(t, err)
	ids := []int64{}
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{4, 9, 2}, ids)

	c, err := h.s.Create(ctx, 1, t0.Add(time.Hour), "nuevo")
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.ID)
}

func TestRestoreIgnoresCapacity(t *testing.T) {
	t.Parallel()

	h := start(t, &memStore{})
	ctx := context.Background()

	recs := make([]storage.ReminderRecord, 0, 20)
	for i := 1; i <= 20; i++ {
		recs = append(recs, storage.ReminderRecord{ID: int64(i), ChatID: 1, RunAt: t0.Add(time.Duration(i) * time.Minute)})
	}
	n, err := h.s.Restore(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	_, err = h.s.Create(ctx, 1, t0.Add(time.Hour), "x")
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestCancelSurvivesRestart(t *testing.T) {
	t.Parallel()

	file := storage.NewReminderFile(filepath.Join(t.TempDir(), "reminders.json"), time.UTC)
	h := start(t, file)
	ctx := context.Background()

	keep, err := h.s.Create(ctx, 1, t0.Add(time.Hour), "me quedo")
	require.NoError(t, err)
	gone, err := h.s.Create(ctx, 1, t0.Add(2*time.Hour), "me voy")
	require.NoError(t, err)
	require.NoError(t, h.s.Cancel(ctx, gone.ID))
	h.stop()

	recs, _, err := file.Load(t0)
	require.NoError(t, err)

	h2 := start(t, file)
	_, err = h2.s.Restore(ctx, recs)
	require.NoError(t, err)
	list, err := h2.s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)
	assert.True(t, keep.RunAt.Equal(list[0].RunAt))
	assert.Equal(t, "me quedo", list[0].Message)
}

func TestStopSavesAndRejects(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	h := start(t, store)
	ctx := context.Background()

	_, err := h.s.Create(ctx, 1, t0.Add(time.Hour), "a")
	require.NoError(t, err)
	h.stop()

	assert.True(t, h.clock.timer(0).isStopped())
	assert.Len(t, store.last(), 1)
	assert.Equal(t, 2, store.count())

	_, err = h.s.List(ctx)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestDescribeWait(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "menos de un minuto"},
		{time.Minute, "1 minuto"},
		{61 * time.Minute, "1 hora, 1 minuto"},
		{48 * time.Hour, "2 días"},
		{49*time.Hour + 59*time.Second, "2 días, 1 hora"},
		{-time.Hour, "menos de un minuto"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DescribeWait(tt.d), tt.d.String())
	}
}
