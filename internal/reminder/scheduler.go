package reminder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"chispitas/internal/eventbus"
	"chispitas/internal/storage"
	"chispitas/pkg/logx"
)

type Options struct {
	Store  Store
	Sender Sender
	Log    logx.Logger
	Bus    eventbus.Publisher

	// Now and AfterFunc default to the wall clock.
	Now       func() time.Time
	AfterFunc AfterFunc
}

type op func(ctx context.Context, st *State)

// Scheduler is the reminder event loop. Run must be started for any other
// method to make progress.
type Scheduler struct {
	store     Store
	sender    Sender
	log       logx.Logger
	bus       eventbus.Publisher
	now       func() time.Time
	afterFunc AfterFunc

	state   *State
	ops     chan op
	fires   chan *entry
	quit    chan struct{}
	running atomic.Bool
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		store:     opts.Store,
		sender:    opts.Sender,
		log:       opts.Log.With(logx.String("comp", "reminder")),
		bus:       opts.Bus,
		now:       opts.Now,
		afterFunc: opts.AfterFunc,
		state:     newState(),
		ops:       make(chan op),
		fires:     make(chan *entry),
		quit:      make(chan struct{}),
	}
	if s.bus == nil {
		s.bus = eventbus.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.afterFunc == nil {
		s.afterFunc = stdAfterFunc
	}
	return s
}

// Run serves requests and timer fires until ctx is done, then stops every
// timer and makes a final best-effort save.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("reminder scheduler already running")
	}
	defer close(s.quit)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case fn := <-s.ops:
			fn(ctx, s.state)
		case e := <-s.fires:
			s.dispatch(ctx, s.state, e)
		}
	}
}

func (s *Scheduler) shutdown() {
	for _, e := range s.state.live {
		e.timer.Stop()
	}
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.state.records()); err != nil {
		s.log.Warn("final reminder save failed", logx.Int("pending", s.state.Len()), logx.Err(err))
		return
	}
	s.log.Info("reminders saved", logx.Int("pending", s.state.Len()))
}

// do runs fn on the loop and waits for it.
func (s *Scheduler) do(ctx context.Context, fn op) error {
	done := make(chan struct{})
	wrapped := func(ctx context.Context, st *State) {
		defer close(done)
		fn(ctx, st)
	}
	select {
	case s.ops <- wrapped:
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Create schedules message for chatID at runAt. It fails with a
// *ValidationError when MaxPending reminders are live or runAt is not after
// now. The reminder file is rewritten before Create returns.
func (s *Scheduler) Create(ctx context.Context, chatID int64, runAt time.Time, message string) (Created, error) {
	var (
		out Created
		err error
	)
	if derr := s.do(ctx, func(_ context.Context, st *State) {
		out, err = s.create(st, chatID, runAt, message)
	}); derr != nil {
		return Created{}, derr
	}
	return out, err
}

func (s *Scheduler) create(st *State, chatID int64, runAt time.Time, message string) (Created, error) {
	if st.Len() >= MaxPending {
		return Created{}, &ValidationError{Err: ErrCapacity, Limit: MaxPending}
	}
	now := s.now()
	if !runAt.After(now) {
		return Created{}, &ValidationError{Err: ErrPastDue}
	}

	r := Reminder{ID: st.nextID(), ChatID: chatID, RunAt: runAt, Message: message}
	wait := runAt.Sub(now)
	st.insert(s.arm(r, wait))
	s.persist(st)

	s.log.Info("reminder created",
		logx.Int64("id", r.ID),
		logx.Int64("chat_id", chatID),
		logx.Time("run_at", runAt),
	)
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderCreated, Data: r})
	return Created{Reminder: r, Wait: DescribeWait(wait)}, nil
}

// Cancel stops and forgets reminder id. It returns ErrNotFound, without
// touching the file, when id is not live.
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	var err error
	if derr := s.do(ctx, func(_ context.Context, st *State) {
		e := st.remove(id)
		if e == nil {
			err = ErrNotFound
			return
		}
		e.timer.Stop()
		s.persist(st)
		s.log.Info("reminder cancelled", logx.Int64("id", id))
		s.bus.Publish(eventbus.Event{Type: eventbus.ReminderCancelled, Data: e.rem})
	}); derr != nil {
		return derr
	}
	return err
}

// List returns the live reminders in the order they were created or restored.
func (s *Scheduler) List(ctx context.Context) ([]Reminder, error) {
	var out []Reminder
	if err := s.do(ctx, func(_ context.Context, st *State) {
		out = st.reminders()
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Restore re-arms persisted reminders at startup. Records not after now or
// with an id already live are skipped. The capacity limit is not applied and
// nothing is written back. The id counter moves past every restored id.
func (s *Scheduler) Restore(ctx context.Context, recs []storage.ReminderRecord) (int, error) {
	restored := 0
	err := s.do(ctx, func(_ context.Context, st *State) {
		now := s.now()
		for _, rec := range recs {
			if rec.ID <= 0 || !rec.RunAt.After(now) {
				continue
			}
			if _, dup := st.live[rec.ID]; dup {
				continue
			}
			r := Reminder{ID: rec.ID, ChatID: rec.ChatID, RunAt: rec.RunAt, Message: rec.Message}
			st.insert(s.arm(r, rec.RunAt.Sub(now)))
			st.observeID(rec.ID)
			restored++
		}
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("reminders restored", logx.Int("restored", restored), logx.Int("persisted", len(recs)))
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderRestored, Data: restored})
	return restored, nil
}

// Fire delivers reminder id now, as if its timer had expired. Firing an id
// that is no longer live does nothing.
func (s *Scheduler) Fire(ctx context.Context, id int64) error {
	return s.do(ctx, func(ctx context.Context, st *State) {
		if e, ok := st.live[id]; ok {
			s.dispatch(ctx, st, e)
		}
	})
}

// arm starts the timer for r. On expiry the entry itself is posted to the
// loop so the dispatcher can match it by identity.
func (s *Scheduler) arm(r Reminder, d time.Duration) *entry {
	e := &entry{rem: r}
	e.timer = s.afterFunc(d, func() {
		select {
		case s.fires <- e:
		case <-s.quit:
		}
	})
	return e
}

func (s *Scheduler) persist(st *State) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(st.records()); err != nil {
		perr := &PersistenceError{Pending: st.Len(), Err: err}
		s.log.Warn("reminder save failed; keeping in-memory state", logx.Err(perr))
		s.bus.Publish(eventbus.Event{Type: eventbus.ReminderSaveError, Data: perr.Error()})
	}
}
