package reminder

import "chispitas/internal/storage"

type entry struct {
	rem   Reminder
	timer Timer
}

// State is the live table: pending reminders by id, their insertion order
// and the id counter. Only the scheduler loop reads or writes it.
type State struct {
	live    map[int64]*entry
	order   []int64
	counter int64
}

func newState() *State {
	return &State{live: make(map[int64]*entry)}
}

func (st *State) Len() int { return len(st.live) }

func (st *State) nextID() int64 {
	st.counter++
	return st.counter
}

func (st *State) observeID(id int64) {
	if id > st.counter {
		st.counter = id
	}
}

func (st *State) insert(e *entry) {
	st.live[e.rem.ID] = e
	st.order = append(st.order, e.rem.ID)
}

func (st *State) remove(id int64) *entry {
	e, ok := st.live[id]
	if !ok {
		return nil
	}
	delete(st.live, id)
	for i, v := range st.order {
		if v == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	return e
}

// reminders lists live reminders in insertion order.
func (st *State) reminders() []Reminder {
	out := make([]Reminder, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.live[id].rem)
	}
	return out
}

func (st *State) records() []storage.ReminderRecord {
	out := make([]storage.ReminderRecord, 0, len(st.order))
	for _, id := range st.order {
		r := st.live[id].rem
		out = append(out, storage.ReminderRecord{ID: r.ID, ChatID: r.ChatID, RunAt: r.RunAt, Message: r.Message})
	}
	return out
}
