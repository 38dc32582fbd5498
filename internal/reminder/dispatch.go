package reminder

import (
	"context"

	"chispitas/internal/eventbus"
	"chispitas/internal/transport"
	"chispitas/pkg/logx"
)

// Text builds the message delivered when a reminder fires.
func Text(message string) string {
	return "⏰ Recordatorio: " + message
}

// dispatch handles an expired timer. e must be the very entry stored under
// its id; anything else (already fired, cancelled, or a stale timer) is
// ignored without delivery or write.
func (s *Scheduler) dispatch(ctx context.Context, st *State, e *entry) {
	id := e.rem.ID
	if cur, ok := st.live[id]; !ok || cur != e {
		s.log.Debug("reminder fire ignored; no longer live", logx.Int64("id", id))
		return
	}

	if s.sender != nil {
		err := s.sender.Notify(ctx, transport.Notification{
			Target: transport.ChatTarget{ChatID: e.rem.ChatID},
			Text:   Text(e.rem.Message),
		})
		if err != nil {
			s.log.Warn("reminder delivery failed", logx.Int64("id", id), logx.Err(err))
		}
	}

	st.remove(id)
	// Already expired; Stop just reports false.
	e.timer.Stop()
	s.persist(st)

	s.log.Info("reminder fired", logx.Int64("id", id), logx.Int64("chat_id", e.rem.ChatID))
	s.bus.Publish(eventbus.Event{Type: eventbus.ReminderFired, Data: e.rem})
}
