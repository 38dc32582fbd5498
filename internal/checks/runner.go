package checks

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"chispitas/internal/bank"
	"chispitas/internal/eventbus"
	"chispitas/internal/ratelimit"
	"chispitas/internal/task/scheduler"
	"chispitas/internal/transport"
	"chispitas/pkg/logx"
)

const (
	retrySuffix          = ".retry"
	defaultRetryFallback = 60 * time.Second

	autoPrefix  = "⏰ *Mensaje automático:*"
	rentPaid    = autoPrefix + " Ya se ha pagado la mensualidad al casero."
	rentUnpaid  = autoPrefix + " No se ha realizado aún el pago de la mensualidad."
	errorPrefix = "⚠️ *Error automático:* "
	retryPrefix = "⚠️ *Mensaje automático:* Límite de peticiones alcanzado. Reintentando en "
)

type Options struct {
	Bank      Bank
	Notifier  Notifier
	Scheduler Scheduler
	Log       logx.Logger
	Bus       eventbus.Publisher
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner owns the recurring checks.
type Runner struct {
	mu  sync.RWMutex
	cfg Config

	bank   Bank
	notify Notifier
	sched  Scheduler
	log    logx.Logger
	bus    eventbus.Publisher
	now    func() time.Time
}

type task struct {
	due  func(ref time.Time) bool
	eval func(ctx context.Context, ref time.Time) (text, outcome string, err error)
}

func New(cfg Config, opts Options) *Runner {
	r := &Runner{
		bank:   opts.Bank,
		notify: opts.Notifier,
		sched:  opts.Scheduler,
		log:    opts.Log.With(logx.String("comp", "checks")),
		bus:    opts.Bus,
		now:    opts.Now,
	}
	if r.bus == nil {
		r.bus = eventbus.Nop{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.setConfig(cfg)
	return r
}

func (r *Runner) setConfig(cfg Config) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RetryFallback <= 0 {
		cfg.RetryFallback = defaultRetryFallback
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (r *Runner) config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Apply swaps the configuration and re-registers the daily triggers.
func (r *Runner) Apply(cfg Config) error {
	r.setConfig(cfg)
	return r.Register()
}

// Register adds a daily trigger for every enabled check and removes the
// triggers of disabled ones.
func (r *Runner) Register() error {
	cfg := r.config()
	var errs []error
	for _, t := range []struct {
		name    string
		enabled bool
		at      string
	}{
		{RentTask, cfg.Rent.Enabled, cfg.Rent.At},
		{PayersTask, cfg.Payers.Enabled, cfg.Payers.At},
	} {
		if !cfg.Enabled || !t.enabled {
			r.sched.Remove(t.name)
			r.sched.Remove(t.name + retrySuffix)
			continue
		}
		name := t.name
		err := r.sched.AddDaily(name, t.at, cfg.Timeout, func(ctx context.Context) error {
			r.Run(ctx, name, r.now(), false)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.log.Info("check registered", logx.String("task", name), logx.String("at", t.at))
	}
	return errors.Join(errs...)
}

func (r *Runner) task(name string) (task, bool) {
	switch name {
	case RentTask:
		return task{due: rentDue, eval: r.evalRent}, true
	case PayersTask:
		return task{due: payersDue, eval: r.evalPayers}, true
	}
	return task{}, false
}

// rentDue is the first day of the month.
func rentDue(ref time.Time) bool { return ref.Day() == 1 }

// payersDue is day 29, or day 26 in February.
func payersDue(ref time.Time) bool {
	return ref.Day() == 29 || (ref.Month() == time.February && ref.Day() == 26)
}

// Run executes one check at reference time ref and returns its outcome.
// A retry skips the calendar predicate.
func (r *Runner) Run(ctx context.Context, name string, ref time.Time, retry bool) string {
	cfg := r.config()
	ref = ref.In(cfg.Location)
	ev := Event{Task: name, RunID: uuid.NewString(), Ref: ref, Retry: retry}
	log := r.log.With(logx.String("task", name), logx.String("run_id", ev.RunID))

	t, ok := r.task(name)
	if !ok {
		log.Warn("unknown check")
		return OutcomeFailed
	}
	if !retry && !t.due(ref) {
		ev.Outcome = OutcomeSkipped
		r.publish(eventbus.CheckSkipped, ev)
		log.Debug("check not due", logx.Time("ref", ref))
		return ev.Outcome
	}

	text, outcome, err := t.eval(ctx, ref)
	if err != nil {
		if rl, ok := bank.AsRateLimited(err); ok {
			return r.retryLater(ctx, cfg, name, ref, rl.Wait, ev, log)
		}
		ev.Outcome = OutcomeFailed
		ev.Error = err.Error()
		log.Warn("check failed", logx.Err(err))
		r.send(ctx, cfg, errorPrefix+err.Error(), "")
		r.publish(eventbus.CheckFailed, ev)
		return ev.Outcome
	}

	r.send(ctx, cfg, text, name+":"+ref.Format("2006-01-02"))
	ev.Outcome = outcome
	r.publish(eventbus.CheckCompleted, ev)
	log.Info("check completed", logx.String("outcome", outcome), logx.Bool("retry", retry))
	return outcome
}

// retryLater tells the admin how long the bank asked to wait and plans one
// re-run of the same check with the same reference time.
func (r *Runner) retryLater(ctx context.Context, cfg Config, name string, ref time.Time, w ratelimit.Wait, ev Event, log logx.Logger) string {
	wait := w.Duration()
	if wait <= 0 {
		wait = cfg.RetryFallback
	}
	ev.Outcome = OutcomeRateLimited
	ev.Wait = wait
	r.publish(eventbus.CheckRateLimited, ev)

	r.send(ctx, cfg, retryPrefix+ratelimit.Describe(int(wait/time.Second))+"…", "")

	at := r.now().Add(wait)
	err := r.sched.AddOnce(name+retrySuffix, at, cfg.Timeout, func(ctx context.Context) error {
		r.Run(ctx, name, ref, true)
		return nil
	})
	if err != nil {
		log.Error("retry not scheduled", logx.Err(err))
		return ev.Outcome
	}
	r.publish(eventbus.CheckRetryPlanned, ev)
	log.Info("check rate limited, retry planned", logx.Duration("wait", wait), logx.Time("at", at))
	return ev.Outcome
}

func (r *Runner) evalRent(ctx context.Context, ref time.Time) (string, string, error) {
	cfg := r.config().Rent
	txs, err := r.bank.Transactions(ctx, ref.AddDate(0, 0, -cfg.LookbackDays), ref)
	if err != nil {
		return "", "", err
	}
	for _, tx := range txs.Booked {
		if math.Abs(tx.TransactionAmount.Value()) > cfg.Threshold {
			return rentPaid, OutcomePaid, nil
		}
	}
	rep, err := r.PayersReport(ctx, ref)
	if err != nil {
		return "", "", err
	}
	return rentUnpaid + "\n\n" + rep.Text(true), OutcomeUnpaid, nil
}

func (r *Runner) evalPayers(ctx context.Context, ref time.Time) (string, string, error) {
	rep, err := r.PayersReport(ctx, ref)
	if err != nil {
		return "", "", err
	}
	return autoPrefix + "\n" + rep.Text(true), OutcomeReported, nil
}

func (r *Runner) send(ctx context.Context, cfg Config, text, dedupKey string) {
	if cfg.AdminChatID == 0 {
		r.log.Warn("admin chat not configured, check message dropped")
		return
	}
	err := r.notify.Notify(ctx, transport.Notification{
		Target:   transport.ChatTarget{ChatID: cfg.AdminChatID},
		Text:     text,
		Options:  &transport.SendOptions{ParseMode: "Markdown"},
		DedupKey: dedupKey,
	})
	if err != nil {
		r.log.Warn("check message not queued", logx.Err(err))
	}
}

func (r *Runner) publish(typ string, ev Event) {
	r.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

var _ Scheduler = (*scheduler.Service)(nil)
