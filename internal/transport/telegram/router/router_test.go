package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chispitas/internal/bank"
	"chispitas/internal/checks"
	"chispitas/internal/ratelimit"
	"chispitas/internal/reminder"
	"chispitas/internal/transport"
	"chispitas/pkg/logx"
)

type sent struct {
	chat int64
	text string
	opt  *transport.SendOptions
}

type fakeSender struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{to.ChatID, text, opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.out)}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.out {
		out = append(out, s.text)
	}
	return out
}

type fakeReminders struct {
	created []reminder.Reminder
	err     error
	list    []reminder.Reminder
}

func (f *fakeReminders) Create(_ context.Context, chatID int64, runAt time.Time, msg string) (reminder.Created, error) {
	if f.err != nil {
		return reminder.Created{}, f.err
	}
	r := reminder.Reminder{ID: int64(len(f.created) + 1), ChatID: chatID, RunAt: runAt, Message: msg}
	f.created = append(f.created, r)
	return reminder.Created{Reminder: r, Wait: "1 día"}, nil
}

func (f *fakeReminders) Cancel(_ context.Context, id int64) error {
	if id == 7 {
		return nil
	}
	return reminder.ErrNotFound
}

func (f *fakeReminders) List(context.Context) ([]reminder.Reminder, error) { return f.list, nil }

type fakeBank struct {
	balances []bank.Balance
	txs      bank.Transactions
	err      error
	from, to time.Time
}

func (f *fakeBank) Balances(context.Context) ([]bank.Balance, error) { return f.balances, f.err }
func (f *fakeBank) Details(context.Context) (bank.Account, error) {
	return bank.Account{IBAN: "ES00 1234", OwnerName: "Chispitas"}, f.err
}
func (f *fakeBank) Transactions(_ context.Context, from, to time.Time) (bank.Transactions, error) {
	f.from, f.to = from, to
	return f.txs, f.err
}

type fakePayers struct{ rep checks.Report }

func (f fakePayers) PayersReport(context.Context, time.Time) (checks.Report, error) { return f.rep, nil }

var fixedNow = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func newHandlers(rem *fakeReminders, b *fakeBank) handlers {
	return handlers{Deps{
		Reminders:  rem,
		Bank:       b,
		Payers:     fakePayers{rep: checks.Report{Days: 20, Threshold: 200, Paid: []string{"Marco"}, Defaulters: []string{"Alejandro"}}},
		RentAmount: 800,
		Location:   time.UTC,
		Now:        func() time.Time { return fixedNow },
	}}
}

func newRequest(snd *fakeSender, args ...string) *Request {
	return &Request{Chat: transport.ChatTarget{ChatID: 10}, Args: args, Logger: logx.Nop(), sender: snd}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	name, args, ok := parseCommand("  /ListaRecordatorios@chispitas_bot a  b ")
	require.True(t, ok)
	assert.Equal(t, "listarecordatorios", name)
	assert.Equal(t, []string{"a", "b"}, args)

	_, _, ok = parseCommand("hola")
	assert.False(t, ok)
	_, _, ok = parseCommand("/@bot")
	assert.False(t, ok)
}

func TestRecordatorio(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	rem := &fakeReminders{}
	h := newHandlers(rem, &fakeBank{})

	require.NoError(t, h.recordatorio(context.Background(), newRequest(snd, "2026-01-16", "10:30", "pagar", "luz")))
	require.Len(t, rem.created, 1)
	assert.Equal(t, time.Date(2026, 1, 16, 10, 30, 0, 0, time.UTC), rem.created[0].RunAt)
	assert.Equal(t, "pagar luz", rem.created[0].Message)
	assert.Equal(t, "👌 Recordatorio programado correctamente:\n• ID: 1\n• Ahora: 15/01/2026 10:30\n• Queda(n): 1 día\n• Para: 16/01/2026 10:30\n• Mensaje: “pagar luz”", snd.texts()[0])

	require.NoError(t, h.recordatorio(context.Background(), newRequest(snd, "mañana")))
	assert.Equal(t, reminderUsage, snd.texts()[1])

	rem.err = &reminder.ValidationError{Err: reminder.ErrCapacity, Limit: 15}
	require.NoError(t, h.recordatorio(context.Background(), newRequest(snd, "2026-01-16", "10:30")))
	assert.Equal(t, "❌ Has alcanzado el límite de 15 recordatorios.", snd.texts()[2])

	rem.err = &reminder.ValidationError{Err: reminder.ErrPastDue}
	require.NoError(t, h.recordatorio(context.Background(), newRequest(snd, "2020-01-16", "10:30")))
	assert.Equal(t, "❌ La fecha y hora deben ser en el futuro.", snd.texts()[3])
}

func TestListaAndBorrar(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	rem := &fakeReminders{}
	h := newHandlers(rem, &fakeBank{})

	require.NoError(t, h.listaRecordatorios(context.Background(), newRequest(snd)))
	rem.list = []reminder.Reminder{{ID: 3, RunAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), Message: "x"}}
	require.NoError(t, h.listaRecordatorios(context.Background(), newRequest(snd)))
	require.NoError(t, h.borrarRecordatorio(context.Background(), newRequest(snd, "7")))
	require.NoError(t, h.borrarRecordatorio(context.Background(), newRequest(snd, "8")))
	require.NoError(t, h.borrarRecordatorio(context.Background(), newRequest(snd, "siete")))

	assert.Equal(t, []string{
		"No hay recordatorios programados.",
		"📋 *Recordatorios pendientes:*\n• ID 3: Para 01/02/2026 09:00 — “x”",
		"🗑️ Recordatorio ID 7 eliminado.",
		"❌ No existe un recordatorio con ID 8.",
		cancelUsage,
	}, snd.texts())
}

func TestBankRateLimitedIsNotRetried(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	b := &fakeBank{err: &bank.RateLimitedError{Wait: ratelimit.Wait{Seconds: 3661, Text: ratelimit.Describe(3661)}}}
	h := newHandlers(&fakeReminders{}, b)

	require.NoError(t, h.saldo(context.Background(), newRequest(snd)))
	assert.Equal(t, []string{"⚠️ Límite de peticiones excedido. Vuelve a intentarlo en 1 hora, 1 minuto y 1 segundo."}, snd.texts())

	b.err = &bank.ExternalError{Status: 401, Message: "Invalid token"}
	require.NoError(t, h.iban(context.Background(), newRequest(snd)))
	assert.Equal(t, "⚠️ Error al obtener el IBAN: bank api status 401: Invalid token", snd.texts()[1])
}

func TestTransacciones(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	b := &fakeBank{txs: bank.Transactions{Booked: []bank.Transaction{
		{BookingDate: "2026-01-14", TransactionAmount: bank.Amount{Amount: "-12.50", Currency: "EUR"}, CreditorName: "BAR", Remittance: []string{"cafe"}},
		{BookingDate: "2026-01-13", TransactionAmount: bank.Amount{Amount: "250.00", Currency: "EUR"}, DebtorName: "MARCO"},
	}}}
	h := newHandlers(&fakeReminders{}, b)

	require.NoError(t, h.transacciones(context.Background(), newRequest(snd)))
	assert.True(t, b.from.IsZero())
	assert.Equal(t, "🧾 *Últimas 6 transacciones:*\n• 2026-01-14: -12.50 EUR — BAR (cafe)\n• 2026-01-13: +250.00 EUR — MARCO (—)", snd.texts()[0])
}

func TestAlquiler(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	b := &fakeBank{txs: bank.Transactions{Booked: []bank.Transaction{
		{TransactionID: "a", BookingDate: "2025-12-01", TransactionAmount: bank.Amount{Amount: "-800.00"}, CreditorName: "CASERO"},
		{TransactionID: "b", BookingDate: "2026-01-02", TransactionAmount: bank.Amount{Amount: "-800.00"}, CreditorName: "CASERO"},
		{TransactionID: "c", BookingDate: "2026-01-10", TransactionAmount: bank.Amount{Amount: "-801.00"}, CreditorName: "OTRO"},
	}}}
	h := newHandlers(&fakeReminders{}, b)

	require.NoError(t, h.alquiler(context.Background(), newRequest(snd)))
	// January wraps to December of the previous year.
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), b.from)
	assert.Equal(t, "🏠 */alquiler*: La última transferencia de 800 € fue el 2026-01-02 a *CASERO* (ID: `b`).", snd.texts()[0])

	b.txs = bank.Transactions{}
	require.NoError(t, h.alquiler(context.Background(), newRequest(snd)))
	assert.Equal(t, "No se encontró ninguna transferencia de 800 € en el rango de este y mes anterior.", snd.texts()[1])
}

func TestMorosos(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	h := newHandlers(&fakeReminders{}, &fakeBank{})
	require.NoError(t, h.morosos(context.Background(), newRequest(snd)))
	assert.Equal(t, "📋 */morosos* (últimos 20 días y 200 €):\n• Han pagado:\n   – Marco\n• Morosos:\n   – Alejandro", snd.texts()[0])
}

func TestDispatchLoop(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	m := New(Config{RequireMention: true, Workers: 1}, snd, logx.Nop())
	m.SetRegistry(append(Commands(Deps{Reminders: &fakeReminders{}, Bank: &fakeBank{}, Payers: fakePayers{}}),
		Command{Name: "boom", Hidden: true, Handle: func(context.Context, *Request) error { panic("x") }},
	))

	updates := make(chan transport.Message, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.DispatchLoop(ctx, updates) }()

	updates <- transport.Message{ChatID: -1, IsGroup: true, Text: "/hola"}
	updates <- transport.Message{ChatID: 5, Text: "/boom"}
	updates <- transport.Message{ChatID: 5, Text: "no es un comando"}
	updates <- transport.Message{ChatID: 5, Text: "/nada"}
	updates <- transport.Message{ChatID: -1, IsGroup: true, Mentioned: true, Text: "/HOLA@chispitas_bot"}

	require.Eventually(t, func() bool { return len(snd.texts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	texts := snd.texts()
	assert.Contains(t, texts, "¡Hola! ¿En qué puedo ayudarte? 🤖")
	for _, s := range texts {
		if s != "¡Hola! ¿En qué puedo ayudarte? 🤖" {
			assert.Contains(t, s, "Comando no reconocido")
			assert.Contains(t, s, "/ListaRecordatorios")
			assert.NotContains(t, s, "/boom")
		}
	}

	cancel()
	require.NoError(t, <-done)
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()

	m := New(Config{}, &fakeSender{}, logx.Nop())
	m.SetRegistry(Commands(Deps{}))
	menu := m.MenuCommands()
	require.NotEmpty(t, menu)
	names := map[string]bool{}
	for _, c := range menu {
		names[c.Command] = true
		assert.Regexp(t, `^[a-z0-9_]{1,32}$`, c.Command)
	}
	assert.True(t, names["listarecordatorios"])
	assert.True(t, names["borrarrecordatorio"])
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lista_recordatorios", sanitizeTelegramCommand("Lista-Recordatorios"))
	assert.Equal(t, "cmd_1a", sanitizeTelegramCommand("1a"))
	assert.Equal(t, "", sanitizeTelegramCommand("¿?"))
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	t.Parallel()

	h := Chain(func(context.Context, *Request) error { panic("boom") }, MWPanicRecover(), MWRequestLog())
	err := h(context.Background(), &Request{Logger: logx.Nop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")

	h = Chain(func(ctx context.Context, _ *Request) error {
		_, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}
		return nil
	}, MWTimeout(time.Second))
	assert.NoError(t, h(context.Background(), &Request{Logger: logx.Nop()}))
}
