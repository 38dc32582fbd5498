package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chispitas/internal/bank"
	"chispitas/internal/checks"
	"chispitas/internal/reminder"
	"chispitas/internal/transport"
)

type Reminders interface {
	Create(ctx context.Context, chatID int64, runAt time.Time, message string) (reminder.Created, error)
	Cancel(ctx context.Context, id int64) error
	List(ctx context.Context) ([]reminder.Reminder, error)
}

type Bank interface {
	Balances(ctx context.Context) ([]bank.Balance, error)
	Details(ctx context.Context) (bank.Account, error)
	Transactions(ctx context.Context, from, to time.Time) (bank.Transactions, error)
}

type Payers interface {
	PayersReport(ctx context.Context, ref time.Time) (checks.Report, error)
}

// Deps are the services behind the built-in commands.
type Deps struct {
	Reminders Reminders
	Bank      Bank
	Payers    Payers
	// RentAmount is the exact outgoing transfer /alquiler looks for.
	RentAmount float64
	Location   *time.Location
	Now        func() time.Time
}

const (
	dateTimeLayout  = "02/01/2006 15:04"
	reminderLayout  = "2006-01-02 15:04"
	recentTxLimit   = 6
	reminderUsage   = "❌ Uso: /recordatorio YYYY-MM-DD HH:MM <tu mensaje>"
	cancelUsage     = "❌ Uso: /borrarRecordatorio <id>"
	rateLimitedText = "⚠️ Límite de peticiones excedido. Vuelve a intentarlo en %s."
)

var markdown = &transport.SendOptions{ParseMode: "Markdown"}

type handlers struct {
	Deps
}

// Commands builds the bot's command set.
func Commands(d Deps) []Command {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.RentAmount == 0 {
		d.RentAmount = 800
	}
	h := handlers{d}
	return []Command{
		{Name: "hola", Description: "Saludo", Handle: h.hola},
		{Name: "fecha", Description: "Fecha y hora actual", Handle: h.fecha},
		{Name: "saldo", Description: "Saldos de la cuenta", Handle: h.saldo},
		{Name: "iban", Description: "Detalles de la cuenta", Handle: h.iban},
		{Name: "transacciones", Description: "Últimas 6 transacciones", Handle: h.transacciones},
		{Name: "alquiler", Description: "Última transferencia del alquiler", Handle: h.alquiler},
		{Name: "morosos", Description: "Quién ha pagado en los últimos días", Handle: h.morosos},
		{Name: "recordatorio", Description: "Programa un recordatorio", Usage: reminderUsage, Handle: h.recordatorio},
		{Name: "ListaRecordatorios", Description: "Recordatorios pendientes", Handle: h.listaRecordatorios},
		{Name: "borrarRecordatorio", Description: "Borra un recordatorio", Usage: cancelUsage, Handle: h.borrarRecordatorio},
		{Name: "chatid", Description: "ID de este chat", Handle: h.chatID},
	}
}

func (h handlers) now() time.Time { return h.Now().In(h.Location) }

func (h handlers) hola(ctx context.Context, req *Request) error {
	return req.Reply(ctx, "¡Hola! ¿En qué puedo ayudarte? 🤖", nil)
}

func (h handlers) fecha(ctx context.Context, req *Request) error {
	return req.Reply(ctx, "La fecha y hora actual es: "+h.now().Format(dateTimeLayout), nil)
}

func (h handlers) chatID(ctx context.Context, req *Request) error {
	return req.Reply(ctx, fmt.Sprintf("🔢 Tu chat ID es: %d", req.Chat.ChatID), nil)
}

// bankFailure renders a bank error for the chat. Rate limits only report
// the wait; interactive queries are never retried.
func bankFailure(what string, err error) string {
	if rl, ok := bank.AsRateLimited(err); ok {
		return fmt.Sprintf(rateLimitedText, rl.Wait.Text)
	}
	return fmt.Sprintf("⚠️ Error %s: %v", what, err)
}

func (h handlers) saldo(ctx context.Context, req *Request) error {
	balances, err := h.Bank.Balances(ctx)
	if err != nil {
		return req.Reply(ctx, bankFailure("al obtener el saldo", err), nil)
	}
	if len(balances) == 0 {
		return req.Reply(ctx, "No se encontró información de saldo.", nil)
	}
	lines := []string{"💰 *Saldos disponibles:*"}
	for _, b := range balances {
		cur := or(b.BalanceAmount.Currency, "EUR")
		lines = append(lines, fmt.Sprintf("• _%s_: %s %s (ref: %s)", or(b.BalanceType, "desconocido"), or(b.BalanceAmount.Amount, "N/A"), cur, b.ReferenceDate))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), markdown)
}

func (h handlers) iban(ctx context.Context, req *Request) error {
	acct, err := h.Bank.Details(ctx)
	if err != nil {
		return req.Reply(ctx, bankFailure("al obtener el IBAN", err), nil)
	}
	text := strings.Join([]string{
		"🏦 *Detalles de la cuenta:*",
		"• _IBAN_: `" + or(acct.IBAN, "N/A") + "`",
		"• _BIC_: `" + or(acct.BIC, "N/A") + "`",
		"• _Titular_: " + or(acct.OwnerName, "N/A"),
		"• _Moneda_: " + or(acct.Currency, "EUR"),
		"• _Estado_: " + acct.Status,
	}, "\n")
	return req.Reply(ctx, text, markdown)
}

func (h handlers) transacciones(ctx context.Context, req *Request) error {
	txs, err := h.Bank.Transactions(ctx, time.Time{}, time.Time{})
	if err != nil {
		return req.Reply(ctx, bankFailure("al obtener transacciones", err), nil)
	}
	if len(txs.Booked) == 0 {
		return req.Reply(ctx, "No hay transacciones recientes.", nil)
	}
	booked := txs.Booked[:min(recentTxLimit, len(txs.Booked))]
	lines := []string{fmt.Sprintf("🧾 *Últimas %d transacciones:*", recentTxLimit)}
	for _, tx := range booked {
		amt := or(tx.TransactionAmount.Amount, "N/A")
		sign := "+"
		if strings.HasPrefix(amt, "-") {
			sign = ""
		}
		concept := "—"
		if len(tx.Remittance) > 0 {
			concept = strings.Join(tx.Remittance, "; ")
		}
		lines = append(lines, fmt.Sprintf("• %s: %s%s %s — %s (%s)",
			tx.BookingDate, sign, amt, or(tx.TransactionAmount.Currency, "EUR"), or(tx.Counterparty(), "—"), concept))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), markdown)
}

// alquiler finds the latest outgoing transfer of exactly the rent amount
// since the first day of the previous month.
func (h handlers) alquiler(ctx context.Context, req *Request) error {
	now := h.now()
	from := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, h.Location)
	txs, err := h.Bank.Transactions(ctx, from, now)
	if err != nil {
		return req.Reply(ctx, bankFailure("en /alquiler", err), nil)
	}
	var last *bank.Transaction
	for i, tx := range txs.Booked {
		if tx.TransactionAmount.Value() != -h.RentAmount {
			continue
		}
		if last == nil || tx.BookingDate > last.BookingDate {
			last = &txs.Booked[i]
		}
	}
	if last == nil {
		return req.Reply(ctx, fmt.Sprintf("No se encontró ninguna transferencia de %g € en el rango de este y mes anterior.", h.RentAmount), nil)
	}
	text := fmt.Sprintf("🏠 */alquiler*: La última transferencia de %g € fue el %s a *%s* (ID: `%s`).",
		h.RentAmount, last.BookingDate, or(last.Counterparty(), "—"), last.TransactionID)
	return req.Reply(ctx, text, markdown)
}

func (h handlers) morosos(ctx context.Context, req *Request) error {
	rep, err := h.Payers.PayersReport(ctx, h.now())
	if err != nil {
		return req.Reply(ctx, bankFailure("en /morosos", err), nil)
	}
	return req.Reply(ctx, rep.Text(false), markdown)
}

func (h handlers) recordatorio(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		return req.Reply(ctx, reminderUsage, nil)
	}
	runAt, err := time.ParseInLocation(reminderLayout, req.Args[0]+" "+req.Args[1], h.Location)
	if err != nil {
		return req.Reply(ctx, reminderUsage, nil)
	}
	message := strings.Join(req.Args[2:], " ")

	now := h.now()
	created, err := h.Reminders.Create(ctx, req.Chat.ChatID, runAt, message)
	switch {
	case errors.Is(err, reminder.ErrCapacity):
		return req.Reply(ctx, fmt.Sprintf("❌ Has alcanzado el límite de %d recordatorios.", reminder.MaxPending), nil)
	case errors.Is(err, reminder.ErrPastDue):
		return req.Reply(ctx, "❌ La fecha y hora deben ser en el futuro.", nil)
	case err != nil:
		return req.Reply(ctx, "⚠️ No se pudo programar el recordatorio: "+err.Error(), nil)
	}

	text := strings.Join([]string{
		"👌 Recordatorio programado correctamente:",
		fmt.Sprintf("• ID: %d", created.ID),
		"• Ahora: " + now.Format(dateTimeLayout),
		"• Queda(n): " + created.Wait,
		"• Para: " + created.RunAt.In(h.Location).Format(dateTimeLayout),
		"• Mensaje: “" + created.Message + "”",
	}, "\n")
	return req.Reply(ctx, text, nil)
}

func (h handlers) listaRecordatorios(ctx context.Context, req *Request) error {
	list, err := h.Reminders.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return req.Reply(ctx, "No hay recordatorios programados.", nil)
	}
	lines := []string{"📋 *Recordatorios pendientes:*"}
	for _, r := range list {
		lines = append(lines, fmt.Sprintf("• ID %d: Para %s — “%s”", r.ID, r.RunAt.In(h.Location).Format(dateTimeLayout), r.Message))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), markdown)
}

func (h handlers) borrarRecordatorio(ctx context.Context, req *Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, cancelUsage, nil)
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return req.Reply(ctx, cancelUsage, nil)
	}
	switch err := h.Reminders.Cancel(ctx, id); {
	case errors.Is(err, reminder.ErrNotFound):
		return req.Reply(ctx, fmt.Sprintf("❌ No existe un recordatorio con ID %d.", id), nil)
	case err != nil:
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("🗑️ Recordatorio ID %d eliminado.", id), nil)
}

func or(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
