package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"chispitas/internal/bank"
)

// Report is the outcome of the payers check.
type Report struct {
	Days       int
	Threshold  float64
	Paid       []string
	Defaulters []string
}

// Text renders the report. The automatic variant is used by scheduled runs.
func (r Report) Text(automatic bool) string {
	var b strings.Builder
	if automatic {
		b.WriteString("📋 *Morosos* (automático):")
	} else {
		fmt.Fprintf(&b, "📋 */morosos* (últimos %d días y %g €):", r.Days, r.Threshold)
	}
	if len(r.Paid) > 0 {
		b.WriteString("\n• Han pagado:")
		for _, p := range r.Paid {
			b.WriteString("\n   – " + p)
		}
	} else {
		b.WriteString("\n• Nadie ha pagado aún.")
	}
	if len(r.Defaulters) > 0 {
		b.WriteString("\n• Morosos:")
		for _, p := range r.Defaulters {
			b.WriteString("\n   – " + p)
		}
	}
	return b.String()
}

// PayersReport queries the lookback window ending at ref and classifies the
// configured parties. Errors come from the bank client unchanged.
func (r *Runner) PayersReport(ctx context.Context, ref time.Time) (Report, error) {
	cfg := r.config().Payers
	txs, err := r.bank.Transactions(ctx, ref.AddDate(0, 0, -cfg.LookbackDays), ref)
	if err != nil {
		return Report{}, err
	}
	return classify(txs.Booked, cfg), nil
}

// classify marks a party as paid when an incoming movement of at least the
// threshold names it. Longer match strings are tried first so "LUIS MIGUEL"
// wins over a shorter party contained in it.
func classify(txs []bank.Transaction, cfg PayersConfig) Report {
	paid := make(map[string]bool, len(cfg.Parties))
	order := make([]Party, len(cfg.Parties))
	copy(order, cfg.Parties)
	sort.SliceStable(order, func(i, j int) bool { return len(order[i].Match) > len(order[j].Match) })

	for _, tx := range txs {
		if tx.TransactionAmount.Value() < cfg.Threshold {
			continue
		}
		name := strings.ToUpper(tx.DebtorName)
		if name == "" {
			name = strings.ToUpper(tx.CreditorName)
		}
		if name == "" {
			continue
		}
		for _, p := range order {
			if p.Match != "" && strings.Contains(name, strings.ToUpper(p.Match)) {
				paid[p.Name] = true
				break
			}
		}
	}

	rep := Report{Days: cfg.LookbackDays, Threshold: cfg.Threshold}
	for _, p := range cfg.Parties {
		if paid[p.Name] {
			rep.Paid = append(rep.Paid, p.Name)
		} else {
			rep.Defaulters = append(rep.Defaulters, p.Name)
		}
	}
	return rep
}
