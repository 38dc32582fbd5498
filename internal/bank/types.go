package bank

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chispitas/internal/ratelimit"
)

// Amount is a signed decimal string plus currency, as the API sends it.
type Amount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Value parses the amount; malformed amounts read as zero.
func (a Amount) Value() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(a.Amount), 64)
	if err != nil {
		return 0
	}
	return v
}

type Balance struct {
	BalanceAmount      Amount `json:"balanceAmount"`
	BalanceType        string `json:"balanceType"`
	ReferenceDate      string `json:"referenceDate,omitempty"`
	LastChangeDateTime string `json:"lastChangeDateTime,omitempty"`
}

type Account struct {
	ResourceID string `json:"resourceId,omitempty"`
	IBAN       string `json:"iban"`
	BIC        string `json:"bic,omitempty"`
	Currency   string `json:"currency"`
	OwnerName  string `json:"ownerName"`
	Name       string `json:"name,omitempty"`
	Product    string `json:"product,omitempty"`
	Status     string `json:"status,omitempty"`
}

type Transaction struct {
	TransactionID     string   `json:"transactionId,omitempty"`
	BookingDate       string   `json:"bookingDate"`
	ValueDate         string   `json:"valueDate,omitempty"`
	TransactionAmount Amount   `json:"transactionAmount"`
	CreditorName      string   `json:"creditorName,omitempty"`
	DebtorName        string   `json:"debtorName,omitempty"`
	Remittance        []string `json:"remittanceInformationUnstructuredArray,omitempty"`
}

// Counterparty is the other side of the movement: the creditor for outgoing
// money, the debtor for incoming.
func (t Transaction) Counterparty() string {
	if t.TransactionAmount.Value() < 0 {
		if t.CreditorName != "" {
			return t.CreditorName
		}
		return t.DebtorName
	}
	if t.DebtorName != "" {
		return t.DebtorName
	}
	return t.CreditorName
}

// Transactions holds booked and pending movements, newest first as returned.
type Transactions struct {
	Booked  []Transaction `json:"booked"`
	Pending []Transaction `json:"pending,omitempty"`
}

// RateLimitedError is returned for a 429. Wait carries the parsed delay.
type RateLimitedError struct {
	Wait ratelimit.Wait
}

func (e *RateLimitedError) Error() string {
	return "bank api rate limited, retry in " + e.Wait.Text
}

// ExternalError is any other failed call: a non-2xx status or a transport
// error (Status 0).
type ExternalError struct {
	Status  int
	Message string
	Err     error
}

func (e *ExternalError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("bank api unreachable: %s", e.Message)
	}
	return fmt.Sprintf("bank api status %d: %s", e.Status, e.Message)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// AsRateLimited unwraps err into a *RateLimitedError.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
