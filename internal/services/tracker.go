package services

import (
	"context"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/storage"
)

// Tracker wires the ledger components around one shared session.
type Tracker struct {
	Session  *Session
	Ledger   *Ledger
	Loans    *Loans
	Payments *Payments
	History  *History
	Closer   *MonthCloser
}

// NewTracker builds every component over repo. archives may be nil for a
// default-sized cache.
func NewTracker(repo storage.Repository, archives *cache.LRU[core.AccountingMonth, core.MonthlyArchive], opts ...Option) *Tracker {
	s := NewSession(repo, opts...)
	history := NewHistory(s, archives)
	return &Tracker{
		Session:  s,
		Ledger:   NewLedger(s, history),
		Loans:    NewLoans(s),
		Payments: NewPayments(s),
		History:  history,
		Closer:   NewMonthCloser(s, history),
	}
}

func (t *Tracker) Load(ctx context.Context) error {
	return t.Session.Load(ctx)
}

// Snapshot is the read model handed to presentation.
type Snapshot struct {
	Month          core.AccountingMonth    `json:"month"`
	MonthName      string                  `json:"month_name"`
	NextMonth      core.AccountingMonth    `json:"next_month"`
	Balances       core.Balances           `json:"balances"`
	Totals         core.Totals             `json:"totals"`
	Transactions   []core.Transaction      `json:"transactions"`
	Loans          []core.Loan             `json:"loans"`
	Borrowers      []BorrowerGroup         `json:"borrowers"`
	Payments       []core.ScheduledPayment `json:"payments"`
	PaymentGroups  []CategoryGroup         `json:"payment_groups"`
	PaymentSummary PaymentSummary          `json:"payment_summary"`
	History        []core.MonthlyArchive   `json:"history"`
	Version        uint64                  `json:"version"`
	Stale          bool                    `json:"stale"`
	LastOutcome    Outcome                 `json:"last_outcome"`
}

// Snapshot copies the current state under one lock so every field agrees
// on the same version.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	balances := s.balances()
	return Snapshot{
		Month:          s.month,
		MonthName:      s.month.Title(),
		NextMonth:      s.month.Next(),
		Balances:       balances,
		Totals:         core.ComputeTotals(s.txs, balances),
		Transactions:   append([]core.Transaction{}, s.txs...),
		Loans:          append([]core.Loan{}, s.loans...),
		Borrowers:      groupByBorrower(s.loans),
		Payments:       append([]core.ScheduledPayment{}, s.payments...),
		PaymentGroups:  groupByCategory(s.payments),
		PaymentSummary: summarize(s.payments, now),
		History:        append([]core.MonthlyArchive{}, s.history...),
		Version:        s.version,
		Stale:          s.stale,
		LastOutcome:    s.last,
	}
}
