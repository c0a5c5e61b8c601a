package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gastos/internal/core"
)

// Ledger records income, expenses and transfers for the active month.
type Ledger struct {
	s       *Session
	history *History
}

func NewLedger(s *Session, history *History) *Ledger {
	return &Ledger{s: s, history: history}
}

// RecordIncome credits a real account.
func (l *Ledger) RecordIncome(ctx context.Context, account core.Account, amount core.Money, description, category string) (core.Transaction, error) {
	return l.record(ctx, "record_income", core.Transaction{
		Kind:        core.KindIncome,
		Amount:      amount,
		Description: describe(description, category),
		Category:    strings.TrimSpace(category),
		Destination: account,
	})
}

// RecordExpense debits a real account. The amount may not exceed the
// account's live balance.
func (l *Ledger) RecordExpense(ctx context.Context, account core.Account, amount core.Money, description, category string) (core.Transaction, error) {
	return l.record(ctx, "record_expense", core.Transaction{
		Kind:        core.KindExpense,
		Amount:      amount,
		Description: describe(description, category),
		Category:    strings.TrimSpace(category),
		Destination: account,
	})
}

// RecordTransfer moves money between two distinct real accounts.
func (l *Ledger) RecordTransfer(ctx context.Context, source, dest core.Account, amount core.Money, description string) (core.Transaction, error) {
	if strings.TrimSpace(description) == "" {
		description = fmt.Sprintf("Transferencia %s → %s", source, dest)
	}
	return l.record(ctx, "record_transfer", core.Transaction{
		Kind:        core.KindTransfer,
		Amount:      amount,
		Description: description,
		Source:      source,
		Destination: dest,
	})
}

func (l *Ledger) record(ctx context.Context, op string, t core.Transaction) (core.Transaction, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin(op)
	if err := s.requireOpen(); err != nil {
		return core.Transaction{}, m.reject(ctx, fmt.Errorf("%s: %w", op, err))
	}
	t.Timestamp = s.now()
	t.Month = s.month
	if err := validateMovement(t); err != nil {
		return core.Transaction{}, m.reject(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if t.Kind != core.KindIncome {
		debit := t.Destination
		if t.Kind == core.KindTransfer {
			debit = t.Source
		}
		if err := s.requireFunds(debit, t.Amount); err != nil {
			return core.Transaction{}, m.reject(ctx, fmt.Errorf("%s: %w", op, err))
		}
	}

	stored, err := s.appendTransaction(ctx, m, t)
	if err != nil {
		return core.Transaction{}, err
	}
	account := stored.Destination
	if stored.Kind == core.KindTransfer {
		account = stored.Source
	}
	m.commit(ctx, fmt.Sprintf("%s registrado: %s", kindLabel(stored.Kind), stored.Amount.Format()),
		"account", account.String(), "amount_cents", stored.Amount.Cents, "id", stored.ID)
	return stored, nil
}

// appendTransaction prepends t to the in-memory list and persists it. The
// in-memory entry picks up the stored ID on success. Callers hold s.mu.
func (s *Session) appendTransaction(ctx context.Context, m *mutation, t core.Transaction) (core.Transaction, error) {
	var stored core.Transaction
	err := m.apply(ctx,
		func() { s.txs = append([]core.Transaction{t}, s.txs...) },
		func(ctx context.Context) error {
			var err error
			stored, err = s.repo.CreateTransaction(ctx, t)
			if err != nil {
				return err
			}
			s.txs[0] = stored
			return nil
		})
	return stored, err
}

// validateMovement checks a user-entered movement: shape plus real accounts
// on both legs.
func validateMovement(t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if !t.Destination.AcceptsFunds() {
		return fmt.Errorf("%w: %s cannot be used here", core.ErrValidation, t.Destination)
	}
	if t.Kind == core.KindTransfer && !t.Source.IsReal() {
		return fmt.Errorf("%w: %s cannot be used here", core.ErrValidation, t.Source)
	}
	return nil
}

// describe falls back to the category when no description was entered.
func describe(description, category string) string {
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return strings.TrimSpace(category)
}

func kindLabel(k core.Kind) string {
	switch k {
	case core.KindIncome:
		return "Ingreso"
	case core.KindExpense:
		return "Gasto"
	}
	return "Transferencia"
}

// ListForMonth returns a month's transactions, newest first. The active
// month is served from memory; a closed month falls back to its archive.
func (l *Ledger) ListForMonth(ctx context.Context, month core.AccountingMonth) ([]core.Transaction, error) {
	l.s.mu.Lock()
	if month == l.s.month {
		out := append([]core.Transaction(nil), l.s.txs...)
		l.s.mu.Unlock()
		return out, nil
	}
	l.s.mu.Unlock()

	txs, err := l.s.repo.ListTransactions(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w: %w", month, core.ErrStorage, err)
	}
	if len(txs) > 0 || l.history == nil {
		return txs, nil
	}
	archive, err := l.history.Archive(ctx, month)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := append([]core.Transaction(nil), archive.Transactions...)
	core.SortNewestFirst(out)
	return out, nil
}

// Balances returns the live projection for the active month.
func (l *Ledger) Balances() core.Balances {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.balances()
}

func (l *Ledger) Totals() core.Totals {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return core.ComputeTotals(l.s.txs, l.s.balances())
}
