package services

import (
	"context"
	"fmt"
	"strings"

	"gastos/internal/core"
)

// Loans tracks family loans as receivables. Disbursements and repayments
// are booked as transfers through the in-transit marker.
type Loans struct {
	s *Session
}

func NewLoans(s *Session) *Loans {
	return &Loans{s: s}
}

// BorrowerGroup collects a borrower's active loans.
type BorrowerGroup struct {
	Borrower string      `json:"borrower"`
	Loans    []core.Loan `json:"loans"`
	Pending  core.Money  `json:"pending"`
	Repaid   core.Money  `json:"repaid"`
}

// Disburse lends amount to borrower. A real origin moves the money out
// through a transfer to the in-transit marker and needs sufficient funds.
// The undisbursed marker records the loan alone.
func (l *Loans) Disburse(ctx context.Context, origin core.Account, amount core.Money, borrower, description string) (core.Loan, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("disburse_loan")
	if err := s.requireOpen(); err != nil {
		return core.Loan{}, m.reject(ctx, fmt.Errorf("disburse loan: %w", err))
	}
	now := s.now()
	borrower = strings.TrimSpace(borrower)
	description = strings.TrimSpace(description)
	loan := core.Loan{
		Borrower:    borrower,
		Principal:   amount,
		Pending:     amount,
		Description: description,
		Origin:      origin,
		LoanDate:    now,
		Active:      true,
	}
	if err := loan.Validate(); err != nil {
		return core.Loan{}, m.reject(ctx, fmt.Errorf("disburse loan: %w", err))
	}

	var tx *core.Transaction
	if origin.IsReal() {
		if err := s.requireFunds(origin, amount); err != nil {
			return core.Loan{}, m.reject(ctx, fmt.Errorf("disburse loan: %w", err))
		}
		label := "Préstamo a " + borrower
		if description != "" {
			label += " - " + description
		}
		tx = &core.Transaction{
			Kind:        core.KindTransfer,
			Amount:      amount,
			Description: label,
			Category:    core.CategoryLoans,
			Source:      origin,
			Destination: core.AccountInTransit,
			Timestamp:   now,
			Month:       s.month,
		}
		if err := tx.Validate(); err != nil {
			return core.Loan{}, m.reject(ctx, fmt.Errorf("disburse loan: %w", err))
		}
	}

	var stored core.Loan
	err := m.apply(ctx,
		func() {
			if tx != nil {
				s.txs = append([]core.Transaction{*tx}, s.txs...)
			}
			s.loans = append([]core.Loan{loan}, s.loans...)
		},
		func(ctx context.Context) error {
			if tx != nil {
				storedTx, err := s.repo.CreateTransaction(ctx, *tx)
				if err != nil {
					return err
				}
				s.txs[0] = storedTx
			}
			var err error
			stored, err = s.repo.CreateLoan(ctx, loan)
			if err != nil {
				return err
			}
			s.loans[0] = stored
			return nil
		})
	if err != nil {
		return core.Loan{}, err
	}
	m.commit(ctx, fmt.Sprintf("Préstamo registrado: %s a %s", amount.Format(), borrower),
		"loan_id", stored.ID, "account", origin.String(), "amount_cents", amount.Cents)
	return stored, nil
}

// Repay books a repayment into target. currentPending is the pending value
// the caller last saw; a mismatch means the caller is acting on stale state.
func (l *Loans) Repay(ctx context.Context, loanID int64, amount core.Money, target core.Account, currentPending core.Money) (core.Loan, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("repay_loan")
	idx := s.loanIndex(loanID)
	if idx < 0 {
		return core.Loan{}, m.reject(ctx, fmt.Errorf("repay loan %d: %w", loanID, core.ErrNotFound))
	}
	if err := s.requireOpen(); err != nil {
		return core.Loan{}, m.reject(ctx, fmt.Errorf("repay loan %d: %w", loanID, err))
	}
	loan := s.loans[idx]
	switch {
	case amount.Validate() != nil:
		return core.Loan{}, m.reject(ctx, fmt.Errorf("repay loan %d: %w", loanID, core.ErrInvalidAmount))
	case !target.IsReal():
		return core.Loan{}, m.reject(ctx, fmt.Errorf("repay loan %d: %w: %s cannot receive repayments", loanID, core.ErrValidation, target))
	case currentPending != loan.Pending:
		return core.Loan{}, m.reject(ctx, fmt.Errorf("repay loan %d: %w: pending is %s, caller saw %s",
			loanID, core.ErrValidation, loan.Pending.Format(), currentPending.Format()))
	case amount.GreaterThan(loan.Pending):
		return core.Loan{}, m.reject(ctx, fmt.Errorf("repay loan %d: %w: repayment %s exceeds pending %s",
			loanID, core.ErrInsufficientFunds, amount.Format(), loan.Pending.Format()))
	}

	now := s.now()
	updated := loan
	updated.Pending = loan.Pending.Sub(amount)
	updated.Active = updated.Pending.Cents > 0
	updated.LastRepayment = &now

	status := "completamente pagado"
	if updated.Active {
		status = updated.Pending.Format() + " pendiente"
	}
	tx := core.Transaction{
		Kind:        core.KindTransfer,
		Amount:      amount,
		Description: fmt.Sprintf("Abono préstamo de %s (%s)", loan.Borrower, status),
		Category:    core.CategoryLoanRepayment,
		Source:      core.AccountInTransit,
		Destination: target,
		Timestamp:   now,
		Month:       s.month,
	}

	err := m.apply(ctx,
		func() {
			s.txs = append([]core.Transaction{tx}, s.txs...)
			if updated.Active {
				s.loans[idx] = updated
			} else {
				s.loans = append(s.loans[:idx:idx], s.loans[idx+1:]...)
			}
		},
		func(ctx context.Context) error {
			storedTx, err := s.repo.CreateTransaction(ctx, tx)
			if err != nil {
				return err
			}
			s.txs[0] = storedTx
			_, err = s.repo.UpdateLoan(ctx, updated)
			return err
		})
	if err != nil {
		return core.Loan{}, err
	}
	m.commit(ctx, fmt.Sprintf("Abono de %s registrado: %s", loan.Borrower, amount.Format()),
		"loan_id", loanID, "account", target.String(), "amount_cents", amount.Cents)
	return updated, nil
}

// Remove deletes a loan outright. Its pending amount stops counting toward
// owed-to-me; no transaction is booked.
func (l *Loans) Remove(ctx context.Context, loanID int64) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("remove_loan")
	idx := s.loanIndex(loanID)
	if idx < 0 {
		return m.reject(ctx, fmt.Errorf("remove loan %d: %w", loanID, core.ErrNotFound))
	}
	err := m.apply(ctx,
		func() { s.loans = append(s.loans[:idx:idx], s.loans[idx+1:]...) },
		func(ctx context.Context) error { return s.repo.DeleteLoan(ctx, loanID) })
	if err != nil {
		return err
	}
	m.commit(ctx, "Préstamo eliminado", "loan_id", loanID)
	return nil
}

// Active returns the active loans, newest first.
func (l *Loans) Active() []core.Loan {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return append([]core.Loan(nil), l.s.loans...)
}

// OwedToMe is the sum of pending principal over active loans.
func (l *Loans) OwedToMe() core.Money {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return core.OwedToMe(l.s.loans)
}

// GroupByBorrower groups active loans by borrower in first-seen order.
func (l *Loans) GroupByBorrower() []BorrowerGroup {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return groupByBorrower(l.s.loans)
}

func groupByBorrower(loans []core.Loan) []BorrowerGroup {
	var groups []BorrowerGroup
	index := map[string]int{}
	for _, loan := range loans {
		i, ok := index[loan.Borrower]
		if !ok {
			i = len(groups)
			index[loan.Borrower] = i
			groups = append(groups, BorrowerGroup{Borrower: loan.Borrower})
		}
		groups[i].Loans = append(groups[i].Loans, loan)
		groups[i].Pending = groups[i].Pending.Add(loan.Pending)
		groups[i].Repaid = groups[i].Repaid.Add(loan.Repaid())
	}
	return groups
}

// loanIndex finds an active loan by ID. Callers hold s.mu.
func (s *Session) loanIndex(id int64) int {
	for i, l := range s.loans {
		if l.ID == id {
			return i
		}
	}
	return -1
}
