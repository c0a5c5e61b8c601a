// Package memory is an in-process storage.Repository for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/storage"
)

var _ storage.Repository = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	nextID   int64
	txs      []core.Transaction
	loans    []core.Loan
	payments []core.ScheduledPayment
	archives []core.MonthlyArchive
	active   *core.AccountingMonth
	faults   map[string]error
	calls    map[string]int
}

func New() *Store {
	return &Store{faults: map[string]error{}, calls: map[string]int{}}
}

// FailOn makes the named method (e.g. "CreateTransaction") return err until
// it is cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// Calls reports how many times the named method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// enter records the call and returns the injected fault, if any. Callers
// hold s.mu.
func (s *Store) enter(method string) error {
	s.calls[method]++
	if err := s.faults[method]; err != nil {
		return fmt.Errorf("memory %s: %w", method, err)
	}
	return nil
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enter("Ping")
}

func (s *Store) Close() error { return nil }

func (s *Store) ListTransactions(_ context.Context, month core.AccountingMonth) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListTransactions"); err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, t := range s.txs {
		if t.Month == month {
			out = append(out, t)
		}
	}
	core.SortNewestFirst(out)
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateTransaction"); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.ID = s.id()
	s.txs = append(s.txs, t)
	return t, nil
}

func (s *Store) DeleteTransactions(_ context.Context, month core.AccountingMonth) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteTransactions"); err != nil {
		return 0, err
	}
	kept := s.txs[:0]
	var n int64
	for _, t := range s.txs {
		if t.Month == month {
			n++
			continue
		}
		kept = append(kept, t)
	}
	s.txs = kept
	return n, nil
}

func (s *Store) ListActiveLoans(context.Context) ([]core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListActiveLoans"); err != nil {
		return nil, err
	}
	var out []core.Loan
	for _, l := range s.loans {
		if l.Active {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LoanDate.Equal(out[j].LoanDate) {
			return out[i].LoanDate.After(out[j].LoanDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CreateLoan(_ context.Context, l core.Loan) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateLoan"); err != nil {
		return core.Loan{}, err
	}
	l.ID = s.id()
	s.loans = append(s.loans, l)
	return l, nil
}

func (s *Store) UpdateLoan(_ context.Context, l core.Loan) (core.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateLoan"); err != nil {
		return core.Loan{}, err
	}
	for i := range s.loans {
		if s.loans[i].ID == l.ID {
			s.loans[i] = l
			return l, nil
		}
	}
	return core.Loan{}, fmt.Errorf("loan %d: %w", l.ID, core.ErrNotFound)
}

func (s *Store) DeleteLoan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteLoan"); err != nil {
		return err
	}
	for i := range s.loans {
		if s.loans[i].ID == id {
			s.loans = append(s.loans[:i], s.loans[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("loan %d: %w", id, core.ErrNotFound)
}

func (s *Store) ListPayments(_ context.Context, since time.Time) ([]core.ScheduledPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListPayments"); err != nil {
		return nil, err
	}
	var out []core.ScheduledPayment
	for _, p := range s.payments {
		if !p.Completed || (p.CompletedAt != nil && !p.CompletedAt.Before(since)) {
			out = append(out, p)
		}
	}
	core.SortByDueDate(out)
	return out, nil
}

func (s *Store) ListAllPayments(context.Context) ([]core.ScheduledPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListAllPayments"); err != nil {
		return nil, err
	}
	out := append([]core.ScheduledPayment(nil), s.payments...)
	core.SortByDueDate(out)
	return out, nil
}

func (s *Store) CreatePayment(_ context.Context, p core.ScheduledPayment) (core.ScheduledPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreatePayment"); err != nil {
		return core.ScheduledPayment{}, err
	}
	p.ID = s.id()
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *Store) UpdatePayment(_ context.Context, p core.ScheduledPayment) (core.ScheduledPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdatePayment"); err != nil {
		return core.ScheduledPayment{}, err
	}
	for i := range s.payments {
		if s.payments[i].ID == p.ID {
			s.payments[i] = p
			return p, nil
		}
	}
	return core.ScheduledPayment{}, fmt.Errorf("payment %d: %w", p.ID, core.ErrNotFound)
}

func (s *Store) DeletePayment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeletePayment"); err != nil {
		return err
	}
	for i := range s.payments {
		if s.payments[i].ID == id {
			s.payments = append(s.payments[:i], s.payments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("payment %d: %w", id, core.ErrNotFound)
}

func (s *Store) ListArchives(context.Context) ([]core.MonthlyArchive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListArchives"); err != nil {
		return nil, err
	}
	out := append([]core.MonthlyArchive(nil), s.archives...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClosedAt.After(out[j].ClosedAt)
	})
	return out, nil
}

func (s *Store) GetArchive(_ context.Context, month core.AccountingMonth) (core.MonthlyArchive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetArchive"); err != nil {
		return core.MonthlyArchive{}, err
	}
	for _, a := range s.archives {
		if a.Month == month {
			return a, nil
		}
	}
	return core.MonthlyArchive{}, fmt.Errorf("archive %s: %w", month, core.ErrNotFound)
}

func (s *Store) CreateArchive(_ context.Context, a core.MonthlyArchive) (core.MonthlyArchive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateArchive"); err != nil {
		return core.MonthlyArchive{}, err
	}
	for _, existing := range s.archives {
		if existing.Month == a.Month {
			return core.MonthlyArchive{}, fmt.Errorf("archive %s already exists", a.Month)
		}
	}
	a.ID = s.id()
	a.Transactions = append([]core.Transaction(nil), a.Transactions...)
	s.archives = append(s.archives, a)
	return a, nil
}

func (s *Store) ActiveMonth(context.Context) (core.AccountingMonth, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ActiveMonth"); err != nil {
		return core.AccountingMonth{}, false, err
	}
	if s.active == nil {
		return core.AccountingMonth{}, false, nil
	}
	return *s.active, true, nil
}

func (s *Store) SetActiveMonth(_ context.Context, m core.AccountingMonth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetActiveMonth"); err != nil {
		return err
	}
	s.active = &m
	return nil
}
