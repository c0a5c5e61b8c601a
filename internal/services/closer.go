package services

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/core"
)

// MonthCloser archives the active month and rolls the ledger forward.
type MonthCloser struct {
	s       *Session
	history *History
}

func NewMonthCloser(s *Session, history *History) *MonthCloser {
	return &MonthCloser{s: s, history: history}
}

// CloseResult describes a completed close.
type CloseResult struct {
	Archive    core.MonthlyArchive  `json:"archive"`
	Next       core.AccountingMonth `json:"next"`
	Resumed    bool                 `json:"resumed"`
	RolledOver int                  `json:"rolled_over"`
	Deleted    int64                `json:"deleted_transactions"`
}

// CloseMonth archives the active month's totals, balances and
// transactions, clears its transactions, rolls every payment on record into
// the next month and advances the active month. Owed-to-me carries over
// untouched since loans are not month-scoped. A close interrupted after
// the archive was written resumes from the existing archive, provided the
// archive still holds every transaction stored for the month.
func (c *MonthCloser) CloseMonth(ctx context.Context) (CloseResult, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("close_month")
	month := s.month
	next := month.Next()
	logger := s.logger.With("month", month.String(), "next", next.String())

	archive, resumed, err := c.archive(ctx, month)
	if err != nil {
		return CloseResult{}, m.reject(ctx, fmt.Errorf("close %s: %w", month, err))
	}
	logger.InfoContext(ctx, "Month archived", "archive_id", archive.ID, "resumed", resumed,
		"transactions", len(archive.Transactions))

	result := CloseResult{Archive: archive, Next: next, Resumed: resumed}
	err = m.apply(ctx,
		func() {},
		func(ctx context.Context) error {
			deleted, err := s.repo.DeleteTransactions(ctx, month)
			if err != nil {
				return fmt.Errorf("delete transactions: %w", err)
			}
			result.Deleted = deleted

			rolled, err := s.rollPayments(ctx, next, resumed)
			result.RolledOver = rolled
			if err != nil {
				return fmt.Errorf("roll payments: %w", err)
			}

			if err := s.repo.SetActiveMonth(ctx, next); err != nil {
				return fmt.Errorf("advance active month: %w", err)
			}
			s.month = next
			s.txs = nil
			return nil
		})
	if err != nil {
		return CloseResult{}, err
	}

	if c.history != nil {
		c.history.cache.Set(month, archive)
	}
	if err := s.reload(ctx); err != nil {
		logger.ErrorContext(ctx, "Reload after close failed", "error", err)
		return result, err
	}

	m.commit(ctx, fmt.Sprintf("Mes cerrado: %s. Nuevo mes: %s", month.Title(), next.Title()),
		"deleted", result.Deleted, "rolled_over", result.RolledOver, "resumed", resumed)
	return result, nil
}

// archive returns the stored archive of month, creating it from the live
// state when none exists yet. Callers hold s.mu.
func (c *MonthCloser) archive(ctx context.Context, month core.AccountingMonth) (core.MonthlyArchive, bool, error) {
	s := c.s
	existing, err := s.repo.GetArchive(ctx, month)
	switch {
	case err == nil:
		if err := coversStored(ctx, s, existing); err != nil {
			return core.MonthlyArchive{}, false, err
		}
		return existing, true, nil
	case !errors.Is(err, core.ErrNotFound):
		return core.MonthlyArchive{}, false, fmt.Errorf("%w: read archive: %w", core.ErrStorage, err)
	}

	archive := core.NewArchive(month, s.now(), s.txs, s.balances())
	stored, err := s.repo.CreateArchive(ctx, archive)
	if err != nil {
		return core.MonthlyArchive{}, false, fmt.Errorf("%w: write archive: %w", core.ErrStorage, err)
	}
	return stored, false, nil
}

// coversStored fails when the month has stored transactions missing from
// its archive. Deleting them would lose entries that were never archived.
func coversStored(ctx context.Context, s *Session, archive core.MonthlyArchive) error {
	live, err := s.repo.ListTransactions(ctx, archive.Month)
	if err != nil {
		return fmt.Errorf("%w: read transactions: %w", core.ErrStorage, err)
	}
	archived := make(map[int64]bool, len(archive.Transactions))
	for _, t := range archive.Transactions {
		archived[t.ID] = true
	}
	missing := 0
	for _, t := range live {
		if !archived[t.ID] {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%w: %s is already archived and %d transactions are not in the archive",
			core.ErrValidation, archive.Month.Title(), missing)
	}
	return nil
}

// rollPayments clones every payment on record into next, whatever its
// month tag or completion state, with completion reset and the due date one
// calendar month later, then deletes the original. A resumed close skips
// payments already tagged next: the interrupted attempt rolled them.
// Callers hold s.mu.
func (s *Session) rollPayments(ctx context.Context, next core.AccountingMonth, resumed bool) (int, error) {
	all, err := s.repo.ListAllPayments(ctx)
	if err != nil {
		return 0, err
	}
	rolled := 0
	for _, p := range all {
		if resumed && p.Month == next {
			continue
		}
		clone := rollover(p, next)
		if _, err := s.repo.CreatePayment(ctx, clone); err != nil {
			return rolled, fmt.Errorf("payment %d: %w", p.ID, err)
		}
		if err := s.repo.DeletePayment(ctx, p.ID); err != nil {
			return rolled, fmt.Errorf("payment %d: %w", p.ID, err)
		}
		rolled++
	}
	return rolled, nil
}

func rollover(p core.ScheduledPayment, next core.AccountingMonth) core.ScheduledPayment {
	clone := p.CarryForward(next)
	if p.DueDate != nil {
		due := core.AddMonthsClamped(*p.DueDate, 1)
		clone.DueDate = &due
	}
	return clone
}

// Navigate points the session at month without closing anything and
// reloads its lists.
func (c *MonthCloser) Navigate(ctx context.Context, month core.AccountingMonth) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("navigate_month")
	if err := month.Validate(); err != nil {
		return m.reject(ctx, fmt.Errorf("navigate: %w", err))
	}
	if month == s.month {
		m.finish(ctx, MutationCommitted, nil)
		return nil
	}
	previous := s.month
	err := m.apply(ctx,
		func() { s.month = month },
		func(ctx context.Context) error {
			if err := s.repo.SetActiveMonth(ctx, month); err != nil {
				s.month = previous
				return err
			}
			return nil
		})
	if err != nil {
		return err
	}
	if err := s.reload(ctx); err != nil {
		return err
	}
	m.commit(ctx, "Mes activo: "+month.Title(), "previous", previous.String())
	return nil
}
