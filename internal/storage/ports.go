package storage

import (
	"context"
	"time"

	"gastos/internal/core"
)

// Ports consumed by the ledger services. Writes return the stored record
// with its assigned ID. Updates and deletes of unknown IDs wrap core.ErrNotFound.
type (
	TransactionStore interface {
		// ListTransactions returns a month's transactions, newest first.
		ListTransactions(ctx context.Context, month core.AccountingMonth) ([]core.Transaction, error)
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// DeleteTransactions removes every transaction tagged with month.
		DeleteTransactions(ctx context.Context, month core.AccountingMonth) (int64, error)
	}

	LoanStore interface {
		ListActiveLoans(ctx context.Context) ([]core.Loan, error)
		CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error)
		UpdateLoan(ctx context.Context, l core.Loan) (core.Loan, error)
		DeleteLoan(ctx context.Context, id int64) error
	}

	PaymentStore interface {
		// ListPayments returns uncompleted payments plus those completed at or
		// after since, ordered by due date with undated payments last.
		ListPayments(ctx context.Context, since time.Time) ([]core.ScheduledPayment, error)
		// ListAllPayments returns every payment on record.
		ListAllPayments(ctx context.Context) ([]core.ScheduledPayment, error)
		CreatePayment(ctx context.Context, p core.ScheduledPayment) (core.ScheduledPayment, error)
		UpdatePayment(ctx context.Context, p core.ScheduledPayment) (core.ScheduledPayment, error)
		DeletePayment(ctx context.Context, id int64) error
	}

	ArchiveStore interface {
		// ListArchives returns archives, most recent closure first.
		ListArchives(ctx context.Context) ([]core.MonthlyArchive, error)
		GetArchive(ctx context.Context, month core.AccountingMonth) (core.MonthlyArchive, error)
		CreateArchive(ctx context.Context, a core.MonthlyArchive) (core.MonthlyArchive, error)
	}

	// SettingsStore persists the active accounting month pointer.
	SettingsStore interface {
		// ActiveMonth reports ok == false when no month was ever stored.
		ActiveMonth(ctx context.Context) (m core.AccountingMonth, ok bool, err error)
		SetActiveMonth(ctx context.Context, m core.AccountingMonth) error
	}

	Repository interface {
		TransactionStore
		LoanStore
		PaymentStore
		ArchiveStore
		SettingsStore
		Ping(ctx context.Context) error
		Close() error
	}
)
