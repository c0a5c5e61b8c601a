package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gastos/internal/core"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "gastos.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRebind(t *testing.T) {
	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	if got := DialectSQLite.rebind(q); got != q {
		t.Fatalf("sqlite must not rewrite: %q", got)
	}
	if got, want := DialectPostgres.rebind(q), "UPDATE t SET a = $1, b = $2 WHERE id = $3"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSQLiteTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sep := core.NewAccountingMonth(2025, time.September)
	oct := sep.Next()
	base := time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)

	in := []core.Transaction{
		{Kind: core.KindIncome, Amount: core.Pesos(100000), Description: "pay", Category: "Salario", Destination: core.AccountCash, Timestamp: base, Month: sep},
		{Kind: core.KindTransfer, Amount: core.Pesos(5000), Description: "move", Source: core.AccountCash, Destination: core.AccountNequi, Timestamp: base.Add(time.Hour), Month: sep},
		{Kind: core.KindExpense, Amount: core.Pesos(300), Description: "late", Destination: core.AccountNequi, Timestamp: base, Month: oct},
	}
	for _, tr := range in {
		stored, err := repo.CreateTransaction(ctx, tr)
		if err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
		if stored.ID == 0 {
			t.Fatalf("expected ID to be assigned")
		}
	}

	got, err := repo.ListTransactions(ctx, sep)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].Kind != core.KindTransfer || got[0].Source != core.AccountCash || got[0].Destination != core.AccountNequi {
		t.Errorf("expected newest transfer first, got %+v", got[0])
	}
	if got[1].Category != "Salario" || got[1].Source != core.AccountNone || !got[1].Timestamp.Equal(base) {
		t.Errorf("income round trip: %+v", got[1])
	}

	n, err := repo.DeleteTransactions(ctx, sep)
	if err != nil || n != 2 {
		t.Fatalf("DeleteTransactions: n=%d err=%v", n, err)
	}
	if rest, _ := repo.ListTransactions(ctx, oct); len(rest) != 1 {
		t.Fatalf("other months must survive, got %d", len(rest))
	}
}

func TestSQLiteLoans(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	l, err := repo.CreateLoan(ctx, core.Loan{
		Borrower:  "Ana",
		Principal: core.Pesos(50000),
		Pending:   core.Pesos(50000),
		Origin:    core.AccountUndisbursed,
		LoanDate:  time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Active:    true,
	})
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}

	now := time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)
	l.Pending = core.Money{}
	l.Active = false
	l.LastRepayment = &now
	if _, err := repo.UpdateLoan(ctx, l); err != nil {
		t.Fatalf("UpdateLoan failed: %v", err)
	}

	active, err := repo.ListActiveLoans(ctx)
	if err != nil {
		t.Fatalf("ListActiveLoans failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("paid-off loan must not be listed, got %+v", active)
	}

	if err := repo.DeleteLoan(ctx, l.ID); err != nil {
		t.Fatalf("DeleteLoan failed: %v", err)
	}
	if err := repo.DeleteLoan(ctx, l.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.UpdateLoan(ctx, l); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLitePayments(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sep := core.NewAccountingMonth(2025, time.September)
	due := func(d int) *time.Time {
		v := time.Date(2025, 9, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	mk := func(desc string, d *time.Time) core.ScheduledPayment {
		p, err := repo.CreatePayment(ctx, core.ScheduledPayment{
			Description: desc, Amount: core.Pesos(1000), Category: "Otros", DueDate: d, Month: sep,
		})
		if err != nil {
			t.Fatalf("CreatePayment failed: %v", err)
		}
		return p
	}
	undated := mk("undated", nil)
	late := mk("late", due(20))
	early := mk("early", due(5))
	old := mk("old", due(1))

	paid := core.Pesos(900)
	completedAt := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	old.Completed, old.CompletedAt, old.PaidAmount, old.Target = true, &completedAt, &paid, core.AccountNequi
	if _, err := repo.UpdatePayment(ctx, old); err != nil {
		t.Fatalf("UpdatePayment failed: %v", err)
	}

	list, err := repo.ListPayments(ctx, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	want := []int64{early.ID, late.ID, undated.ID}
	if len(list) != len(want) {
		t.Fatalf("expected %d payments, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Fatalf("position %d: got %d, want %d", i, list[i].ID, id)
		}
	}

	all, err := repo.ListAllPayments(ctx)
	if err != nil || len(all) != 4 {
		t.Fatalf("ListAllPayments: %d %v", len(all), err)
	}
	if all[0].ID != old.ID || !all[0].Completed || all[0].PaidAmount.Cents != 90000 || all[0].Target != core.AccountNequi {
		t.Fatalf("completed payment round trip: %+v", all[0])
	}

	if err := repo.DeletePayment(ctx, undated.ID); err != nil {
		t.Fatalf("DeletePayment failed: %v", err)
	}
	if err := repo.DeletePayment(ctx, undated.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteArchivesAndSettings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	aug := core.NewAccountingMonth(2025, time.August)
	sep := aug.Next()

	if _, ok, err := repo.ActiveMonth(ctx); err != nil || ok {
		t.Fatalf("expected no active month, ok=%v err=%v", ok, err)
	}
	for _, m := range []core.AccountingMonth{aug, sep} {
		if err := repo.SetActiveMonth(ctx, m); err != nil {
			t.Fatalf("SetActiveMonth failed: %v", err)
		}
	}
	if m, ok, err := repo.ActiveMonth(ctx); err != nil || !ok || m != sep {
		t.Fatalf("active month: %v %v %v", m, ok, err)
	}

	txs := []core.Transaction{{
		ID: 7, Kind: core.KindIncome, Amount: core.Pesos(100), Description: "x",
		Destination: core.AccountCash, Timestamp: time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC), Month: aug,
	}}
	b := core.Project(txs, []core.Loan{{Pending: core.Pesos(30), Active: true}})
	first := core.NewArchive(aug, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), txs, b)
	if _, err := repo.CreateArchive(ctx, first); err != nil {
		t.Fatalf("CreateArchive failed: %v", err)
	}
	second := core.NewArchive(sep, time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC), nil, core.ZeroBalances())
	if _, err := repo.CreateArchive(ctx, second); err != nil {
		t.Fatalf("CreateArchive failed: %v", err)
	}
	if _, err := repo.CreateArchive(ctx, first); err == nil {
		t.Fatalf("expected duplicate month to fail")
	}

	list, err := repo.ListArchives(ctx)
	if err != nil || len(list) != 2 || list[0].Month != sep {
		t.Fatalf("ListArchives: %+v %v", list, err)
	}

	got, err := repo.GetArchive(ctx, aug)
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if got.Balances != b || len(got.Transactions) != 1 || got.Transactions[0].ID != 7 || got.MonthName != "agosto" {
		t.Fatalf("archive round trip: %+v", got)
	}
	if _, err := repo.GetArchive(ctx, sep.Next()); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
