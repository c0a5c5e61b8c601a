package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gastos/internal/core"
	"gastos/internal/storage/memory"
)

func TestDisburseAndRepay(t *testing.T) {
	tr, _ := newTestTracker(t, memory.New())
	ctx := context.Background()
	fund(t, tr, core.AccountNequi, 80000)

	loan, err := tr.Loans.Disburse(ctx, core.AccountNequi, core.Pesos(50000), "Ana", "arriendo")
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	b := tr.Ledger.Balances()
	if b.Get(core.AccountNequi) != core.Pesos(30000) || b.Get(core.AccountOwedToMe) != core.Pesos(50000) {
		t.Fatalf("after disburse: nequi %s, owed %s", b.Get(core.AccountNequi), b.Get(core.AccountOwedToMe))
	}
	active := tr.Loans.Active()
	if len(active) != 1 || active[0].Pending != core.Pesos(50000) || active[0].ID != loan.ID {
		t.Fatalf("unexpected active loans %+v", active)
	}
	out := tr.Session.Snapshot().Transactions[0]
	if out.Source != core.AccountNequi || out.Destination != core.AccountInTransit ||
		out.Category != core.CategoryLoans || out.Description != "Préstamo a Ana - arriendo" {
		t.Fatalf("unexpected disbursement transaction %+v", out)
	}

	updated, err := tr.Loans.Repay(ctx, loan.ID, core.Pesos(20000), core.AccountCash, core.Pesos(50000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	b = tr.Ledger.Balances()
	if b.Get(core.AccountCash) != core.Pesos(20000) || updated.Pending != core.Pesos(30000) || tr.Loans.OwedToMe() != core.Pesos(30000) {
		t.Fatalf("after repay: cash %s, pending %s, owed %s", b.Get(core.AccountCash), updated.Pending, tr.Loans.OwedToMe())
	}
	if updated.LastRepayment == nil || !updated.LastRepayment.Equal(clockAt) {
		t.Fatalf("last repayment not stamped: %+v", updated)
	}
	in := tr.Session.Snapshot().Transactions[0]
	if in.Source != core.AccountInTransit || in.Destination != core.AccountCash || in.Category != core.CategoryLoanRepayment {
		t.Fatalf("unexpected repayment transaction %+v", in)
	}
	if !strings.Contains(in.Description, "Ana") || !strings.Contains(in.Description, "pendiente") {
		t.Fatalf("unexpected repayment description %q", in.Description)
	}
}

func TestRepayUntilPaidOff(t *testing.T) {
	tr, _ := newTestTracker(t, memory.New())
	ctx := context.Background()
	fund(t, tr, core.AccountBancoDeBogota, 10000)
	loan, err := tr.Loans.Disburse(ctx, core.AccountBancoDeBogota, core.Pesos(10000), "Luis", "")
	if err != nil {
		t.Fatal(err)
	}

	pending := loan.Pending
	for _, pesos := range []int64{2500, 2500, 4000, 1000} {
		updated, err := tr.Loans.Repay(ctx, loan.ID, core.Pesos(pesos), core.AccountBancoDeBogota, pending)
		if err != nil {
			t.Fatalf("repay %d: %v", pesos, err)
		}
		if updated.Pending.GreaterThan(pending) {
			t.Fatalf("pending grew from %s to %s", pending, updated.Pending)
		}
		pending = updated.Pending
		if got := tr.Loans.OwedToMe(); got != pending {
			t.Fatalf("owed-to-me %s, want %s", got, pending)
		}
	}
	if !pending.IsZero() {
		t.Fatalf("pending = %s, want 0", pending)
	}
	if len(tr.Loans.Active()) != 0 {
		t.Fatal("paid-off loan still listed as active")
	}
	if d := tr.Session.Snapshot().Transactions[0].Description; !strings.Contains(d, "completamente pagado") {
		t.Fatalf("final repayment description %q", d)
	}
	if got := tr.Ledger.Balances().Get(core.AccountBancoDeBogota); got != core.Pesos(10000) {
		t.Fatalf("bank balance %s, want 10000", got)
	}

	if _, err := tr.Loans.Repay(ctx, loan.ID, core.Pesos(1), core.AccountCash, core.Money{}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("repaying a closed loan: expected ErrNotFound, got %v", err)
	}
}

func TestRepayRejections(t *testing.T) {
	tr, _ := newTestTracker(t, memory.New())
	ctx := context.Background()
	loan, err := tr.Loans.Disburse(ctx, core.AccountUndisbursed, core.Pesos(1000), "Marta", "")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		id      int64
		pesos   int64
		target  core.Account
		pending int64
		want    error
	}{
		{"unknown loan", loan.ID + 99, 10, core.AccountCash, 1000, core.ErrNotFound},
		{"zero amount", loan.ID, 0, core.AccountCash, 1000, core.ErrValidation},
		{"marker target", loan.ID, 10, core.AccountInTransit, 1000, core.ErrValidation},
		{"stale pending", loan.ID, 10, core.AccountCash, 900, core.ErrValidation},
		{"over pending", loan.ID, 1001, core.AccountCash, 1000, core.ErrInsufficientFunds},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := tr.Loans.Repay(ctx, c.id, core.Pesos(c.pesos), c.target, core.Pesos(c.pending))
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
			if tr.Loans.OwedToMe() != core.Pesos(1000) {
				t.Fatal("rejected repayment changed owed-to-me")
			}
		})
	}
}

func TestDisburseRules(t *testing.T) {
	store := memory.New()
	tr, _ := newTestTracker(t, store)
	ctx := context.Background()

	if _, err := tr.Loans.Disburse(ctx, core.AccountCash, core.Pesos(1), "Ana", ""); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := tr.Loans.Disburse(ctx, core.AccountInTransit, core.Pesos(1), "Ana", ""); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation for in-transit origin, got %v", err)
	}
	if _, err := tr.Loans.Disburse(ctx, core.AccountCash, core.Pesos(1), " ", ""); !errors.Is(err, core.ErrEmptyBorrower) {
		t.Fatalf("expected ErrEmptyBorrower, got %v", err)
	}

	if _, err := tr.Loans.Disburse(ctx, core.AccountUndisbursed, core.Pesos(700), "Ana", "promesa"); err != nil {
		t.Fatalf("undisbursed loan: %v", err)
	}
	if store.Calls("CreateTransaction") != 0 || len(tr.Session.Snapshot().Transactions) != 0 {
		t.Fatal("undisbursed loan booked a transaction")
	}
	if tr.Loans.OwedToMe() != core.Pesos(700) || !tr.Ledger.Balances().Liquidity().IsZero() {
		t.Fatal("undisbursed loan should raise owed-to-me only")
	}
}

func TestOwedToMeTracksActiveLoans(t *testing.T) {
	tr, _ := newTestTracker(t, memory.New())
	ctx := context.Background()
	fund(t, tr, core.AccountDaviplata, 100000)

	a, _ := tr.Loans.Disburse(ctx, core.AccountDaviplata, core.Pesos(30000), "Ana", "")
	b, _ := tr.Loans.Disburse(ctx, core.AccountDaviplata, core.Pesos(20000), "Luis", "")
	c, _ := tr.Loans.Disburse(ctx, core.AccountUndisbursed, core.Pesos(5000), "Ana", "")
	if _, err := tr.Loans.Repay(ctx, a.ID, core.Pesos(10000), core.AccountCash, a.Pending); err != nil {
		t.Fatal(err)
	}
	if err := tr.Loans.Remove(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	check := func() {
		t.Helper()
		var sum core.Money
		for _, l := range tr.Loans.Active() {
			sum = sum.Add(l.Pending)
		}
		if tr.Loans.OwedToMe() != sum || tr.Ledger.Balances().Get(core.AccountOwedToMe) != sum {
			t.Fatalf("owed-to-me %s, sum of pending %s", tr.Loans.OwedToMe(), sum)
		}
	}
	check()
	if tr.Loans.OwedToMe() != core.Pesos(25000) {
		t.Fatalf("owed-to-me %s, want 25000", tr.Loans.OwedToMe())
	}

	groups := tr.Loans.GroupByBorrower()
	if len(groups) != 1 || groups[0].Borrower != "Ana" || len(groups[0].Loans) != 2 || groups[0].Pending != core.Pesos(25000) ||
		groups[0].Repaid != core.Pesos(10000) {
		t.Fatalf("unexpected groups %+v", groups)
	}

	if err := tr.Loans.Remove(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	check()
	if err := tr.Loans.Remove(ctx, c.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestRepayStorageFailureReverts(t *testing.T) {
	store := memory.New()
	tr, _ := newTestTracker(t, store)
	ctx := context.Background()
	loan, err := tr.Loans.Disburse(ctx, core.AccountUndisbursed, core.Pesos(100), "Ana", "")
	if err != nil {
		t.Fatal(err)
	}

	store.FailOn("CreateTransaction", errDisk)
	if _, err := tr.Loans.Repay(ctx, loan.ID, core.Pesos(40), core.AccountCash, core.Pesos(100)); !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if store.Calls("UpdateLoan") != 0 {
		t.Fatal("loan was updated although the repayment transfer was never stored")
	}
	if got := tr.Loans.Active()[0].Pending; got != core.Pesos(100) {
		t.Fatalf("pending after failed repayment = %s, want 100", got)
	}
	if !tr.Ledger.Balances().Get(core.AccountCash).IsZero() || tr.Loans.OwedToMe() != core.Pesos(100) {
		t.Fatal("failed repayment moved money")
	}

	// A failed loan update after the transfer was stored leaves the
	// money credited and the loan untouched; nothing disappears.
	store.FailOn("CreateTransaction", nil)
	store.FailOn("UpdateLoan", errDisk)
	if _, err := tr.Loans.Repay(ctx, loan.ID, core.Pesos(40), core.AccountCash, core.Pesos(100)); !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if got := tr.Ledger.Balances().Get(core.AccountCash); got != core.Pesos(40) {
		t.Fatalf("cash = %s, want 40 (storage view)", got)
	}
	if got := tr.Loans.Active()[0].Pending; got != core.Pesos(100) {
		t.Fatalf("pending = %s, want 100 (storage view)", got)
	}
}
