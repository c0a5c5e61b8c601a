package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/storage/memory"
)

func seedPayment(t *testing.T, store *memory.Store, p core.ScheduledPayment) core.ScheduledPayment {
	t.Helper()
	stored, err := store.CreatePayment(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	return stored
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestCompletePastMonthPaymentRegenerates(t *testing.T) {
	store := memory.New()
	rent := seedPayment(t, store, core.ScheduledPayment{
		Description: "Arriendo", Amount: core.Pesos(40000), Category: "Arriendo",
		DueDate: date(2025, time.August, 10), Month: august,
	})
	tr, _ := newTestTracker(t, store)
	fund(t, tr, core.AccountCash, 100000)
	ctx := context.Background()

	done, err := tr.Payments.Complete(ctx, rent.ID, core.AccountCash, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil || done.PaidAmount == nil || *done.PaidAmount != rent.Amount || done.Target != core.AccountCash {
		t.Fatalf("original not completed: %+v", done)
	}

	tx := tr.Session.Snapshot().Transactions[0]
	if tx.Kind != core.KindExpense || tx.Month != september || tx.Amount != rent.Amount ||
		tx.Description != "Pago completado: Arriendo" || tx.Category != "Arriendo" {
		t.Fatalf("unexpected expense %+v", tx)
	}
	if got := tr.Ledger.Balances().Get(core.AccountCash); got != core.Pesos(60000) {
		t.Fatalf("cash = %s, want 60000", got)
	}

	var fresh []core.ScheduledPayment
	for _, p := range tr.Payments.List() {
		if !p.Completed {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) != 1 {
		t.Fatalf("expected exactly one regenerated payment, got %+v", fresh)
	}
	next := fresh[0]
	if next.Month != september || next.ID == 0 || next.ID == rent.ID || next.Target != core.AccountNone {
		t.Fatalf("unexpected regenerated payment %+v", next)
	}
	if next.DueDate == nil || !next.DueDate.Equal(*date(2025, time.September, 10)) {
		t.Fatalf("regenerated due date = %v, want 2025-09-10", next.DueDate)
	}

	all, _ := store.ListAllPayments(ctx)
	if len(all) != 2 {
		t.Fatalf("storage holds %d payments, want 2", len(all))
	}
}

func TestCompleteCurrentMonthPayment(t *testing.T) {
	store := memory.New()
	tr, _ := newTestTracker(t, store)
	fund(t, tr, core.AccountNequi, 50000)
	ctx := context.Background()

	p, err := tr.Payments.Schedule(ctx, "Internet", core.Pesos(9000), "Servicios públicos", core.AccountNone, date(2025, time.September, 20))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	paid := core.Pesos(8500)
	done, err := tr.Payments.Complete(ctx, p.ID, core.AccountNequi, &paid)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if *done.PaidAmount != paid {
		t.Fatalf("paid amount = %s, want %s", *done.PaidAmount, paid)
	}
	if got := len(tr.Payments.List()); got != 1 {
		t.Fatalf("same-month completion regenerated a payment: %d listed", got)
	}
	if got := tr.Ledger.Balances().Get(core.AccountNequi); got != core.Pesos(41500) {
		t.Fatalf("nequi = %s, want 41500", got)
	}
	sum := tr.Payments.Summary(clockAt)
	if sum.Paid != paid || sum.PaidCount != 1 || !sum.Pending.IsZero() {
		t.Fatalf("unexpected summary %+v", sum)
	}

	if _, err := tr.Payments.Complete(ctx, p.ID, core.AccountNequi, nil); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("second completion: expected ErrValidation, got %v", err)
	}
}

func TestCompleteRejections(t *testing.T) {
	store := memory.New()
	p := seedPayment(t, store, core.ScheduledPayment{Description: "Luz", Amount: core.Pesos(500), Category: "Servicios públicos", Month: september})
	tr, _ := newTestTracker(t, store)
	ctx := context.Background()
	zero := core.Money{}

	cases := []struct {
		name   string
		id     int64
		target core.Account
		amount *core.Money
		want   error
	}{
		{"unknown payment", p.ID + 50, core.AccountCash, nil, core.ErrNotFound},
		{"marker target", p.ID, core.AccountOwedToMe, nil, core.ErrValidation},
		{"zero amount", p.ID, core.AccountCash, &zero, core.ErrValidation},
		{"empty account", p.ID, core.AccountCash, nil, core.ErrInsufficientFunds},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := tr.Payments.Complete(ctx, c.id, c.target, c.amount); !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
	if tr.Payments.List()[0].Completed || store.Calls("UpdatePayment") != 0 {
		t.Fatal("rejected completion changed the payment")
	}
}

func TestEditAndRemovePayment(t *testing.T) {
	store := memory.New()
	tr, _ := newTestTracker(t, store)
	ctx := context.Background()

	p, err := tr.Payments.Schedule(ctx, "Agua", core.Pesos(300), "Servicios públicos", core.AccountNone, nil)
	if err != nil {
		t.Fatal(err)
	}
	edited, err := tr.Payments.Edit(ctx, p.ID, PaymentEdit{Description: "Agua y aseo", Amount: core.Pesos(350), DueDate: date(2025, time.September, 5)})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Description != "Agua y aseo" || edited.Amount != core.Pesos(350) || edited.Category != "Servicios públicos" || edited.DueDate == nil {
		t.Fatalf("unexpected edit result %+v", edited)
	}
	if _, err := tr.Payments.Edit(ctx, p.ID, PaymentEdit{Description: "", Amount: core.Pesos(1)}); !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if got := tr.Payments.List()[0].Description; got != "Agua y aseo" {
		t.Fatalf("rejected edit leaked: %q", got)
	}

	if err := tr.Payments.Remove(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if len(tr.Payments.List()) != 0 {
		t.Fatal("payment still listed after remove")
	}
	if err := tr.Payments.Remove(ctx, p.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleValidation(t *testing.T) {
	tr, _ := newTestTracker(t, memory.New())
	ctx := context.Background()
	cases := []struct {
		name     string
		desc     string
		pesos    int64
		category string
		target   core.Account
		want     error
	}{
		{"no description", "", 10, "Arriendo", core.AccountNone, core.ErrEmptyDescription},
		{"no amount", "x", 0, "Arriendo", core.AccountNone, core.ErrInvalidAmount},
		{"no category", "x", 10, "", core.AccountNone, core.ErrEmptyCategory},
		{"marker target", "x", 10, "Arriendo", core.AccountInTransit, core.ErrValidation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := tr.Payments.Schedule(ctx, c.desc, core.Pesos(c.pesos), c.category, c.target, nil); !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
}

func TestGroupingOverdueAndSummary(t *testing.T) {
	store := memory.New()
	seedPayment(t, store, core.ScheduledPayment{Description: "Gas", Amount: core.Pesos(100), Category: "Servicios públicos", DueDate: date(2025, time.September, 3), Month: september})
	seedPayment(t, store, core.ScheduledPayment{Description: "Suelto", Amount: core.Pesos(50), Month: september})
	seedPayment(t, store, core.ScheduledPayment{Description: "Luz", Amount: core.Pesos(200), Category: "Servicios públicos", DueDate: date(2025, time.September, 15), Month: september})
	seedPayment(t, store, core.ScheduledPayment{Description: "Arriendo", Amount: core.Pesos(900), Category: "Arriendo", DueDate: date(2025, time.September, 28), Month: september})
	tr, _ := newTestTracker(t, store)

	list := tr.Payments.List()
	if list[0].Description != "Gas" || list[len(list)-1].Description != "Suelto" {
		t.Fatalf("payments not ordered by due date, undated last: %+v", list)
	}

	groups := tr.Payments.GroupByCategory()
	want := []string{"Servicios públicos", "Arriendo", core.CategoryUncategorized}
	if len(groups) != len(want) {
		t.Fatalf("got %d groups, want %d", len(groups), len(want))
	}
	for i, g := range groups {
		if g.Category != want[i] {
			t.Fatalf("group %d = %q, want %q", i, g.Category, want[i])
		}
	}
	if len(groups[0].Payments) != 2 {
		t.Fatalf("expected two utility payments, got %d", len(groups[0].Payments))
	}

	overdue := tr.Payments.Overdue(clockAt)
	if len(overdue) != 1 || overdue[0].Description != "Gas" {
		t.Fatalf("unexpected overdue list %+v", overdue)
	}
	sum := tr.Payments.Summary(clockAt)
	if sum.Pending != core.Pesos(1250) || sum.PendingCount != 4 || sum.OverdueCount != 1 || !sum.Paid.IsZero() {
		t.Fatalf("unexpected summary %+v", sum)
	}
}
