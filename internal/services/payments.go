package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gastos/internal/core"
)

// Payments tracks scheduled obligations and their completion.
type Payments struct {
	s *Session
}

func NewPayments(s *Session) *Payments {
	return &Payments{s: s}
}

// CategoryGroup is one display bucket of payments.
type CategoryGroup struct {
	Category string                  `json:"category"`
	Payments []core.ScheduledPayment `json:"payments"`
}

// PaymentSummary aggregates the listed payments.
type PaymentSummary struct {
	Pending      core.Money `json:"pending"`
	Paid         core.Money `json:"paid"`
	PendingCount int        `json:"pending_count"`
	PaidCount    int        `json:"paid_count"`
	OverdueCount int        `json:"overdue_count"`
}

// PaymentEdit carries the editable fields. Nil pointers leave the field as
// is; an empty Category keeps the current one.
type PaymentEdit struct {
	Description string
	Amount      core.Money
	DueDate     *time.Time
	ClearDue    bool
	Category    string
}

// Schedule creates an uncompleted payment in the active month.
func (p *Payments) Schedule(ctx context.Context, description string, amount core.Money, category string, target core.Account, due *time.Time) (core.ScheduledPayment, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("schedule_payment")
	if err := s.requireOpen(); err != nil {
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("schedule payment: %w", err))
	}
	payment := core.ScheduledPayment{
		Description: strings.TrimSpace(description),
		Amount:      amount,
		Category:    strings.TrimSpace(category),
		Target:      target,
		DueDate:     due,
		Month:       s.month,
	}
	if err := payment.Validate(); err != nil {
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("schedule payment: %w", err))
	}

	stored, err := s.insertPayment(ctx, m, payment)
	if err != nil {
		return core.ScheduledPayment{}, err
	}
	m.commit(ctx, "Pago programado: "+stored.Description, "payment_id", stored.ID, "amount_cents", amount.Cents)
	return stored, nil
}

// insertPayment adds a payment to memory and storage. Callers hold s.mu.
func (s *Session) insertPayment(ctx context.Context, m *mutation, payment core.ScheduledPayment) (core.ScheduledPayment, error) {
	var stored core.ScheduledPayment
	err := m.apply(ctx,
		func() { s.payments = append(s.payments, payment) },
		func(ctx context.Context) error {
			var err error
			stored, err = s.repo.CreatePayment(ctx, payment)
			if err != nil {
				return err
			}
			s.payments[len(s.payments)-1] = stored
			core.SortByDueDate(s.payments)
			return nil
		})
	return stored, err
}

// Complete pays a payment from target. amount defaults to the scheduled
// amount. A payment from an earlier month is regenerated for the active
// month with its due date moved into it.
func (p *Payments) Complete(ctx context.Context, paymentID int64, target core.Account, amount *core.Money) (core.ScheduledPayment, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("complete_payment")
	idx := s.paymentIndex(paymentID)
	if idx < 0 {
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("complete payment %d: %w", paymentID, core.ErrNotFound))
	}
	if err := s.requireOpen(); err != nil {
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("complete payment %d: %w", paymentID, err))
	}
	payment := s.payments[idx]
	paid := payment.Amount
	if amount != nil {
		paid = *amount
	}
	switch {
	case payment.Completed:
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("complete payment %d: %w: already completed", paymentID, core.ErrValidation))
	case !target.IsReal():
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("complete payment %d: %w: %s cannot pay", paymentID, core.ErrValidation, target))
	case paid.Validate() != nil:
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("complete payment %d: %w", paymentID, core.ErrInvalidAmount))
	}
	if err := s.requireFunds(target, paid); err != nil {
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("complete payment %d: %w", paymentID, err))
	}

	now := s.now()
	category := payment.Category
	if strings.TrimSpace(category) == "" {
		category = core.CategoryPendingPayment
	}
	expense := core.Transaction{
		Kind:        core.KindExpense,
		Amount:      paid,
		Description: "Pago completado: " + payment.Description,
		Category:    category,
		Destination: target,
		Timestamp:   now,
		Month:       s.month,
	}
	completed := payment
	completed.Completed = true
	completed.CompletedAt = &now
	completed.PaidAmount = &paid
	completed.Target = target

	var regenerated *core.ScheduledPayment
	if payment.Month.Before(s.month) {
		next := payment.CarryForward(s.month)
		regenerated = &next
	}

	err := m.apply(ctx,
		func() {
			s.txs = append([]core.Transaction{expense}, s.txs...)
			s.payments[idx] = completed
			if regenerated != nil {
				s.payments = append(s.payments, *regenerated)
			}
		},
		func(ctx context.Context) error {
			storedTx, err := s.repo.CreateTransaction(ctx, expense)
			if err != nil {
				return err
			}
			s.txs[0] = storedTx
			if _, err := s.repo.UpdatePayment(ctx, completed); err != nil {
				return err
			}
			if regenerated != nil {
				stored, err := s.repo.CreatePayment(ctx, *regenerated)
				if err != nil {
					return err
				}
				s.payments[len(s.payments)-1] = stored
			}
			core.SortByDueDate(s.payments)
			return nil
		})
	if err != nil {
		return core.ScheduledPayment{}, err
	}
	m.commit(ctx, "Pago completado: "+payment.Description,
		"payment_id", paymentID, "account", target.String(), "amount_cents", paid.Cents,
		"regenerated", regenerated != nil)
	return completed, nil
}

// Edit updates description, amount, due date and category in place.
// Completion state and recorded transactions are untouched.
func (p *Payments) Edit(ctx context.Context, paymentID int64, edit PaymentEdit) (core.ScheduledPayment, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("edit_payment")
	idx := s.paymentIndex(paymentID)
	if idx < 0 {
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("edit payment %d: %w", paymentID, core.ErrNotFound))
	}
	updated := s.payments[idx]
	updated.Description = strings.TrimSpace(edit.Description)
	updated.Amount = edit.Amount
	if edit.DueDate != nil || edit.ClearDue {
		updated.DueDate = edit.DueDate
	}
	if c := strings.TrimSpace(edit.Category); c != "" {
		updated.Category = c
	}
	if err := updated.Validate(); err != nil {
		return core.ScheduledPayment{}, m.reject(ctx, fmt.Errorf("edit payment %d: %w", paymentID, err))
	}

	err := m.apply(ctx,
		func() {
			s.payments[idx] = updated
			core.SortByDueDate(s.payments)
		},
		func(ctx context.Context) error {
			_, err := s.repo.UpdatePayment(ctx, updated)
			return err
		})
	if err != nil {
		return core.ScheduledPayment{}, err
	}
	m.commit(ctx, "Pago actualizado: "+updated.Description, "payment_id", paymentID)
	return updated, nil
}

// Remove deletes a payment unconditionally.
func (p *Payments) Remove(ctx context.Context, paymentID int64) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.begin("remove_payment")
	idx := s.paymentIndex(paymentID)
	if idx < 0 {
		return m.reject(ctx, fmt.Errorf("remove payment %d: %w", paymentID, core.ErrNotFound))
	}
	err := m.apply(ctx,
		func() { s.payments = append(s.payments[:idx:idx], s.payments[idx+1:]...) },
		func(ctx context.Context) error { return s.repo.DeletePayment(ctx, paymentID) })
	if err != nil {
		return err
	}
	m.commit(ctx, "Pago eliminado", "payment_id", paymentID)
	return nil
}

// List returns the tracked payments ordered by due date, undated last.
func (p *Payments) List() []core.ScheduledPayment {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return append([]core.ScheduledPayment(nil), p.s.payments...)
}

// GroupByCategory partitions payments in first-seen category order.
func (p *Payments) GroupByCategory() []CategoryGroup {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return groupByCategory(p.s.payments)
}

func groupByCategory(payments []core.ScheduledPayment) []CategoryGroup {
	var groups []CategoryGroup
	index := map[string]int{}
	for _, payment := range payments {
		key := payment.Group()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, CategoryGroup{Category: key})
		}
		groups[i].Payments = append(groups[i].Payments, payment)
	}
	return groups
}

// Overdue returns uncompleted payments whose due day has passed.
func (p *Payments) Overdue(now time.Time) []core.ScheduledPayment {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return overdue(p.s.payments, now)
}

func overdue(payments []core.ScheduledPayment, now time.Time) []core.ScheduledPayment {
	var out []core.ScheduledPayment
	for _, payment := range payments {
		if payment.IsOverdue(now) {
			out = append(out, payment)
		}
	}
	return out
}

func (p *Payments) Summary(now time.Time) PaymentSummary {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return summarize(p.s.payments, now)
}

func summarize(payments []core.ScheduledPayment, now time.Time) PaymentSummary {
	var sum PaymentSummary
	for _, payment := range payments {
		if payment.Completed {
			sum.Paid = sum.Paid.Add(payment.Settled())
			sum.PaidCount++
			continue
		}
		sum.Pending = sum.Pending.Add(payment.Amount)
		sum.PendingCount++
		if payment.IsOverdue(now) {
			sum.OverdueCount++
		}
	}
	return sum
}

// paymentIndex finds a listed payment by ID. Callers hold s.mu.
func (s *Session) paymentIndex(id int64) int {
	for i, p := range s.payments {
		if p.ID == id {
			return i
		}
	}
	return -1
}
