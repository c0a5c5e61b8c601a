package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	KindIncome   Kind = "ingreso"
	KindExpense  Kind = "gasto"
	KindTransfer Kind = "transferencia"
)

// Fixed category labels the ledger writes on its own behalf.
const (
	CategoryLoans          = "Préstamos"
	CategoryLoanRepayment  = "Reembolso préstamos"
	CategoryPendingPayment = "Pago pendiente"
	CategoryUncategorized  = "Sin categoría"
)

type (
	Kind string

	Transaction struct {
		ID          int64           `json:"id"`
		Kind        Kind            `json:"kind"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category,omitempty"`
		Source      Account         `json:"source,omitempty"`
		Destination Account         `json:"destination,omitempty"`
		Timestamp   time.Time       `json:"timestamp"`
		Month       AccountingMonth `json:"month"`
	}

	Loan struct {
		ID            int64      `json:"id"`
		Borrower      string     `json:"borrower"`
		Principal     Money      `json:"principal"`
		Pending       Money      `json:"pending"`
		Description   string     `json:"description"`
		Origin        Account    `json:"origin"`
		LoanDate      time.Time  `json:"loan_date"`
		LastRepayment *time.Time `json:"last_repayment,omitempty"`
		Active        bool       `json:"active"`
	}

	ScheduledPayment struct {
		ID          int64           `json:"id"`
		Description string          `json:"description"`
		Amount      Money           `json:"amount"`
		Category    string          `json:"category"`
		Target      Account         `json:"target,omitempty"`
		DueDate     *time.Time      `json:"due_date,omitempty"`
		Completed   bool            `json:"completed"`
		CompletedAt *time.Time      `json:"completed_at,omitempty"`
		PaidAmount  *Money          `json:"paid_amount,omitempty"`
		Month       AccountingMonth `json:"month"`
	}

	// MonthlyArchive is the immutable snapshot written when a month closes.
	MonthlyArchive struct {
		ID           int64           `json:"id"`
		Month        AccountingMonth `json:"month"`
		MonthName    string          `json:"month_name"`
		ClosedAt     time.Time       `json:"closed_at"`
		Income       Money           `json:"income"`
		Expense      Money           `json:"expense"`
		Balance      Money           `json:"balance"`
		Balances     Balances        `json:"balances"`
		Transactions []Transaction   `json:"transactions"`
	}
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrStorage           = errors.New("storage failure")

	ErrInvalidMonth     = fmt.Errorf("%w: invalid month", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
	ErrEmptyCategory    = fmt.Errorf("%w: empty category", ErrValidation)
	ErrEmptyBorrower    = fmt.Errorf("%w: empty borrower", ErrValidation)
	ErrInvalidKind      = fmt.Errorf("%w: invalid transaction kind", ErrValidation)
)

const maxDescriptionLen = 200

// IncomeCategories, ExpenseCategories and PaymentCategories are the
// suggested labels offered by the forms. Categories remain free text.
var (
	IncomeCategories = []string{
		"Salario",
		"Venta de cuentas Netflix/Prime/Max",
		CategoryLoanRepayment,
		"Driver",
		"Honorarios Servicios tec",
		"Otros Ingresos",
	}
	ExpenseCategories = []string{
		CategoryLoans,
		"Tarjetas de crédito",
		"Arriendo",
		"Almuerzo",
		"Reparaciones moto",
		"Pago de cuentas Netflix/Prime/Max",
		"Comida",
		"Gasolina",
		"Vivienda",
		"Impuestos",
		"Consumibles moto",
		"Mecato",
		"Ropa",
		"Cadena",
		"Taliana",
		"Servicios publicos",
		"Otros gastos",
	}
	PaymentCategories = []string{
		"Servicios públicos",
		"Arriendo",
		CategoryLoans,
		"Créditos",
		"Vivienda",
		"Tarjetas de crédito",
		"Impuestos",
		"Ahorros",
		"Taliana",
		"Otros",
	}
)

// ParseKind accepts the stored Spanish names and the English aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ingreso", "income":
		return KindIncome, nil
	case "gasto", "expense":
		return KindExpense, nil
	case "transferencia", "transfer":
		return KindTransfer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func validateDescription(d string) error {
	if strings.TrimSpace(d) == "" {
		return ErrEmptyDescription
	}
	if len(d) > maxDescriptionLen {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, maxDescriptionLen)
	}
	return nil
}

// Validate checks the transaction shape: income and expense carry a
// destination only, a transfer carries two distinct accounts.
func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := validateDescription(t.Description); err != nil {
		return err
	}
	if err := t.Month.Validate(); err != nil {
		return err
	}
	switch t.Kind {
	case KindIncome, KindExpense:
		if !t.Destination.IsReal() {
			return fmt.Errorf("%w: %s needs a real account, got %q", ErrValidation, t.Kind, t.Destination)
		}
		if t.Source != AccountNone {
			return fmt.Errorf("%w: %s must not carry a source account", ErrValidation, t.Kind)
		}
	case KindTransfer:
		if !t.Source.Valid() || !t.Destination.Valid() {
			return fmt.Errorf("%w: transfer needs source and destination", ErrValidation)
		}
		if t.Source == t.Destination {
			return fmt.Errorf("%w: transfer source and destination are both %q", ErrValidation, t.Source)
		}
		if !t.Source.IsReal() && t.Source != AccountInTransit {
			return fmt.Errorf("%w: invalid transfer source %q", ErrValidation, t.Source)
		}
		if !t.Destination.IsReal() && t.Destination != AccountInTransit {
			return fmt.Errorf("%w: invalid transfer destination %q", ErrValidation, t.Destination)
		}
	default:
		return ErrInvalidKind
	}
	return nil
}

// IsLoanLeg reports whether the transfer routes through the in-transit marker.
func (t Transaction) IsLoanLeg() bool {
	return t.Kind == KindTransfer && (t.Source == AccountInTransit || t.Destination == AccountInTransit)
}

func (l Loan) Validate() error {
	if strings.TrimSpace(l.Borrower) == "" {
		return ErrEmptyBorrower
	}
	if err := l.Principal.Validate(); err != nil {
		return err
	}
	if l.Pending.Cents < 0 || l.Pending.GreaterThan(l.Principal) {
		return fmt.Errorf("%w: pending %s outside [0, %s]", ErrValidation, l.Pending, l.Principal)
	}
	if !l.Origin.IsLoanOrigin() {
		return fmt.Errorf("%w: invalid loan origin %q", ErrValidation, l.Origin)
	}
	if l.Active != (l.Pending.Cents > 0) {
		return fmt.Errorf("%w: active flag disagrees with pending %s", ErrValidation, l.Pending)
	}
	return nil
}

// Repaid returns the principal already paid back.
func (l Loan) Repaid() Money {
	return l.Principal.Sub(l.Pending)
}

func (p ScheduledPayment) Validate() error {
	if err := validateDescription(p.Description); err != nil {
		return err
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.Category) == "" {
		return ErrEmptyCategory
	}
	if p.Target != AccountNone && !p.Target.IsReal() {
		return fmt.Errorf("%w: invalid payment target %q", ErrValidation, p.Target)
	}
	if p.Completed && (p.CompletedAt == nil || p.PaidAmount == nil) {
		return fmt.Errorf("%w: completed payment without completion date or paid amount", ErrValidation)
	}
	return p.Month.Validate()
}

// Settled returns the amount actually paid, or the scheduled amount when
// the payment has no recorded paid amount.
func (p ScheduledPayment) Settled() Money {
	if p.PaidAmount != nil {
		return *p.PaidAmount
	}
	return p.Amount
}

// Group returns the display bucket for the payment.
func (p ScheduledPayment) Group() string {
	if strings.TrimSpace(p.Category) == "" {
		return CategoryUncategorized
	}
	return p.Category
}

// IsOverdue reports whether an uncompleted payment's due day is before the
// calendar day of now.
func (p ScheduledPayment) IsOverdue(now time.Time) bool {
	if p.Completed || p.DueDate == nil {
		return false
	}
	dy, dm, dd := p.DueDate.In(now.Location()).Date()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return time.Date(dy, dm, dd, 0, 0, 0, 0, now.Location()).Before(today)
}

// CarryForward returns an uncompleted copy of the payment tagged with month.
// The due date, when present, moves by the month delta keeping its day.
func (p ScheduledPayment) CarryForward(month AccountingMonth) ScheduledPayment {
	next := ScheduledPayment{
		Description: p.Description,
		Amount:      p.Amount,
		Category:    p.Category,
		Month:       month,
	}
	if p.DueDate != nil {
		due := AddMonthsClamped(*p.DueDate, p.Month.MonthsUntil(month))
		next.DueDate = &due
	}
	return next
}

// NewArchive snapshots a month's ledger.
func NewArchive(month AccountingMonth, closedAt time.Time, txs []Transaction, balances Balances) MonthlyArchive {
	totals := ComputeTotals(txs, balances)
	copied := make([]Transaction, len(txs))
	copy(copied, txs)
	return MonthlyArchive{
		Month:        month,
		MonthName:    month.Name(),
		ClosedAt:     closedAt,
		Income:       totals.Income,
		Expense:      totals.Expense,
		Balance:      totals.Balance,
		Balances:     balances,
		Transactions: copied,
	}
}

// SortNewestFirst orders transactions by timestamp descending, breaking
// ties by ID descending.
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.After(txs[j].Timestamp)
		}
		return txs[i].ID > txs[j].ID
	})
}

// SortByDueDate orders payments by due date ascending. Undated payments go
// last, in ID order.
func SortByDueDate(ps []ScheduledPayment) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i].DueDate, ps[j].DueDate
		switch {
		case a == nil && b == nil:
			return ps[i].ID < ps[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return ps[i].ID < ps[j].ID
	})
}
