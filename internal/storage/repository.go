package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gastos/internal/core"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour and database/sql driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const activeMonthKey = "active_month"

func (d Dialect) String() string { return string(d) }

// DriverName returns the registered database/sql driver for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d Dialect) rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// SQLRepository implements Repository over database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

var _ Repository = (*SQLRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open(DialectSQLite.DriverName(), dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serialises writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectSQLite, dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: DialectSQLite}, nil
}

func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	db, err := sql.Open(DialectPostgres.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectPostgres, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: DialectPostgres}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.dialect.rebind(q), args...)
}

func (r *SQLRepository) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, r.dialect.rebind(q), args...)
}

func (r *SQLRepository) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.dialect.rebind(q), args...)
}

// insert runs an INSERT ... RETURNING id and returns the new ID.
func (r *SQLRepository) insert(ctx context.Context, q string, args ...any) (int64, error) {
	var id int64
	if err := r.queryRow(ctx, q+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// mustAffect maps an UPDATE or DELETE that touched no row to ErrNotFound.
func mustAffect(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// Transactions

const transactionColumns = `id, kind, amount_cents, description, category,
	source_account, destination_account, occurred_at, month`

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t           core.Transaction
		kind, month string
		src, dst    sql.NullString
		amount, ms  int64
	)
	if err := s.Scan(&t.ID, &kind, &amount, &t.Description, &t.Category, &src, &dst, &ms, &month); err != nil {
		return t, err
	}
	var err error
	if t.Kind, err = core.ParseKind(kind); err != nil {
		return t, err
	}
	if t.Source, err = accountFromNull(src); err != nil {
		return t, err
	}
	if t.Destination, err = accountFromNull(dst); err != nil {
		return t, err
	}
	if t.Month, err = core.ParseAccountingMonth(month); err != nil {
		return t, err
	}
	t.Amount = core.Money{Cents: amount}
	t.Timestamp = fromMillis(ms)
	return t, nil
}

func (r *SQLRepository) ListTransactions(ctx context.Context, month core.AccountingMonth) ([]core.Transaction, error) {
	rows, err := r.query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE month = ? ORDER BY occurred_at DESC, id DESC",
		month.String())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	id, err := r.insert(ctx,
		`INSERT INTO transactions (kind, amount_cents, description, category, source_account, destination_account, occurred_at, month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.Kind), t.Amount.Cents, t.Description, t.Category,
		nullAccount(t.Source), nullAccount(t.Destination), toMillis(t.Timestamp), t.Month.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	t.ID = id
	t.Timestamp = fromMillis(toMillis(t.Timestamp))

	slog.DebugContext(ctx, "Transaction stored",
		"id", t.ID,
		"kind", t.Kind,
		"amount_cents", t.Amount.Cents,
		"month", t.Month.String())

	return t, nil
}

func (r *SQLRepository) DeleteTransactions(ctx context.Context, month core.AccountingMonth) (int64, error) {
	res, err := r.exec(ctx, "DELETE FROM transactions WHERE month = ?", month.String())
	if err != nil {
		return 0, fmt.Errorf("delete transactions for %s: %w", month, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete transactions for %s: %w", month, err)
	}
	return n, nil
}

// Loans

const loanColumns = `id, borrower, principal_cents, pending_cents, description,
	origin_account, loan_date, last_repayment, active`

func scanLoan(s scanner) (core.Loan, error) {
	var (
		l                  core.Loan
		origin             string
		principal, pending int64
		loanDate           int64
		lastRepayment      sql.NullInt64
	)
	if err := s.Scan(&l.ID, &l.Borrower, &principal, &pending, &l.Description, &origin, &loanDate, &lastRepayment, &l.Active); err != nil {
		return l, err
	}
	var err error
	if l.Origin, err = core.ParseAccount(origin); err != nil {
		return l, err
	}
	l.Principal = core.Money{Cents: principal}
	l.Pending = core.Money{Cents: pending}
	l.LoanDate = fromMillis(loanDate)
	l.LastRepayment = timeFromNull(lastRepayment)
	return l, nil
}

func (r *SQLRepository) ListActiveLoans(ctx context.Context) ([]core.Loan, error) {
	rows, err := r.query(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE active = ? ORDER BY loan_date DESC, id DESC", true)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var out []core.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error) {
	id, err := r.insert(ctx,
		`INSERT INTO loans (borrower, principal_cents, pending_cents, description, origin_account, loan_date, last_repayment, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Borrower, l.Principal.Cents, l.Pending.Cents, l.Description, l.Origin.String(),
		toMillis(l.LoanDate), nullTime(l.LastRepayment), l.Active)
	if err != nil {
		return core.Loan{}, fmt.Errorf("create loan: %w", err)
	}
	l.ID = id
	l.LoanDate = fromMillis(toMillis(l.LoanDate))
	return l, nil
}

func (r *SQLRepository) UpdateLoan(ctx context.Context, l core.Loan) (core.Loan, error) {
	res, err := r.exec(ctx,
		`UPDATE loans SET borrower = ?, principal_cents = ?, pending_cents = ?, description = ?,
		origin_account = ?, loan_date = ?, last_repayment = ?, active = ? WHERE id = ?`,
		l.Borrower, l.Principal.Cents, l.Pending.Cents, l.Description, l.Origin.String(),
		toMillis(l.LoanDate), nullTime(l.LastRepayment), l.Active, l.ID)
	if err != nil {
		return core.Loan{}, fmt.Errorf("update loan %d: %w", l.ID, err)
	}
	if err := mustAffect(res, "loan", l.ID); err != nil {
		return core.Loan{}, err
	}
	return l, nil
}

func (r *SQLRepository) DeleteLoan(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, "DELETE FROM loans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete loan %d: %w", id, err)
	}
	return mustAffect(res, "loan", id)
}

// Scheduled payments

const paymentColumns = `id, description, amount_cents, category, target_account,
	due_date, completed, completed_at, paid_cents, month`

func scanPayment(s scanner) (core.ScheduledPayment, error) {
	var (
		p                      core.ScheduledPayment
		amount                 int64
		target                 sql.NullString
		due, completedAt, paid sql.NullInt64
		month                  string
	)
	if err := s.Scan(&p.ID, &p.Description, &amount, &p.Category, &target, &due, &p.Completed, &completedAt, &paid, &month); err != nil {
		return p, err
	}
	var err error
	if p.Target, err = accountFromNull(target); err != nil {
		return p, err
	}
	if p.Month, err = core.ParseAccountingMonth(month); err != nil {
		return p, err
	}
	p.Amount = core.Money{Cents: amount}
	p.DueDate = timeFromNull(due)
	p.CompletedAt = timeFromNull(completedAt)
	if paid.Valid {
		p.PaidAmount = &core.Money{Cents: paid.Int64}
	}
	return p, nil
}

func (r *SQLRepository) listPayments(ctx context.Context, where string, args ...any) ([]core.ScheduledPayment, error) {
	rows, err := r.query(ctx, "SELECT "+paymentColumns+" FROM scheduled_payments"+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []core.ScheduledPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	core.SortByDueDate(out)
	return out, nil
}

func (r *SQLRepository) ListPayments(ctx context.Context, since time.Time) ([]core.ScheduledPayment, error) {
	return r.listPayments(ctx, " WHERE completed = ? OR completed_at >= ?", false, toMillis(since))
}

func (r *SQLRepository) ListAllPayments(ctx context.Context) ([]core.ScheduledPayment, error) {
	return r.listPayments(ctx, "")
}

func paymentArgs(p core.ScheduledPayment) []any {
	var paid any
	if p.PaidAmount != nil {
		paid = p.PaidAmount.Cents
	}
	return []any{
		p.Description, p.Amount.Cents, p.Category, nullAccount(p.Target),
		nullTime(p.DueDate), p.Completed, nullTime(p.CompletedAt), paid, p.Month.String(),
	}
}

func (r *SQLRepository) CreatePayment(ctx context.Context, p core.ScheduledPayment) (core.ScheduledPayment, error) {
	id, err := r.insert(ctx,
		`INSERT INTO scheduled_payments (description, amount_cents, category, target_account, due_date, completed, completed_at, paid_cents, month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		paymentArgs(p)...)
	if err != nil {
		return core.ScheduledPayment{}, fmt.Errorf("create payment: %w", err)
	}
	p.ID = id
	return p, nil
}

func (r *SQLRepository) UpdatePayment(ctx context.Context, p core.ScheduledPayment) (core.ScheduledPayment, error) {
	args := append(paymentArgs(p), p.ID)
	res, err := r.exec(ctx,
		`UPDATE scheduled_payments SET description = ?, amount_cents = ?, category = ?, target_account = ?,
		due_date = ?, completed = ?, completed_at = ?, paid_cents = ?, month = ? WHERE id = ?`,
		args...)
	if err != nil {
		return core.ScheduledPayment{}, fmt.Errorf("update payment %d: %w", p.ID, err)
	}
	if err := mustAffect(res, "payment", p.ID); err != nil {
		return core.ScheduledPayment{}, err
	}
	return p, nil
}

func (r *SQLRepository) DeletePayment(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, "DELETE FROM scheduled_payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete payment %d: %w", id, err)
	}
	return mustAffect(res, "payment", id)
}

// Monthly archives

const archiveColumns = `id, month, month_name, closed_at, income_cents, expense_cents,
	balance_cents, balances, transactions`

func scanArchive(s scanner) (core.MonthlyArchive, error) {
	var (
		a                        core.MonthlyArchive
		month                    string
		closedAt                 int64
		income, expense, balance int64
		balances, txs            []byte
	)
	if err := s.Scan(&a.ID, &month, &a.MonthName, &closedAt, &income, &expense, &balance, &balances, &txs); err != nil {
		return a, err
	}
	var err error
	if a.Month, err = core.ParseAccountingMonth(month); err != nil {
		return a, err
	}
	if err := json.Unmarshal(balances, &a.Balances); err != nil {
		return a, fmt.Errorf("decode balances: %w", err)
	}
	if err := json.Unmarshal(txs, &a.Transactions); err != nil {
		return a, fmt.Errorf("decode transactions: %w", err)
	}
	a.ClosedAt = fromMillis(closedAt)
	a.Income = core.Money{Cents: income}
	a.Expense = core.Money{Cents: expense}
	a.Balance = core.Money{Cents: balance}
	return a, nil
}

func (r *SQLRepository) ListArchives(ctx context.Context) ([]core.MonthlyArchive, error) {
	rows, err := r.query(ctx, "SELECT "+archiveColumns+" FROM monthly_archives ORDER BY closed_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyArchive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archives: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) GetArchive(ctx context.Context, month core.AccountingMonth) (core.MonthlyArchive, error) {
	a, err := scanArchive(r.queryRow(ctx, "SELECT "+archiveColumns+" FROM monthly_archives WHERE month = ?", month.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyArchive{}, fmt.Errorf("archive %s: %w", month, core.ErrNotFound)
	}
	if err != nil {
		return core.MonthlyArchive{}, fmt.Errorf("get archive %s: %w", month, err)
	}
	return a, nil
}

func (r *SQLRepository) CreateArchive(ctx context.Context, a core.MonthlyArchive) (core.MonthlyArchive, error) {
	balances, err := json.Marshal(a.Balances)
	if err != nil {
		return core.MonthlyArchive{}, fmt.Errorf("encode balances: %w", err)
	}
	if a.Transactions == nil {
		a.Transactions = []core.Transaction{}
	}
	txs, err := json.Marshal(a.Transactions)
	if err != nil {
		return core.MonthlyArchive{}, fmt.Errorf("encode transactions: %w", err)
	}

	id, err := r.insert(ctx,
		`INSERT INTO monthly_archives (month, month_name, closed_at, income_cents, expense_cents, balance_cents, balances, transactions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Month.String(), a.MonthName, toMillis(a.ClosedAt), a.Income.Cents, a.Expense.Cents, a.Balance.Cents,
		string(balances), string(txs))
	if err != nil {
		return core.MonthlyArchive{}, fmt.Errorf("create archive %s: %w", a.Month, err)
	}
	a.ID = id
	a.ClosedAt = fromMillis(toMillis(a.ClosedAt))

	slog.InfoContext(ctx, "Monthly archive stored",
		"id", a.ID,
		"month", a.Month.String(),
		"transactions", len(a.Transactions))

	return a, nil
}

// Settings

func (r *SQLRepository) ActiveMonth(ctx context.Context) (core.AccountingMonth, bool, error) {
	var v string
	err := r.queryRow(ctx, "SELECT value FROM settings WHERE key = ?", activeMonthKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AccountingMonth{}, false, nil
	}
	if err != nil {
		return core.AccountingMonth{}, false, fmt.Errorf("get active month: %w", err)
	}
	m, err := core.ParseAccountingMonth(v)
	if err != nil {
		return core.AccountingMonth{}, false, err
	}
	return m, true, nil
}

func (r *SQLRepository) SetActiveMonth(ctx context.Context, m core.AccountingMonth) error {
	_, err := r.exec(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		activeMonthKey, m.String())
	if err != nil {
		return fmt.Errorf("set active month: %w", err)
	}
	return nil
}

// Column helpers

func nullAccount(a core.Account) any {
	if a == core.AccountNone {
		return nil
	}
	return a.String()
}

func accountFromNull(s sql.NullString) (core.Account, error) {
	if !s.Valid || s.String == "" {
		return core.AccountNone, nil
	}
	return core.ParseAccount(s.String)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
