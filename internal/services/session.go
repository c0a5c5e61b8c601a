package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/core"
	"gastos/internal/storage"
)

// MutationState is the lifecycle of one optimistic mutation.
type MutationState int

const (
	MutationPending MutationState = iota
	MutationCommitted
	MutationReverted
	MutationRejected
)

func (s MutationState) String() string {
	switch s {
	case MutationPending:
		return "pending"
	case MutationCommitted:
		return "committed"
	case MutationReverted:
		return "reverted"
	case MutationRejected:
		return "rejected"
	}
	return fmt.Sprintf("MutationState(%d)", int(s))
}

// Outcome records how the most recent mutation ended.
type Outcome struct {
	Operation string        `json:"operation"`
	State     MutationState `json:"-"`
	StateName string        `json:"state"`
	Error     string        `json:"error,omitempty"`
}

// Observer receives mutation and reload measurements.
type Observer interface {
	ObserveMutation(op string, state string, d time.Duration)
	ObserveReload(d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveMutation(string, string, time.Duration) {}
func (nopObserver) ObserveReload(time.Duration, error)            {}

// Session owns the active month and the in-memory lists every component
// reads and mutates. All access goes through its mutex; a mutation holds it
// from validation until commit or revert.
type Session struct {
	mu       sync.Mutex
	repo     storage.Repository
	notifier Notifier
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	month    core.AccountingMonth
	txs      []core.Transaction
	loans    []core.Loan
	payments []core.ScheduledPayment
	history  []core.MonthlyArchive
	version  uint64
	stale    bool
	last     Outcome
}

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithActiveMonth sets the month used when storage has no stored pointer.
func WithActiveMonth(m core.AccountingMonth) Option {
	return func(s *Session) { s.month = m }
}

func NewSession(repo storage.Repository, opts ...Option) *Session {
	s := &Session{
		repo:     repo,
		notifier: NopNotifier{},
		observer: nopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load resolves the active month (stored pointer, configured default, or
// the current calendar month) and loads every list from storage.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok, err := s.repo.ActiveMonth(ctx)
	if err != nil {
		return fmt.Errorf("load active month: %w: %w", core.ErrStorage, err)
	}
	switch {
	case ok:
		s.month = stored
	case s.month.IsZero():
		s.month = core.MonthOf(s.now())
		fallthrough
	default:
		if err := s.repo.SetActiveMonth(ctx, s.month); err != nil {
			return fmt.Errorf("store active month: %w: %w", core.ErrStorage, err)
		}
	}
	return s.reload(ctx)
}

// Reload re-reads the stored active month and every list from storage,
// discarding in-memory state. Another process may have closed or navigated
// the month since the last load.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok, err := s.repo.ActiveMonth(ctx)
	if err != nil {
		s.stale = true
		return fmt.Errorf("reload active month: %w: %w", core.ErrStorage, err)
	}
	if ok && stored != s.month {
		s.logger.InfoContext(ctx, "Active month changed in storage", "previous", s.month.String(), "month", stored.String())
		s.month = stored
	}
	return s.reload(ctx)
}

// reload fetches the four lists concurrently. Callers hold s.mu.
func (s *Session) reload(ctx context.Context) error {
	start := time.Now()
	var (
		txs      []core.Transaction
		loans    []core.Loan
		payments []core.ScheduledPayment
		history  []core.MonthlyArchive
	)
	month := s.month
	since := core.MonthOf(s.now()).FirstDay()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.repo.ListTransactions(gctx, month)
		return err
	})
	g.Go(func() error {
		var err error
		loans, err = s.repo.ListActiveLoans(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.ListPayments(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.repo.ListArchives(gctx)
		return err
	})
	err := g.Wait()
	s.observer.ObserveReload(time.Since(start), err)
	if err != nil {
		s.stale = true
		s.logger.ErrorContext(ctx, "Reload from storage failed", "month", month.String(), "error", err)
		return fmt.Errorf("reload: %w: %w", core.ErrStorage, err)
	}

	s.txs, s.loans, s.payments, s.history = txs, loans, payments, history
	s.stale = false
	s.version++
	return nil
}

// mutation drives one optimistic change through
// pending -> committed | reverted (via reload), or rejected before any
// local change.
type mutation struct {
	s       *Session
	op      string
	state   MutationState
	started time.Time
}

func (s *Session) begin(op string) *mutation {
	return &mutation{s: s, op: op, state: MutationPending, started: time.Now()}
}

func (m *mutation) finish(ctx context.Context, state MutationState, err error) {
	m.state = state
	m.s.last = Outcome{Operation: m.op, State: state, StateName: state.String()}
	if err != nil {
		m.s.last.Error = err.Error()
	}
	m.s.observer.ObserveMutation(m.op, state.String(), time.Since(m.started))
}

// reject ends the mutation before any local state was touched.
func (m *mutation) reject(ctx context.Context, err error) error {
	m.finish(ctx, MutationRejected, err)
	m.s.logger.WarnContext(ctx, "Mutation rejected", "operation", m.op, "error", err)
	m.s.notifier.Notify(ctx, failureNotice(m.op, m.s.month, err))
	return err
}

// apply runs change against the in-memory state, then write against
// storage. A failed write discards local state through a full reload and
// surfaces ErrStorage.
func (m *mutation) apply(ctx context.Context, change func(), write func(ctx context.Context) error) error {
	change()
	if err := write(ctx); err != nil {
		wrapped := fmt.Errorf("%s: %w", m.op, err)
		if !errors.Is(err, core.ErrStorage) {
			wrapped = fmt.Errorf("%s: %w: %w", m.op, core.ErrStorage, err)
		}
		if rerr := m.s.reload(ctx); rerr != nil {
			m.s.logger.ErrorContext(ctx, "Reload after failed write also failed", "operation", m.op, "error", rerr)
		}
		m.finish(ctx, MutationReverted, wrapped)
		m.s.logger.ErrorContext(ctx, "Mutation reverted", "operation", m.op, "error", err)
		m.s.notifier.Notify(ctx, failureNotice(m.op, m.s.month, wrapped))
		return wrapped
	}
	m.s.version++
	m.finish(ctx, MutationCommitted, nil)
	return nil
}

// commit notifies success for a mutation that apply already committed.
func (m *mutation) commit(ctx context.Context, message string, args ...any) {
	m.s.logger.InfoContext(ctx, message, append([]any{"operation", m.op, "month", m.s.month.String()}, args...)...)
	m.s.notifier.Notify(ctx, Notification{
		Level:     LevelSuccess,
		Operation: m.op,
		Message:   message,
		Month:     m.s.month.String(),
		At:        m.s.now(),
	})
}

// Version returns the change counter, bumped after every committed
// mutation and every reload.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// ActiveMonth returns the month currently accepting entries.
func (s *Session) ActiveMonth() core.AccountingMonth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.month
}

// LastOutcome reports how the most recent mutation ended.
func (s *Session) LastOutcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// balances is the live projection. Callers hold s.mu.
func (s *Session) balances() core.Balances {
	return core.Project(s.txs, s.loans)
}

// closed reports whether month already has an archive. Callers hold s.mu.
func (s *Session) closed(month core.AccountingMonth) bool {
	for _, a := range s.history {
		if a.Month == month {
			return true
		}
	}
	return false
}

// requireOpen rejects new entries in an archived month. Callers hold s.mu.
func (s *Session) requireOpen() error {
	if s.closed(s.month) {
		return fmt.Errorf("%w: %s is closed", core.ErrValidation, s.month.Title())
	}
	return nil
}

// requireFunds rejects an amount larger than the account's live balance.
func (s *Session) requireFunds(a core.Account, amount core.Money) error {
	if have := s.balances().Get(a); amount.GreaterThan(have) {
		return fmt.Errorf("%w: %s holds %s, needs %s", core.ErrInsufficientFunds, a, have.Format(), amount.Format())
	}
	return nil
}
