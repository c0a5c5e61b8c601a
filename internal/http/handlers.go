package http

import (
	"context"
	"net/http"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/services"
)

type movementRequest struct {
	Account     core.Account `json:"account"`
	Amount      core.Money   `json:"amount"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
}

type transferRequest struct {
	Source      core.Account `json:"source"`
	Destination core.Account `json:"destination"`
	Amount      core.Money   `json:"amount"`
	Description string       `json:"description"`
}

type loanRequest struct {
	Origin      core.Account `json:"origin"`
	Amount      core.Money   `json:"amount"`
	Borrower    string       `json:"borrower"`
	Description string       `json:"description"`
}

type repaymentRequest struct {
	Amount         core.Money   `json:"amount"`
	Target         core.Account `json:"target"`
	CurrentPending *core.Money  `json:"current_pending"`
}

type paymentRequest struct {
	Description string       `json:"description"`
	Amount      core.Money   `json:"amount"`
	Category    string       `json:"category"`
	Target      core.Account `json:"target"`
	DueDate     *string      `json:"due_date"`
}

type paymentEditRequest struct {
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	DueDate     *string    `json:"due_date"`
	ClearDue    bool       `json:"clear_due"`
}

type completionRequest struct {
	Target core.Account `json:"target"`
	Amount *core.Money  `json:"amount"`
}

type navigateRequest struct {
	Month core.AccountingMonth `json:"month"`
}

// mutated writes the result of a mutation together with its outcome.
func (s *Server) mutated(w http.ResponseWriter, r *http.Request, status int, data any, message string, err error) {
	session := s.tracker.Session
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Request failed",
			log.FieldError, err.Error(), "kind", services.ErrorKind(err))
		ErrorResponse(err).
			Outcome(session.LastOutcome(), session.Version(), "").
			Write(w)
		return
	}
	NewJSONResponse().
		Status(status).
		Data(data).
		Outcome(session.LastOutcome(), session.Version(), message).
		Write(w)
}

// fail writes an error that happened before any mutation started.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Request rejected",
		log.FieldError, err.Error(), "kind", services.ErrorKind(err))
	ErrorResponse(err).Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}
	if s.pinger == nil {
		checks["storage"] = "not_configured"
	} else if err := s.pinger.Ping(ctx); err != nil {
		checks["storage"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}
	snap := s.tracker.Session.Snapshot()
	if snap.Stale {
		checks["state"] = "stale"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["state"] = "ok"
	}
	checks["active_month"] = snap.Month.String()
	checks["history_cache_entries"] = s.tracker.History.Cache().Size()
	checks["rate_limited_clients"] = s.rateLimiter.activeClients()

	NewJSONResponse().Status(code).Data(map[string]any{
		"status": status,
		"checks": checks,
	}).Write(w)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.tracker.Session.Snapshot()).Write(w)
}

// handleCatalog lists accounts and suggested categories for client forms.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"accounts":           core.Accounts(),
		"real_accounts":      core.RealAccounts(),
		"income_categories":  core.IncomeCategories,
		"expense_categories": core.ExpenseCategories,
		"payment_categories": core.PaymentCategories,
	}).Write(w)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	month := s.tracker.Session.ActiveMonth()
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := parseMonth(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		month = m
	}
	txs, err := s.tracker.Ledger.ListForMonth(r.Context(), month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewJSONResponse().Data(map[string]any{"month": month, "transactions": txs}).Write(w)
}

func (s *Server) handleIncome(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := s.decodeBody(r, schemaMovement, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tx, err := s.tracker.Ledger.RecordIncome(r.Context(), req.Account, req.Amount,
		sanitizeInput(req.Description), sanitizeInput(req.Category))
	s.mutated(w, r, http.StatusCreated, tx, "Ingreso registrado", err)
}

func (s *Server) handleExpense(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := s.decodeBody(r, schemaMovement, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tx, err := s.tracker.Ledger.RecordExpense(r.Context(), req.Account, req.Amount,
		sanitizeInput(req.Description), sanitizeInput(req.Category))
	s.mutated(w, r, http.StatusCreated, tx, "Gasto registrado", err)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := s.decodeBody(r, schemaTransfer, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tx, err := s.tracker.Ledger.RecordTransfer(r.Context(), req.Source, req.Destination, req.Amount,
		sanitizeInput(req.Description))
	s.mutated(w, r, http.StatusCreated, tx, "Transferencia registrada", err)
}

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"loans":      s.tracker.Loans.Active(),
		"borrowers":  s.tracker.Loans.GroupByBorrower(),
		"owed_to_me": s.tracker.Loans.OwedToMe(),
	}).Write(w)
}

func (s *Server) handleDisburse(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := s.decodeBody(r, schemaLoan, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.tracker.Loans.Disburse(r.Context(), req.Origin, req.Amount,
		sanitizeInput(req.Borrower), sanitizeInput(req.Description))
	s.mutated(w, r, http.StatusCreated, loan, "Préstamo registrado", err)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req repaymentRequest
	if err := s.decodeBody(r, schemaRepayment, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pending := s.pendingOf(id)
	if req.CurrentPending != nil {
		pending = *req.CurrentPending
	}
	loan, err := s.tracker.Loans.Repay(r.Context(), id, req.Amount, req.Target, pending)
	s.mutated(w, r, http.StatusOK, loan, "Abono registrado", err)
}

// pendingOf returns the live pending amount of an active loan, or zero.
func (s *Server) pendingOf(id int64) core.Money {
	for _, l := range s.tracker.Loans.Active() {
		if l.ID == id {
			return l.Pending
		}
	}
	return core.Money{}
}

func (s *Server) handleRemoveLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.tracker.Loans.Remove(r.Context(), id)
	s.mutated(w, r, http.StatusOK, map[string]int64{"id": id}, "Préstamo eliminado", err)
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	NewJSONResponse().Data(map[string]any{
		"payments": s.tracker.Payments.List(),
		"groups":   s.tracker.Payments.GroupByCategory(),
		"summary":  s.tracker.Payments.Summary(now),
	}).Write(w)
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request) {
	overdue := s.tracker.Payments.Overdue(time.Now())
	if overdue == nil {
		overdue = []core.ScheduledPayment{}
	}
	NewJSONResponse().Data(overdue).Write(w)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := s.decodeBody(r, schemaPayment, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.tracker.Payments.Schedule(r.Context(), sanitizeInput(req.Description), req.Amount,
		sanitizeInput(req.Category), req.Target, due)
	s.mutated(w, r, http.StatusCreated, p, "Pago programado", err)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req completionRequest
	if err := s.decodeBody(r, schemaCompletion, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.tracker.Payments.Complete(r.Context(), id, req.Target, req.Amount)
	s.mutated(w, r, http.StatusOK, p, "Pago completado", err)
}

func (s *Server) handleEditPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req paymentEditRequest
	if err := s.decodeBody(r, schemaPaymentEdit, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.tracker.Payments.Edit(r.Context(), id, services.PaymentEdit{
		Description: sanitizeInput(req.Description),
		Amount:      req.Amount,
		DueDate:     due,
		ClearDue:    req.ClearDue,
		Category:    sanitizeInput(req.Category),
	})
	s.mutated(w, r, http.StatusOK, p, "Pago actualizado", err)
}

func (s *Server) handleRemovePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.tracker.Payments.Remove(r.Context(), id)
	s.mutated(w, r, http.StatusOK, map[string]int64{"id": id}, "Pago eliminado", err)
}

func (s *Server) handleCloseMonth(w http.ResponseWriter, r *http.Request) {
	res, err := s.tracker.Closer.CloseMonth(r.Context())
	s.mutated(w, r, http.StatusOK, res, "Mes cerrado", err)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := s.decodeBody(r, schemaNavigate, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.tracker.Closer.Navigate(r.Context(), req.Month)
	s.mutated(w, r, http.StatusOK, map[string]any{"month": s.tracker.Session.ActiveMonth()}, "Mes activo cambiado", err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.tracker.History.List()
	if history == nil {
		history = []core.MonthlyArchive{}
	}
	NewJSONResponse().Data(history).Write(w)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r.PathValue("month"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	archive, err := s.tracker.History.Archive(r.Context(), month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Data(archive).Write(w)
}
