// Package handlers exposes the reconciliation operations over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/api/middleware"
	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/importer"
	"github.com/dvloznov/bank-reconciler/internal/jobs"
	"github.com/dvloznov/bank-reconciler/internal/recon"
)

// MovementSink receives ledger and payment movements into the candidate
// pool. The in-memory pool implements it; a direct ledger integration would
// not need this endpoint.
type MovementSink interface {
	AddMovement(movement *domain.Movement)
}

// ReconciliationHandler handles reconciliation endpoints. The tenant comes
// from the X-Tenant-ID header; full authentication sits in front of this
// service.
type ReconciliationHandler struct {
	svc       *recon.Service
	publisher jobs.Publisher
	jobStore  jobs.JobStore
	sink      MovementSink
	log       zerolog.Logger
}

// NewReconciliationHandler creates the handler set. sink may be nil when
// movements arrive through another channel.
func NewReconciliationHandler(svc *recon.Service, publisher jobs.Publisher, jobStore jobs.JobStore, sink MovementSink, log zerolog.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		svc:       svc,
		publisher: publisher,
		jobStore:  jobStore,
		sink:      sink,
		log:       log,
	}
}

// Register attaches all routes to the mux.
func (h *ReconciliationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/accounts", h.CreateAccount)
	mux.HandleFunc("GET /api/accounts", h.ListAccounts)
	mux.HandleFunc("POST /api/accounts/{id}/deactivate", h.DeactivateAccount)
	mux.HandleFunc("POST /api/accounts/{id}/recompute-balance", h.RecomputeBalance)
	mux.HandleFunc("GET /api/accounts/{id}/statements", h.ListStatements)

	mux.HandleFunc("POST /api/statements/import", h.ImportStatement)
	mux.HandleFunc("GET /api/statements/{id}", h.GetStatement)
	mux.HandleFunc("DELETE /api/statements/{id}", h.DeleteStatement)
	mux.HandleFunc("POST /api/statements/{id}/match", h.RunMatching)
	mux.HandleFunc("GET /api/statements/{id}/result", h.GetResult)

	mux.HandleFunc("POST /api/lines/{id}/manual-match", h.ManualMatch)
	mux.HandleFunc("POST /api/lines/{id}/unmatch", h.Unmatch)

	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)

	if h.sink != nil {
		mux.HandleFunc("POST /api/movements", h.AddMovements)
	}
}

func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.Header.Get("X-Tenant-ID")
	if tenant == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return "", false
	}
	return tenant, true
}

// CreateAccount handles POST /api/accounts.
func (h *ReconciliationHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name            string          `json:"name"`
		BankName        string          `json:"bank_name"`
		AccountNumber   string          `json:"account_number"`
		Type            string          `json:"type"`
		Currency        string          `json:"currency"`
		InitialBalance  decimal.Decimal `json:"initial_balance"`
		LedgerAccountID string          `json:"ledger_account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), &domain.BankAccount{
		TenantID:        tenant,
		Name:            req.Name,
		BankName:        req.BankName,
		AccountNumber:   req.AccountNumber,
		Type:            domain.AccountType(req.Type),
		Currency:        req.Currency,
		InitialBalance:  req.InitialBalance,
		LedgerAccountID: req.LedgerAccountID,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create account")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, account)
}

// ListAccounts handles GET /api/accounts.
func (h *ReconciliationHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	accounts, err := h.svc.ListAccounts(r.Context(), tenant)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// DeactivateAccount handles POST /api/accounts/{id}/deactivate.
func (h *ReconciliationHandler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeactivateAccount(r.Context(), tenant, r.PathValue("id")); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// RecomputeBalance handles POST /api/accounts/{id}/recompute-balance, the
// full-recompute repair path.
func (h *ReconciliationHandler) RecomputeBalance(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	balance, err := h.svc.RecomputeAccountBalance(r.Context(), tenant, r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"current_balance": balance.String()})
}

// ListStatements handles GET /api/accounts/{id}/statements.
func (h *ReconciliationHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	statements, err := h.svc.ListStatements(r.Context(), tenant, r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": statements,
		"count":      len(statements),
	})
}

// ImportStatement handles POST /api/statements/import. The body carries the
// statement metadata plus the ordered, already-parsed raw lines.
func (h *ReconciliationHandler) ImportStatement(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req struct {
		Meta  importer.StatementMeta `json:"meta"`
		Lines []domain.RawLine       `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Meta.TenantID = tenant

	statement, err := h.svc.ImportStatement(r.Context(), req.Meta, req.Lines)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", req.Meta.AccountID).Msg("Statement import failed")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, statement)
}

// RunMatching handles POST /api/statements/{id}/match. With ?async=true the
// run is enqueued and a job ID returned; otherwise it executes inline.
func (h *ReconciliationHandler) RunMatching(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	statementID := r.PathValue("id")

	if r.URL.Query().Get("async") == "true" {
		job := &jobs.MatchStatementJob{
			TenantID:    tenant,
			StatementID: statementID,
		}
		if err := h.publisher.PublishMatchStatement(r.Context(), job); err != nil {
			h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to enqueue matching job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue matching job")
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
		return
	}

	result, err := h.svc.RunMatching(r.Context(), tenant, statementID)
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Matching run failed")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// GetStatement handles GET /api/statements/{id}.
func (h *ReconciliationHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	statement, err := h.svc.GetStatement(r.Context(), tenant, r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, statement)
}

// DeleteStatement handles DELETE /api/statements/{id}.
func (h *ReconciliationHandler) DeleteStatement(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteStatement(r.Context(), tenant, r.PathValue("id")); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetResult handles GET /api/statements/{id}/result.
func (h *ReconciliationHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.GetReconciliationResult(r.Context(), tenant, r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// ManualMatch handles POST /api/lines/{id}/manual-match.
func (h *ReconciliationHandler) ManualMatch(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req struct {
		MovementID string `json:"movement_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MovementID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "movement_id is required")
		return
	}

	line, err := h.svc.ManualMatch(r.Context(), tenant, r.PathValue("id"), req.MovementID)
	if err != nil {
		h.log.Error().Err(err).Str("line_id", r.PathValue("id")).Msg("Manual match failed")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, line)
}

// Unmatch handles POST /api/lines/{id}/unmatch.
func (h *ReconciliationHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	line, err := h.svc.Unmatch(r.Context(), tenant, r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, line)
}

// AddMovements handles POST /api/movements, feeding ledger and payment
// movements into the candidate pool.
func (h *ReconciliationHandler) AddMovements(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req struct {
		Movements []domain.Movement `json:"movements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Movements) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "movements is required")
		return
	}

	for i := range req.Movements {
		m := req.Movements[i]
		if m.MovementID == "" || !m.Kind.Valid() || m.AccountID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "movement_id, kind and account_id are required")
			return
		}
		m.TenantID = tenant
		h.sink.AddMovement(&m)
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]int{"count": len(req.Movements)})
}

// GetJob handles GET /api/jobs/{id}.
func (h *ReconciliationHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobStore.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}
