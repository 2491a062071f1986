package hrest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	"github.com/Elmahrosa/Teos-Bankchain/internal/usecase"
	"github.com/Elmahrosa/Teos-Bankchain/shared/response"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type BankchainRestHandler struct {
	approvalUC *usecase.ApprovalUsecase
}

func NewBankchainRestHandler(approvalUC *usecase.ApprovalUsecase) *BankchainRestHandler {
	return &BankchainRestHandler{approvalUC: approvalUC}
}

type SubmitTransactionJSON struct {
	Type                  string          `json:"type" validate:"required,oneof=deposit withdrawal transfer"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency" validate:"required,alpha,min=2,max=5"`
	Rail                  string          `json:"rail" validate:"omitempty,oneof=bank_transfer agent_network pi_network instant_transfer"`
	AccountID             string          `json:"account_id" validate:"required"`
	CounterpartyAccountID string          `json:"counterparty_account_id" validate:"required_if=Type transfer"`
	Description           string          `json:"description" validate:"max=500"`
	RequestedBy           string          `json:"requested_by" validate:"required"`
}

type ApproveJSON struct {
	Role       string `json:"role" validate:"required"`
	ApproverID string `json:"approver_id" validate:"required"`
	Comments   string `json:"comments" validate:"max=1000"`
}

type RejectJSON struct {
	Role       string `json:"role" validate:"required"`
	ApproverID string `json:"approver_id" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=1000"`
}

type MarkFailedJSON struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type ReconcileJSON struct {
	ExternalAmount decimal.Decimal `json:"external_amount"`
}

type PendingApprovalsJSON struct {
	Transactions []*domain.Transaction `json:"transactions"`
	Total        int64                 `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return xerrors.ErrInvalidRequest
	}
	return validate.Struct(dst)
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func (h *BankchainRestHandler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var in SubmitTransactionJSON
	if err := decodeAndValidate(r, &in); err != nil {
		handleUsecaseError(w, err)
		return
	}

	txn, err := h.approvalUC.SubmitTransaction(r.Context(), &domain.SubmitRequest{
		Type:                  domain.TransactionType(in.Type),
		Amount:                in.Amount,
		Currency:              in.Currency,
		Rail:                  domain.Rail(in.Rail),
		AccountID:             in.AccountID,
		CounterpartyAccountID: optional(in.CounterpartyAccountID),
		Description:           optional(in.Description),
		RequestedBy:           in.RequestedBy,
	})
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, txn)
}

func (h *BankchainRestHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.approvalUC.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, txn)
}

func (h *BankchainRestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var in ApproveJSON
	if err := decodeAndValidate(r, &in); err != nil {
		handleUsecaseError(w, err)
		return
	}

	txn, err := h.approvalUC.Approve(r.Context(), &domain.ApproveRequest{
		TransactionID: chi.URLParam(r, "id"),
		Role:          domain.Role(in.Role),
		ApproverID:    in.ApproverID,
		Comments:      optional(in.Comments),
	})
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, txn)
}

func (h *BankchainRestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var in RejectJSON
	if err := decodeAndValidate(r, &in); err != nil {
		handleUsecaseError(w, err)
		return
	}

	txn, err := h.approvalUC.Reject(r.Context(), &domain.RejectRequest{
		TransactionID: chi.URLParam(r, "id"),
		Role:          domain.Role(in.Role),
		ApproverID:    in.ApproverID,
		Reason:        in.Reason,
	})
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, txn)
}

func (h *BankchainRestHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	txns, total, err := h.approvalUC.ListPendingApprovals(r.Context(), domain.Role(q.Get("role")), limit, offset)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	if txns == nil {
		txns = []*domain.Transaction{}
	}
	response.JSON(w, http.StatusOK, PendingApprovalsJSON{
		Transactions: txns,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	})
}

func (h *BankchainRestHandler) GetTransactionSettlement(w http.ResponseWriter, r *http.Request) {
	st, err := h.approvalUC.GetSettlement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}

func (h *BankchainRestHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	st, err := h.approvalUC.GetSettlementByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}

func (h *BankchainRestHandler) ListSettlementEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.approvalUC.ListLedgerEntries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, entries)
}

func (h *BankchainRestHandler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	st, err := h.approvalUC.MarkProcessing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}

func (h *BankchainRestHandler) MarkSettled(w http.ResponseWriter, r *http.Request) {
	st, err := h.approvalUC.MarkSettled(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}

func (h *BankchainRestHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	var in MarkFailedJSON
	if err := decodeAndValidate(r, &in); err != nil {
		handleUsecaseError(w, err)
		return
	}

	st, err := h.approvalUC.MarkFailed(r.Context(), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}

func (h *BankchainRestHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var in ReconcileJSON
	if err := decodeAndValidate(r, &in); err != nil {
		handleUsecaseError(w, err)
		return
	}

	st, err := h.approvalUC.ReconcileSettlement(r.Context(), chi.URLParam(r, "id"), in.ExternalAmount)
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}

func (h *BankchainRestHandler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.approvalUC.AccountBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, bal)
}

func (h *BankchainRestHandler) ListAccountEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.approvalUC.ListAccountEntries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUsecaseError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, entries)
}
