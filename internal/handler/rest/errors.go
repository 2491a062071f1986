package hrest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Elmahrosa/Teos-Bankchain/shared/response"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// handleUsecaseError maps usecase errors to HTTP responses. Validation
// failures are client errors; anything unrecognised is a 500.
func handleUsecaseError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	logger := log.WithFields(log.Fields{
		"function":   "handleUsecaseError",
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
	})

	var verrs validator.ValidationErrors

	switch {
	// ===============================
	// NOT FOUND
	// ===============================
	case errors.Is(err, xerrors.ErrNotFound),
		errors.Is(err, xerrors.ErrTransactionNotFound),
		errors.Is(err, xerrors.ErrSettlementNotFound):
		logger.WithField("http_status", http.StatusNotFound).Warn("resource not found")
		response.ErrorWithCode(w, http.StatusNotFound, "NOT_FOUND", err.Error())

	// ===============================
	// PERMISSION DENIED
	// ===============================
	case errors.Is(err, xerrors.ErrUnauthorized):
		logger.WithField("http_status", http.StatusForbidden).Warn("approver not authorized for role")
		response.ErrorWithCode(w, http.StatusForbidden, "UNAUTHORIZED", err.Error())
	case errors.Is(err, xerrors.ErrSelfApprovalNotAllowed):
		logger.WithField("http_status", http.StatusForbidden).Warn("self approval attempted")
		response.ErrorWithCode(w, http.StatusForbidden, "SELF_APPROVAL", err.Error())

	// ===============================
	// STATE CONFLICTS
	// ===============================
	case errors.Is(err, xerrors.ErrTransactionClosed):
		logger.WithField("http_status", http.StatusConflict).Info("decision on closed transaction")
		response.ErrorWithCode(w, http.StatusConflict, "TRANSACTION_CLOSED", err.Error())
	case errors.Is(err, xerrors.ErrInvalidApproval):
		logger.WithField("http_status", http.StatusConflict).Info("invalid approval")
		response.ErrorWithCode(w, http.StatusConflict, "INVALID_APPROVAL", err.Error())
	case errors.Is(err, xerrors.ErrSettlementClosed):
		logger.WithField("http_status", http.StatusConflict).Info("settlement already terminal")
		response.ErrorWithCode(w, http.StatusConflict, "SETTLEMENT_CLOSED", err.Error())
	case errors.Is(err, xerrors.ErrSettlementExists),
		errors.Is(err, xerrors.ErrDuplicateTransaction):
		logger.WithField("http_status", http.StatusConflict).Warn("duplicate record")
		response.ErrorWithCode(w, http.StatusConflict, "DUPLICATE", err.Error())

	// ===============================
	// BUSINESS RULES
	// ===============================
	case errors.Is(err, xerrors.ErrInvalidAmount):
		response.ErrorWithCode(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, xerrors.ErrUnsupportedCurrency):
		response.ErrorWithCode(w, http.StatusUnprocessableEntity, "UNSUPPORTED_CURRENCY", err.Error())
	case errors.Is(err, xerrors.ErrRailDisabled):
		response.ErrorWithCode(w, http.StatusUnprocessableEntity, "RAIL_DISABLED", err.Error())
	case errors.Is(err, xerrors.ErrAmountOutOfRange):
		response.ErrorWithCode(w, http.StatusUnprocessableEntity, "AMOUNT_OUT_OF_RANGE", err.Error())

	// ===============================
	// BAD REQUEST
	// ===============================
	case errors.As(err, &verrs):
		response.ErrorWithCode(w, http.StatusBadRequest, "VALIDATION_FAILED", verrs.Error())
	case xerrors.IsValidation(err):
		response.ErrorWithCode(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())

	// ===============================
	// INTERNAL
	// ===============================
	default:
		logger.WithField("http_status", http.StatusInternalServerError).Error("unhandled usecase error")
		response.ErrorWithCode(w, http.StatusInternalServerError, "INTERNAL", xerrors.ErrInternalServer.Error())
	}
}
