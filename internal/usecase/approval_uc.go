// usecase/approval_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	"github.com/Elmahrosa/Teos-Bankchain/internal/locker"
	"github.com/Elmahrosa/Teos-Bankchain/internal/metrics"
	publisher "github.com/Elmahrosa/Teos-Bankchain/internal/pub"
	"github.com/Elmahrosa/Teos-Bankchain/internal/repository"
	"github.com/Elmahrosa/Teos-Bankchain/internal/service"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"
	"github.com/Elmahrosa/Teos-Bankchain/shared/utils/id"

	"go.uber.org/zap"
)

const systemApproverID = "system"

// ApprovalUsecase drives a transaction from submission through tiered
// sign-off into settlement. Every write for one transaction, or one
// settlement, runs under that record's lock.
type ApprovalUsecase struct {
	transactions repository.TransactionRepository
	settlements  repository.SettlementRepository
	ledger       repository.LedgerRepository

	classifier *service.TierClassifier
	normalizer *service.CurrencyNormalizer
	fees       *service.FeeCalculator

	authorizer Authorizer
	publisher  publisher.EventPublisher
	locks      *locker.Locker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewApprovalUsecase(
	repos *repository.Repositories,
	classifier *service.TierClassifier,
	normalizer *service.CurrencyNormalizer,
	fees *service.FeeCalculator,
	authorizer Authorizer,
	pub publisher.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ApprovalUsecase {
	if pub == nil {
		pub = publisher.NoopPublisher{}
	}
	if m == nil {
		m = metrics.NewMetrics("bankchain")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalUsecase{
		transactions: repos.Transactions,
		settlements:  repos.Settlements,
		ledger:       repos.Ledger,
		classifier:   classifier,
		normalizer:   normalizer,
		fees:         fees,
		authorizer:   authorizer,
		publisher:    pub,
		locks:        locker.New(),
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the wall clock, used for cutoff-sensitive callers and tests.
func (uc *ApprovalUsecase) WithClock(now func() time.Time) *ApprovalUsecase {
	uc.now = now
	return uc
}

func txLockKey(transactionID string) string { return "tx:" + transactionID }

// SubmitTransaction classifies the request and opens its approval slots.
// Auto-tier transactions are approved by the system and settled at once.
func (uc *ApprovalUsecase) SubmitTransaction(ctx context.Context, req *domain.SubmitRequest) (*domain.Transaction, error) {
	defer uc.metrics.ObserveDuration("submit", time.Now())

	if err := req.Validate(); err != nil {
		return nil, err
	}
	rail := req.Rail
	if rail == "" {
		rail = domain.RailBankTransfer
	}
	if !rail.Valid() {
		return nil, fmt.Errorf("%s: %w", rail, xerrors.ErrUnknownRail)
	}
	currency := strings.ToUpper(req.Currency)

	refAmount, err := uc.normalizer.ToReference(ctx, req.Amount, currency)
	if err != nil {
		return nil, err
	}
	tier, err := uc.classifier.Classify(refAmount)
	if err != nil {
		return nil, err
	}
	if err := uc.fees.ValidateAmount(refAmount, rail); err != nil {
		return nil, err
	}

	now := uc.now()
	t := &domain.Transaction{
		ID:                    id.Generate("txn"),
		Type:                  req.Type,
		Amount:                req.Amount,
		Currency:              currency,
		ReferenceAmount:       refAmount,
		ReferenceCurrency:     uc.normalizer.ReferenceCurrency(),
		Rail:                  rail,
		AccountID:             req.AccountID,
		CounterpartyAccountID: req.CounterpartyAccountID,
		Description:           req.Description,
		RequestedBy:           req.RequestedBy,
		RequiredTier:          tier,
		RequiredApprovers:     domain.RequiredApprovers(tier),
		Approvals:             make(map[domain.Role]*domain.Approval),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	for _, role := range t.RequiredApprovers {
		t.Approvals[role] = &domain.Approval{Role: role, Status: domain.ApprovalStatusPending}
	}
	if tier == domain.TierAuto {
		ts := now
		t.Approvals[domain.RoleSystem] = &domain.Approval{
			Role:       domain.RoleSystem,
			Status:     domain.ApprovalStatusApproved,
			ApproverID: domain.StrPtr(systemApproverID),
			Timestamp:  &ts,
		}
	}
	t.Refresh()

	if !t.ReadyForSettlement() {
		if err := uc.transactions.Create(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to create transaction: %w", err)
		}
		uc.afterSubmit(ctx, t)
		return t, nil
	}

	// auto tier: the id is not visible to anyone else until CreateSettled
	// returns, so no lock is taken
	st, entries, err := uc.prepareSettlement(ctx, t, now)
	if err != nil {
		return nil, err
	}
	t.CompletedAt = &now
	t.SettlementID = &st.ID

	if err := uc.settlements.CreateSettled(ctx, t, st, entries); err != nil {
		return nil, fmt.Errorf("failed to record settlement: %w", err)
	}

	uc.afterSubmit(ctx, t)
	uc.afterSettlementCreated(ctx, t, st)
	return t, nil
}

func (uc *ApprovalUsecase) afterSubmit(ctx context.Context, t *domain.Transaction) {
	uc.metrics.TransactionsSubmitted.WithLabelValues(string(t.RequiredTier), string(t.Type)).Inc()
	uc.logger.Info("transaction submitted",
		zap.String("transaction_id", t.ID),
		zap.String("tier", string(t.RequiredTier)),
		zap.String("status", string(t.Status)),
		zap.String("amount", t.Amount.String()),
		zap.String("currency", t.Currency),
		zap.String("reference_amount", t.ReferenceAmount.String()))

	uc.publish(ctx, &domain.Event{
		EventType:     domain.EventTransactionSubmitted,
		TransactionID: t.ID,
		Status:        string(t.Status),
		Tier:          t.RequiredTier,
		Amount:        t.Amount.String(),
		Currency:      t.Currency,
		ActorID:       t.RequestedBy,
	})
}

// Approve signs off one required role. The final approval completes the
// transaction and records its settlement in the same commit; if that commit
// fails nothing is stored.
func (uc *ApprovalUsecase) Approve(ctx context.Context, req *domain.ApproveRequest) (*domain.Transaction, error) {
	defer uc.metrics.ObserveDuration("approve", time.Now())

	if req.TransactionID == "" || req.ApproverID == "" {
		return nil, xerrors.ErrRequiredFieldMissing
	}

	unlock := uc.locks.Lock(txLockKey(req.TransactionID))
	defer unlock()

	t, err := uc.transactions.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if err := uc.checkDecision(ctx, t, req.Role, req.ApproverID); err != nil {
		return nil, err
	}

	now := uc.now()
	updated := t.Clone()
	ts := now
	updated.Approvals[req.Role] = &domain.Approval{
		Role:       req.Role,
		Status:     domain.ApprovalStatusApproved,
		ApproverID: domain.StrPtr(req.ApproverID),
		Comments:   req.Comments,
		Timestamp:  &ts,
	}
	updated.Refresh()
	updated.UpdatedAt = now

	var st *domain.Settlement
	if updated.ReadyForSettlement() {
		var entries []*domain.LedgerEntry
		st, entries, err = uc.prepareSettlement(ctx, updated, now)
		if err != nil {
			return nil, err
		}
		updated.CompletedAt = &now
		updated.SettlementID = &st.ID
		if err := uc.settlements.CommitSettlement(ctx, updated, st, entries); err != nil {
			return nil, fmt.Errorf("failed to record settlement: %w", err)
		}
	} else if err := uc.transactions.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to record approval: %w", err)
	}

	uc.metrics.ApprovalsRecorded.WithLabelValues(string(req.Role)).Inc()
	uc.logger.Info("approval recorded",
		zap.String("transaction_id", updated.ID),
		zap.String("role", string(req.Role)),
		zap.String("approver_id", req.ApproverID),
		zap.String("status", string(updated.Status)))

	uc.publish(ctx, &domain.Event{
		EventType:     domain.EventApprovalRecorded,
		TransactionID: updated.ID,
		Status:        string(updated.Status),
		Tier:          updated.RequiredTier,
		Role:          req.Role,
		ActorID:       req.ApproverID,
	})
	if st != nil {
		uc.publish(ctx, &domain.Event{
			EventType:     domain.EventTransactionCompleted,
			TransactionID: updated.ID,
			Status:        string(updated.Status),
			Tier:          updated.RequiredTier,
		})
		uc.afterSettlementCreated(ctx, updated, st)
	}
	return updated, nil
}

// Reject closes the transaction on the first rejection. Remaining pending
// slots are left as they are.
func (uc *ApprovalUsecase) Reject(ctx context.Context, req *domain.RejectRequest) (*domain.Transaction, error) {
	defer uc.metrics.ObserveDuration("reject", time.Now())

	if req.TransactionID == "" || req.ApproverID == "" || strings.TrimSpace(req.Reason) == "" {
		return nil, xerrors.ErrRequiredFieldMissing
	}

	unlock := uc.locks.Lock(txLockKey(req.TransactionID))
	defer unlock()

	t, err := uc.transactions.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if err := uc.checkDecision(ctx, t, req.Role, req.ApproverID); err != nil {
		return nil, err
	}

	now := uc.now()
	updated := t.Clone()
	ts := now
	updated.Approvals[req.Role] = &domain.Approval{
		Role:       req.Role,
		Status:     domain.ApprovalStatusRejected,
		ApproverID: domain.StrPtr(req.ApproverID),
		Comments:   domain.StrPtr(req.Reason),
		Timestamp:  &ts,
	}
	updated.Refresh()
	updated.UpdatedAt = now

	if err := uc.transactions.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to record rejection: %w", err)
	}

	uc.metrics.Rejections.WithLabelValues(string(req.Role)).Inc()
	uc.logger.Info("transaction rejected",
		zap.String("transaction_id", updated.ID),
		zap.String("role", string(req.Role)),
		zap.String("approver_id", req.ApproverID),
		zap.String("reason", req.Reason))

	uc.publish(ctx, &domain.Event{
		EventType:     domain.EventTransactionRejected,
		TransactionID: updated.ID,
		Status:        string(updated.Status),
		Tier:          updated.RequiredTier,
		Role:          req.Role,
		ActorID:       req.ApproverID,
		Reason:        req.Reason,
	})
	return updated, nil
}

// checkDecision validates an approve or reject against the current state.
// State errors come first so a duplicate click on a closed transaction is
// reported as closed regardless of who clicked.
func (uc *ApprovalUsecase) checkDecision(ctx context.Context, t *domain.Transaction, role domain.Role, approverID string) error {
	if t.IsClosed() {
		return fmt.Errorf("transaction %s is %s: %w", t.ID, t.Status, xerrors.ErrTransactionClosed)
	}
	if !t.Requires(role) {
		return fmt.Errorf("role %q is not required for %s: %w", role, t.RequiredTier, xerrors.ErrInvalidApproval)
	}
	if slot, ok := t.Approvals[role]; !ok || slot.Status != domain.ApprovalStatusPending {
		return fmt.Errorf("role %q already decided: %w", role, xerrors.ErrInvalidApproval)
	}
	if !uc.authorizer.IsAuthorized(ctx, approverID, role) {
		return fmt.Errorf("approver %s for role %q: %w", approverID, role, xerrors.ErrUnauthorized)
	}
	if approverID == t.RequestedBy {
		return xerrors.ErrSelfApprovalNotAllowed
	}
	return nil
}

func (uc *ApprovalUsecase) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return uc.transactions.GetByID(ctx, transactionID)
}

// ListPendingApprovals returns open transactions still waiting on role.
func (uc *ApprovalUsecase) ListPendingApprovals(ctx context.Context, role domain.Role, limit, offset int) ([]*domain.Transaction, int64, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, 0, fmt.Errorf("%v: %w", err, xerrors.ErrInvalidInput)
	}
	status := domain.TransactionStatusPending
	return uc.transactions.List(ctx, &domain.TransactionFilter{
		Status:      &status,
		PendingRole: &role,
		Limit:       limit,
		Offset:      offset,
	})
}

// publish is best-effort: the state change is already committed.
func (uc *ApprovalUsecase) publish(ctx context.Context, event *domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = uc.now()
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.metrics.PublishErrors.Inc()
		uc.logger.Warn("failed to publish event",
			zap.String("event_type", string(event.EventType)),
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
	}
}
