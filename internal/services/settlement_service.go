package services

import (
	"context"
	"fmt"
	"time"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/config"
	"datalabel-backend/internal/custody"
	"datalabel-backend/internal/ledger"
	"datalabel-backend/internal/metrics"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// Settlement proof that a task's reward reached the worker
type Settlement struct {
	Signature   string
	Status      models.LedgerTransactionStatus
	FromAddress string
	ToAddress   string
	Amount      int64
}

// SettlementService obtains the transfer signature for an approval.
// It is the only holder of the custody signer.
type SettlementService struct {
	mode           config.SettlementMode
	allowManual    bool
	client         ledger.Client
	signer         *custody.Signer
	attempts       repository.SettlementAttemptRepository
	payments       repository.LedgerTransactionRepository
	policy         ledger.PollPolicy
	confirmTimeout time.Duration
	logger         *logrus.Logger
}

// PollPolicyFromConfig confirmation backoff from the settlement section
func PollPolicyFromConfig(cfg config.SettlementConfig) ledger.PollPolicy {
	policy := ledger.DefaultPollPolicy()
	if cfg.PollInitialMs > 0 {
		policy.InitialInterval = time.Duration(cfg.PollInitialMs) * time.Millisecond
	}
	if cfg.PollMaxMs > 0 {
		policy.MaxInterval = time.Duration(cfg.PollMaxMs) * time.Millisecond
	}
	if cfg.PollMultiplier >= 1 {
		policy.Multiplier = cfg.PollMultiplier
	}
	if cfg.PollMaxAttempts > 0 {
		policy.MaxAttempts = cfg.PollMaxAttempts
	}
	return policy
}

// NewSettlementService client may be nil when no ledger is configured; signer is
// required in custody mode only.
func NewSettlementService(
	cfg config.SettlementConfig,
	client ledger.Client,
	signer *custody.Signer,
	store repository.Store,
	logger *logrus.Logger,
) (*SettlementService, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("unknown settlement mode %q", cfg.Mode)
	}
	if cfg.Mode == config.SettlementCustody && (signer == nil || client == nil) {
		return nil, fmt.Errorf("custody settlement needs a signer and a ledger client")
	}
	if cfg.Mode == config.SettlementManual && !cfg.AllowManual {
		return nil, fmt.Errorf("manual settlement requires settlement.allowManual")
	}
	timeout := time.Duration(cfg.ConfirmTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SettlementService{
		mode:           cfg.Mode,
		allowManual:    cfg.AllowManual,
		client:         client,
		signer:         signer,
		attempts:       store,
		payments:       store,
		policy:         PollPolicyFromConfig(cfg),
		confirmTimeout: timeout,
		logger:         logger,
	}, nil
}

// Mode configured settlement mode
func (s *SettlementService) Mode() config.SettlementMode {
	return s.mode
}

// CustodyAddress payer address, empty outside custody mode
func (s *SettlementService) CustodyAddress() string {
	if s.signer == nil {
		return ""
	}
	return s.signer.PublicKey().String()
}

// Settle pays task.Reward to the task's worker. presigned, when set, is a
// transfer the provider already signed and submitted. A returned error always
// means the task must stay PENDING_APPROVAL.
func (s *SettlementService) Settle(ctx context.Context, task *models.Task, presigned string) (*Settlement, error) {
	start := time.Now()
	mode := s.mode
	if presigned != "" {
		mode = config.SettlementExternal
	}

	var (
		result *Settlement
		err    error
	)
	switch {
	case presigned != "":
		result, err = s.verifyPresigned(ctx, task, presigned)
	case s.mode == config.SettlementExternal:
		err = apperrors.Validation(
			map[string]string{"transaction_signature": "required"},
			"a pre-signed transfer signature is required to approve this task",
		)
	case s.mode == config.SettlementManual:
		result, err = s.manual(task)
	case s.mode == config.SettlementCustody:
		result, err = s.payFromCustody(ctx, task)
	}

	outcome := "confirmed"
	if err != nil {
		outcome = "failed"
		if apperrors.Is(err, apperrors.KindValidation) {
			outcome = "rejected"
		}
	}
	metrics.SettlementOutcomes.WithLabelValues(string(mode), outcome).Inc()
	metrics.SettlementDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	return result, err
}

func (s *SettlementService) manual(task *models.Task) (*Settlement, error) {
	if !s.allowManual {
		return nil, apperrors.Settlement(nil, "manual settlement is disabled")
	}
	s.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"worker":  task.WorkerAddress(),
	}).Warn("⚠️ Recording manual approval, no ledger transfer was made")
	return &Settlement{
		Signature:   models.ManualApprovalSignature,
		Status:      models.TransactionConfirmed,
		FromAddress: task.ProviderID,
		ToAddress:   task.WorkerAddress(),
		Amount:      task.Reward,
	}, nil
}

func (s *SettlementService) verifyPresigned(ctx context.Context, task *models.Task, signature string) (*Settlement, error) {
	if _, err := ledger.ParseSignature(signature); err != nil {
		return nil, apperrors.Validation(
			map[string]string{"transaction_signature": "must be a base58 encoded 64-byte ledger signature"},
			"invalid transfer signature",
		)
	}
	used, err := s.payments.ListTransactions(ctx, repository.TransactionFilter{Signature: signature, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(used) > 0 {
		return nil, apperrors.Conflict("transfer %s already settled task %s", signature, used[0].TaskID)
	}

	if s.client != nil {
		status, err := s.client.Confirm(ctx, signature)
		if err != nil {
			return nil, apperrors.Settlement(err, "check transfer %s", signature)
		}
		switch status {
		case ledger.StatusFailed:
			return nil, apperrors.Settlement(nil, "transfer %s failed on the ledger", signature)
		case ledger.StatusPending:
			return nil, apperrors.Settlement(nil, "transfer %s is not confirmed yet, retry the approval", signature)
		}
	}
	return &Settlement{
		Signature:   signature,
		Status:      models.TransactionConfirmed,
		FromAddress: task.ProviderID,
		ToAddress:   task.WorkerAddress(),
		Amount:      task.Reward,
	}, nil
}

func (s *SettlementService) payFromCustody(ctx context.Context, task *models.Task) (*Settlement, error) {
	if task.Reward <= 0 {
		return nil, apperrors.Settlement(nil, "task %s has no reward to pay", task.ID)
	}
	to, err := ledger.ParsePublicKey(task.WorkerAddress())
	if err != nil {
		return nil, apperrors.Settlement(err, "worker address %q is not a ledger address", task.WorkerAddress())
	}

	// an earlier approval may already have a transfer in flight
	attempt, err := s.attempts.GetSettlementAttempt(ctx, task.ID)
	switch {
	case err == nil:
		status, cerr := s.CheckAttempt(ctx, attempt)
		switch status {
		case ledger.StatusConfirmed:
			return settlementFromAttempt(attempt), nil
		case ledger.StatusPending:
			return nil, apperrors.Settlement(cerr, "transfer %s is still pending, retry later", attempt.Signature)
		}
		// failed attempts are discarded by CheckAttempt, pay again below
	case !apperrors.Is(err, apperrors.KindNotFound):
		return nil, err
	}

	payer := s.signer.PublicKey()
	blockhash, lastValid, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return nil, apperrors.Settlement(err, "fetch latest blockhash")
	}
	msg, err := ledger.NewMessage(payer, []ledger.Instruction{
		ledger.TransferInstruction(payer, to, uint64(task.Reward)),
	}, blockhash)
	if err != nil {
		return nil, apperrors.Settlement(err, "build transfer")
	}
	tx := ledger.NewTransaction(msg)
	if err := s.signer.SignTransaction(tx); err != nil {
		return nil, apperrors.Settlement(err, "sign transfer")
	}
	signature := tx.ID().String()

	attempt = &models.SettlementAttempt{
		TaskID:               task.ID,
		Signature:            signature,
		Amount:               task.Reward,
		FromAddress:          payer.String(),
		ToAddress:            to.String(),
		LastValidBlockHeight: lastValid,
	}
	// recorded before submission so a transfer that lands after a crash is still found
	if err := s.attempts.SaveSettlementAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"signature": signature,
		"lamports":  task.Reward,
		"to":        to.String(),
	})
	log.Info("💸 Submitting custody transfer")

	// a submit error may hide a transfer that reached the node, so the attempt
	// stays until its blockhash expires
	if _, err := s.client.Submit(ctx, tx); err != nil {
		log.WithError(err).Warn("Custody transfer submission failed")
		return nil, apperrors.Settlement(err, "submit transfer %s", signature)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	status, err := ledger.AwaitConfirmation(waitCtx, s.client, signature, lastValid, s.policy)
	switch status {
	case ledger.StatusConfirmed:
		log.Info("✅ Custody transfer confirmed")
		return settlementFromAttempt(attempt), nil
	case ledger.StatusFailed:
		log.Warn("❌ Custody transfer failed")
		if derr := s.attempts.DeleteSettlementAttempt(context.WithoutCancel(ctx), task.ID); derr != nil {
			log.WithError(derr).Warn("Failed to discard settlement attempt")
		}
		return nil, apperrors.Settlement(nil, "transfer %s failed on the ledger", signature)
	}
	log.Warn("⏳ Custody transfer not confirmed in time")
	return nil, apperrors.Settlement(err, "transfer %s not confirmed yet, retry the approval to reconcile", signature)
}

// CheckAttempt one status check of an open attempt. Attempts that can no
// longer land are discarded and reported as Failed.
func (s *SettlementService) CheckAttempt(ctx context.Context, attempt *models.SettlementAttempt) (ledger.ConfirmationStatus, error) {
	if s.client == nil {
		return ledger.StatusPending, apperrors.Settlement(nil, "no ledger client configured")
	}
	// height is read first: a Pending status observed after expiry is final
	expired := false
	if attempt.LastValidBlockHeight > 0 {
		height, herr := s.client.BlockHeight(ctx)
		expired = herr == nil && height > attempt.LastValidBlockHeight
	}
	status, err := s.client.Confirm(ctx, attempt.Signature)
	if err != nil {
		return ledger.StatusPending, apperrors.Settlement(err, "check transfer %s", attempt.Signature)
	}
	if status == ledger.StatusPending && expired {
		status = ledger.StatusFailed
	}
	if status == ledger.StatusFailed {
		if err := s.attempts.DeleteSettlementAttempt(ctx, attempt.TaskID); err != nil {
			return ledger.StatusPending, err
		}
		s.logger.WithFields(logrus.Fields{
			"task_id":   attempt.TaskID,
			"signature": attempt.Signature,
		}).Info("Discarded settlement attempt that can no longer land")
	}
	return status, nil
}

// Balance lamports held by address
func (s *SettlementService) Balance(ctx context.Context, address string) (uint64, error) {
	if s.client == nil {
		return 0, apperrors.Settlement(nil, "no ledger client configured")
	}
	if _, err := ledger.ParsePublicKey(address); err != nil {
		return 0, apperrors.FieldError("address", "must be a base58 ledger address")
	}
	balance, err := s.client.Balance(ctx, address)
	if err != nil {
		return 0, apperrors.Settlement(err, "fetch balance of %s", address)
	}
	if address == s.CustodyAddress() {
		metrics.CustodyBalance.WithLabelValues(address).Set(float64(balance))
	}
	return balance, nil
}

func settlementFromAttempt(a *models.SettlementAttempt) *Settlement {
	return &Settlement{
		Signature:   a.Signature,
		Status:      models.TransactionConfirmed,
		FromAddress: a.FromAddress,
		ToAddress:   a.ToAddress,
		Amount:      a.Amount,
	}
}
