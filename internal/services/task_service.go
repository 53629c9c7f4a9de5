package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/clients"
	"datalabel-backend/internal/events"
	"datalabel-backend/internal/ledger"
	"datalabel-backend/internal/metrics"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/program"
	"datalabel-backend/internal/repository"
	"datalabel-backend/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	minTitleLength       = 3
	maxTitleLength       = 100
	minDescriptionLength = 10
	maxDescriptionLength = 5000
	maxArtifactRefLength = 128
)

// CreateTaskInput provider request for a new task
type CreateTaskInput struct {
	Title       string
	Description string
	Reward      decimal.Decimal
	// ImageBase64 source image, raw base64 or a data URL
	ImageBase64 string
	// ArtifactReference existing content address, used when no image is sent
	ArtifactReference string
}

// UpdateCommand task edit; ProviderEdit or WorkerStatusEdit
type UpdateCommand interface {
	isUpdateCommand()
}

// ProviderEdit owner edit. Nil fields are left unchanged; an empty WorkerID clears the worker.
type ProviderEdit struct {
	Title       *string
	Description *string
	Reward      *decimal.Decimal
	Status      *models.TaskLifecycleStatus
	WorkerID    *string
}

// WorkerStatusEdit status change by the task's worker
type WorkerStatusEdit struct {
	Status models.TaskLifecycleStatus
}

func (ProviderEdit) isUpdateCommand()     {}
func (WorkerStatusEdit) isUpdateCommand() {}

// InstructionKind program instruction a client can ask to have built
type InstructionKind string

const (
	InstructionCreate  InstructionKind = "create"
	InstructionAccept  InstructionKind = "accept"
	InstructionSubmit  InstructionKind = "submit"
	InstructionApprove InstructionKind = "approve"
	InstructionReject  InstructionKind = "reject"
)

// TaskService task state machine. Every mutation runs under the task's lock and
// is written with a compare-and-swap on the status it was checked against.
type TaskService struct {
	store       repository.Store
	users       *UserService
	submissions *SubmissionService
	settlement  *SettlementService
	artifacts   clients.ArtifactStore
	publisher   events.Publisher
	locks       *taskLocks
	programID   string
	logger      *logrus.Logger
}

func NewTaskService(
	store repository.Store,
	users *UserService,
	submissions *SubmissionService,
	settlement *SettlementService,
	artifacts clients.ArtifactStore,
	publisher events.Publisher,
	programID string,
	logger *logrus.Logger,
) *TaskService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if programID == "" {
		programID = program.DefaultProgramID
	}
	return &TaskService{
		store:       store,
		users:       users,
		submissions: submissions,
		settlement:  settlement,
		artifacts:   artifacts,
		publisher:   publisher,
		locks:       newTaskLocks(),
		programID:   programID,
		logger:      logger,
	}
}

// SetPublisher replaces the event publisher; call before serving requests
func (s *TaskService) SetPublisher(publisher events.Publisher) {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s.publisher = publisher
}

// caller re-reads the principal's role; the role on p is ignored
func (s *TaskService) caller(ctx context.Context, p auth.Principal) (auth.Principal, error) {
	if !p.Authenticated() {
		return auth.Principal{}, apperrors.Unauthorized("authentication required")
	}
	return s.users.Principal(ctx, p.WalletAddress)
}

func (s *TaskService) rejected(operation string, err error) error {
	if err != nil {
		metrics.TaskOperationRejected.WithLabelValues(operation, string(apperrors.KindOf(err))).Inc()
	}
	return err
}

func (s *TaskService) committed(eventType events.TaskEventType, task *models.Task, previous models.TaskLifecycleStatus, decorate func(*events.TaskEvent)) {
	from := string(previous)
	if from == "" {
		from = "none"
	}
	metrics.TaskTransitions.WithLabelValues(from, string(task.Status)).Inc()

	event := events.NewTaskEvent(eventType, task, previous)
	if decorate != nil {
		decorate(&event)
	}
	s.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"event":   eventType,
		"from":    previous,
		"to":      task.Status,
		"worker":  task.WorkerAddress(),
	}).Info("Task transition committed")
	s.publisher.PublishTaskEvent(context.Background(), event)
}

// CreateTask new AVAILABLE task owned by the calling provider
func (s *TaskService) CreateTask(ctx context.Context, p auth.Principal, in CreateTaskInput) (*models.Task, error) {
	task, err := s.createTask(ctx, p, in)
	return task, s.rejected("create", err)
}

func (s *TaskService) createTask(ctx context.Context, p auth.Principal, in CreateTaskInput) (*models.Task, error) {
	caller, err := s.caller(ctx, p)
	if err != nil {
		return nil, err
	}
	if !caller.IsProvider() {
		return nil, apperrors.Forbidden("only providers can create tasks")
	}

	fields := make(map[string]string)
	title := strings.TrimSpace(in.Title)
	validateTitle(title, fields)
	description := strings.TrimSpace(in.Description)
	validateDescription(description, fields)
	reward, rerr := rewardLamports(in.Reward)
	if rerr != "" {
		fields["reward"] = rerr
	}
	if len(in.ArtifactReference) > maxArtifactRefLength {
		fields["artifact_reference"] = fmt.Sprintf("at most %d characters", maxArtifactRefLength)
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation(fields, "invalid task")
	}

	task := &models.Task{
		ID:                uuid.NewString(),
		Title:             title,
		Description:       description,
		Reward:            reward,
		Status:            models.TaskAvailable,
		ProviderID:        caller.WalletAddress,
		ArtifactReference: strings.TrimSpace(in.ArtifactReference),
	}
	if in.ImageBase64 != "" {
		image, err := decodeImage("image_base64", in.ImageBase64)
		if err != nil {
			return nil, err
		}
		ref, err := s.artifacts.Put(ctx, fmt.Sprintf("task-%s.png", task.ID), image)
		if err != nil {
			return nil, err
		}
		task.ArtifactReference = ref
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	s.committed(events.TaskCreated, task, "", nil)
	return task, nil
}

func validateTitle(title string, fields map[string]string) {
	n := utf8.RuneCountInString(title)
	if n < minTitleLength || n > maxTitleLength {
		fields["title"] = fmt.Sprintf("must be %d to %d characters", minTitleLength, maxTitleLength)
	}
}

func validateDescription(description string, fields map[string]string) {
	n := utf8.RuneCountInString(description)
	if n < minDescriptionLength || n > maxDescriptionLength {
		fields["description"] = fmt.Sprintf("must be %d to %d characters", minDescriptionLength, maxDescriptionLength)
	}
}

// rewardLamports returns a field error message instead of an error
func rewardLamports(reward decimal.Decimal) (int64, string) {
	if !reward.IsPositive() {
		return 0, "must be greater than zero"
	}
	lamports, err := utils.ToLamports(reward)
	if err != nil {
		return 0, err.Error()
	}
	return lamports, ""
}

// ListTasks newest first
func (s *TaskService) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]*models.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.FieldError("status", "unknown task status")
	}
	return s.store.ListTasks(ctx, filter)
}

// GetTask also finishes an approval whose transfer confirmed after the request returned
func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil || task.Status != models.TaskPendingApproval {
		return task, err
	}
	reconciled, err := s.ReconcileSettlement(ctx, id)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"task_id": id, "error": err.Error()}).Warn("Settlement reconciliation on read failed")
		return task, nil
	}
	return reconciled, nil
}

// AcceptTask worker takes an AVAILABLE task
func (s *TaskService) AcceptTask(ctx context.Context, p auth.Principal, id string) (*models.Task, error) {
	task, err := s.acceptTask(ctx, p, id)
	return task, s.rejected("accept", err)
}

func (s *TaskService) acceptTask(ctx context.Context, p auth.Principal, id string) (*models.Task, error) {
	caller, err := s.caller(ctx, p)
	if err != nil {
		return nil, err
	}
	if !caller.IsWorker() {
		return nil, apperrors.Forbidden("only workers can accept tasks")
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskAvailable {
		return nil, apperrors.InvalidState("task %s is %s, only AVAILABLE tasks can be accepted", id, task.Status)
	}
	worker := caller.WalletAddress
	task.Status = models.TaskInProgress
	task.WorkerID = &worker
	if err := s.store.UpdateTask(ctx, task, models.TaskAvailable); err != nil {
		return nil, err
	}
	s.committed(events.TaskAccepted, task, models.TaskAvailable, nil)
	return task, nil
}

// SubmitTask stores the worker's submission and moves the task to PENDING_APPROVAL.
// An IN_PROGRESS task only accepts work from the worker who accepted it.
func (s *TaskService) SubmitTask(ctx context.Context, p auth.Principal, id string, in SubmitInput) (*models.Task, *models.Submission, error) {
	task, sub, err := s.submitTask(ctx, p, id, in)
	return task, sub, s.rejected("submit", err)
}

func (s *TaskService) submitTask(ctx context.Context, p auth.Principal, id string, in SubmitInput) (*models.Task, *models.Submission, error) {
	caller, err := s.caller(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if !caller.IsWorker() {
		return nil, nil, apperrors.Forbidden("only workers can submit work")
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	switch task.Status {
	case models.TaskAvailable:
	case models.TaskInProgress:
		if task.WorkerAddress() != caller.WalletAddress {
			return nil, nil, apperrors.Forbidden("task %s is being worked on by another worker", id)
		}
	default:
		return nil, nil, apperrors.InvalidState("task %s is %s and does not accept submissions", id, task.Status)
	}

	sub, err := s.submissions.Prepare(ctx, id, caller.WalletAddress, in)
	if err != nil {
		return nil, nil, err
	}

	previous := task.Status
	worker := caller.WalletAddress
	task.Status = models.TaskPendingApproval
	task.WorkerID = &worker
	if err := s.store.SubmitWork(ctx, task, previous, sub); err != nil {
		return nil, nil, err
	}
	s.committed(events.TaskSubmitted, task, previous, nil)
	return task, sub, nil
}

// UpdateTask applies a provider or worker edit
func (s *TaskService) UpdateTask(ctx context.Context, p auth.Principal, id string, cmd UpdateCommand) (*models.Task, error) {
	task, err := s.updateTask(ctx, p, id, cmd)
	return task, s.rejected("update", err)
}

func (s *TaskService) updateTask(ctx context.Context, p auth.Principal, id string, cmd UpdateCommand) (*models.Task, error) {
	caller, err := s.caller(ctx, p)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	switch c := cmd.(type) {
	case ProviderEdit:
		if task.ProviderID != caller.WalletAddress {
			return nil, apperrors.Forbidden("only the task's provider can edit it")
		}
		return s.applyProviderEdit(ctx, task, c)
	case WorkerStatusEdit:
		if c.Status != models.TaskInProgress && c.Status != models.TaskPendingApproval {
			return nil, apperrors.Forbidden("workers may only set IN_PROGRESS or PENDING_APPROVAL")
		}
		if task.WorkerID == nil || task.WorkerAddress() != caller.WalletAddress {
			return nil, apperrors.Forbidden("only the task's worker can change its status")
		}
		return s.applyWorkerEdit(ctx, task, c)
	}
	return nil, apperrors.Validation(nil, "unsupported update")
}

func (s *TaskService) applyProviderEdit(ctx context.Context, task *models.Task, e ProviderEdit) (*models.Task, error) {
	if e.Title == nil && e.Description == nil && e.Reward == nil && e.Status == nil && e.WorkerID == nil {
		return nil, apperrors.Validation(nil, "no fields to update")
	}
	if task.Status == models.TaskPendingApproval || task.Status == models.TaskCompleted {
		if e.Reward != nil || e.Status != nil || e.WorkerID != nil {
			return nil, apperrors.InvalidState("only title and description can change while task %s is %s", task.ID, task.Status)
		}
	}

	updated := task.Clone()
	fields := make(map[string]string)
	if e.Title != nil {
		updated.Title = strings.TrimSpace(*e.Title)
		validateTitle(updated.Title, fields)
	}
	if e.Description != nil {
		updated.Description = strings.TrimSpace(*e.Description)
		validateDescription(updated.Description, fields)
	}
	if e.Reward != nil {
		if task.Status != models.TaskAvailable {
			return nil, apperrors.InvalidState("reward can only change while the task is AVAILABLE")
		}
		reward, msg := rewardLamports(*e.Reward)
		if msg != "" {
			fields["reward"] = msg
		}
		updated.Reward = reward
	}
	if e.Status != nil {
		if *e.Status != models.TaskAvailable && *e.Status != models.TaskInProgress {
			fields["status"] = "providers may set AVAILABLE or IN_PROGRESS"
		}
		updated.Status = *e.Status
	}
	if e.WorkerID != nil {
		if *e.WorkerID == "" {
			updated.WorkerID = nil
		} else if worker, err := utils.NormalizeWalletAddress(*e.WorkerID); err != nil {
			fields["worker_id"] = err.Error()
		} else {
			updated.WorkerID = &worker
		}
	}
	if len(fields) == 0 && !updated.WorkerConsistent() {
		fields["worker_id"] = "must be set exactly when status is not AVAILABLE"
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation(fields, "invalid task update")
	}

	if updated.WorkerID != nil && updated.WorkerAddress() != task.WorkerAddress() {
		assignee, err := s.users.Principal(ctx, updated.WorkerAddress())
		if err != nil {
			return nil, err
		}
		if !assignee.IsWorker() {
			return nil, apperrors.FieldError("worker_id", "wallet does not hold the WORKER role")
		}
	}

	if err := s.store.UpdateTask(ctx, updated, task.Status); err != nil {
		return nil, err
	}
	previousWorker := task.WorkerAddress()
	s.committed(events.TaskUpdated, updated, task.Status, func(ev *events.TaskEvent) {
		if previousWorker != updated.WorkerAddress() {
			ev.PreviousWorkerID = previousWorker
		}
	})
	return updated, nil
}

func (s *TaskService) applyWorkerEdit(ctx context.Context, task *models.Task, e WorkerStatusEdit) (*models.Task, error) {
	if e.Status == task.Status {
		return task, nil
	}
	switch {
	case task.Status == models.TaskPendingApproval && e.Status == models.TaskInProgress:
		// withdraw the submission to keep working on it
		task, inFlight, err := s.reconcileLocked(ctx, task)
		if err != nil {
			return nil, err
		}
		if inFlight {
			return nil, apperrors.InvalidState("payment for task %s is in flight", task.ID)
		}
		if task.Status != models.TaskPendingApproval {
			return nil, apperrors.InvalidState("task %s is %s", task.ID, task.Status)
		}
		task.Status = models.TaskInProgress
		if err := s.store.DiscardSubmission(ctx, task, models.TaskPendingApproval); err != nil {
			return nil, err
		}
		s.committed(events.TaskWithdrawn, task, models.TaskPendingApproval, nil)
		return task, nil
	case task.Status == models.TaskInProgress && e.Status == models.TaskPendingApproval:
		return nil, apperrors.InvalidState("submit work to request approval")
	}
	return nil, apperrors.InvalidState("task %s is %s", task.ID, task.Status)
}

// ApproveTask settles the reward and completes the task. presigned is an
// optional transfer signature the provider already submitted. On any error the
// task stays PENDING_APPROVAL.
func (s *TaskService) ApproveTask(ctx context.Context, p auth.Principal, id, presigned string) (*models.Task, *models.LedgerTransaction, error) {
	task, ltx, err := s.approveTask(ctx, p, id, strings.TrimSpace(presigned))
	return task, ltx, s.rejected("approve", err)
}

func (s *TaskService) approveTask(ctx context.Context, p auth.Principal, id, presigned string) (*models.Task, *models.LedgerTransaction, error) {
	caller, err := s.caller(ctx, p)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if task.ProviderID != caller.WalletAddress {
		return nil, nil, apperrors.Forbidden("only the task's provider can approve it")
	}
	if task.Status != models.TaskPendingApproval {
		return nil, nil, apperrors.InvalidState("task %s is %s, only PENDING_APPROVAL tasks can be approved", id, task.Status)
	}
	if task.WorkerID == nil {
		return nil, nil, apperrors.Internal(nil, "task %s is pending approval without a worker", id)
	}

	// a custody transfer from an earlier approval wins over anything new
	reconciled, inFlight, err := s.reconcileLocked(ctx, task)
	if err != nil {
		return nil, nil, err
	}
	if inFlight {
		return nil, nil, apperrors.Settlement(nil, "an earlier transfer for task %s is still pending, retry later", id)
	}
	if reconciled.Status == models.TaskCompleted {
		return reconciled, s.paymentFor(ctx, id), nil
	}

	settlement, err := s.settlement.Settle(ctx, task, presigned)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"task_id": id,
			"mode":    s.settlement.Mode(),
			"error":   err.Error(),
		}).Warn("Settlement did not complete, task stays PENDING_APPROVAL")
		return nil, nil, err
	}
	return s.completeLocked(ctx, task, settlement)
}

// paymentFor the recorded TASK_PAYMENT of a completed task, nil if the lookup fails
func (s *TaskService) paymentFor(ctx context.Context, taskID string) *models.LedgerTransaction {
	txs, err := s.store.ListTransactions(ctx, repository.TransactionFilter{
		TaskID: taskID,
		Type:   models.TransactionTaskPayment,
		Limit:  1,
	})
	if err != nil || len(txs) == 0 {
		return nil
	}
	return txs[0]
}

// completeLocked records a finished settlement. Caller holds the task lock.
func (s *TaskService) completeLocked(ctx context.Context, task *models.Task, settlement *Settlement) (*models.Task, *models.LedgerTransaction, error) {
	done := task.Clone()
	done.Status = models.TaskCompleted
	ltx := &models.LedgerTransaction{
		ID:          uuid.NewString(),
		Type:        models.TransactionTaskPayment,
		Amount:      settlement.Amount,
		Status:      settlement.Status,
		FromAddress: settlement.FromAddress,
		ToAddress:   settlement.ToAddress,
		Signature:   settlement.Signature,
		TaskID:      task.ID,
		Description: "Payment for task: " + task.Title,
	}
	// value has moved, the record is written even if the caller went away
	if err := s.store.CompleteTask(context.WithoutCancel(ctx), done, models.TaskPendingApproval, settlement.Signature, ltx); err != nil {
		s.logger.WithFields(logrus.Fields{
			"task_id":   task.ID,
			"signature": settlement.Signature,
			"error":     err.Error(),
		}).Error("❌ Payment settled but task completion was not recorded")
		return nil, nil, err
	}
	s.committed(events.TaskApproved, done, models.TaskPendingApproval, func(ev *events.TaskEvent) {
		ev.Signature = settlement.Signature
	})
	return done, ltx, nil
}

// RejectTask discards the submission and returns the task to the pool
func (s *TaskService) RejectTask(ctx context.Context, p auth.Principal, id, reason string) (*models.Task, error) {
	task, err := s.rejectTask(ctx, p, id, strings.TrimSpace(reason))
	return task, s.rejected("reject", err)
}

func (s *TaskService) rejectTask(ctx context.Context, p auth.Principal, id, reason string) (*models.Task, error) {
	if reason == "" {
		return nil, apperrors.FieldError("reason", "required")
	}
	if len(reason) > program.MaxReasonLength {
		return nil, apperrors.FieldError("reason", fmt.Sprintf("at most %d bytes", program.MaxReasonLength))
	}
	caller, err := s.caller(ctx, p)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.ProviderID != caller.WalletAddress {
		return nil, apperrors.Forbidden("only the task's provider can reject it")
	}
	task, inFlight, err := s.reconcileLocked(ctx, task)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, apperrors.InvalidState("payment for task %s is in flight and cannot be rejected", id)
	}
	if task.Status != models.TaskPendingApproval {
		return nil, apperrors.InvalidState("task %s is %s, only PENDING_APPROVAL tasks can be rejected", id, task.Status)
	}

	previousWorker := task.WorkerAddress()
	task.Status = models.TaskAvailable
	task.WorkerID = nil
	if err := s.store.DiscardSubmission(ctx, task, models.TaskPendingApproval); err != nil {
		return nil, err
	}
	s.committed(events.TaskRejected, task, models.TaskPendingApproval, func(ev *events.TaskEvent) {
		ev.Reason = reason
		ev.PreviousWorkerID = previousWorker
	})
	return task, nil
}

// DeleteTask removes an AVAILABLE task
func (s *TaskService) DeleteTask(ctx context.Context, p auth.Principal, id string) error {
	return s.rejected("delete", s.deleteTask(ctx, p, id))
}

func (s *TaskService) deleteTask(ctx context.Context, p auth.Principal, id string) error {
	caller, err := s.caller(ctx, p)
	if err != nil {
		return err
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.ProviderID != caller.WalletAddress {
		return apperrors.Forbidden("only the task's provider can delete it")
	}
	if task.Status != models.TaskAvailable {
		return apperrors.InvalidState("task %s is %s, only AVAILABLE tasks can be deleted", id, task.Status)
	}
	if err := s.store.DeleteTask(ctx, id, models.TaskAvailable); err != nil {
		return err
	}
	s.committed(events.TaskDeleted, task, models.TaskAvailable, nil)
	return nil
}

// GetSubmission visible to the task's provider and the submitting worker
func (s *TaskService) GetSubmission(ctx context.Context, p auth.Principal, id string) (*models.Submission, error) {
	if !p.Authenticated() {
		return nil, apperrors.Unauthorized("authentication required")
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.WalletAddress != task.ProviderID && p.WalletAddress != task.WorkerAddress() {
		return nil, apperrors.Forbidden("submission is visible to the task's provider and worker only")
	}
	return s.submissions.Get(ctx, id)
}

// BuildInstruction program instruction for the caller's wallet to sign
func (s *TaskService) BuildInstruction(ctx context.Context, p auth.Principal, id string, kind InstructionKind, reason string) (*program.TransactionInstruction, error) {
	caller, err := s.caller(ctx, p)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	acc := program.Accounts{
		Provider: task.ProviderID,
		Worker:   task.WorkerAddress(),
		Task:     program.TaskAccount(s.programID, task.ID),
	}
	isOwner := task.ProviderID == caller.WalletAddress

	var ix program.Instruction
	switch kind {
	case InstructionCreate:
		if !isOwner {
			return nil, apperrors.Forbidden("only the task's provider can register it")
		}
		hash, err := program.TaskDigest(program.TaskData{
			ID:                task.ID,
			Title:             task.Title,
			Description:       task.Description,
			Reward:            task.Reward,
			ProviderID:        task.ProviderID,
			ArtifactReference: task.ArtifactReference,
		})
		if err != nil {
			return nil, err
		}
		ix = program.CreateTask{Reward: uint64(task.Reward), TaskHash: hash}
	case InstructionAccept:
		if !caller.IsWorker() {
			return nil, apperrors.Forbidden("only workers can accept tasks")
		}
		acc.Worker = caller.WalletAddress
		ix = program.AcceptTask{}
	case InstructionSubmit:
		sub, err := s.submissions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub.WorkerID != caller.WalletAddress {
			return nil, apperrors.Forbidden("only the submitting worker can commit the submission")
		}
		hash, err := s.submissions.Digest(sub)
		if err != nil {
			return nil, err
		}
		acc.Worker = sub.WorkerID
		ix = program.SubmitTask{SubmissionHash: hash}
	case InstructionApprove:
		if !isOwner {
			return nil, apperrors.Forbidden("only the task's provider can approve it")
		}
		if task.WorkerID == nil {
			return nil, apperrors.InvalidState("task %s has no worker to pay", id)
		}
		ix = program.ApproveTask{}
	case InstructionReject:
		if !isOwner {
			return nil, apperrors.Forbidden("only the task's provider can reject it")
		}
		ix = program.RejectTask{Reason: strings.TrimSpace(reason)}
	default:
		return nil, apperrors.FieldError("kind", "must be create, accept, submit, approve or reject")
	}
	return program.Build(s.programID, ix, acc)
}

// HandleLedgerConfirmation applies a confirmation notice from the ledger watcher
func (s *TaskService) HandleLedgerConfirmation(ctx context.Context, notice events.LedgerConfirmation) error {
	task, err := s.ReconcileSettlement(ctx, notice.TaskID)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"task_id":   notice.TaskID,
		"signature": notice.Signature,
		"status":    task.Status,
	}).Debug("Ledger confirmation handled")
	return nil
}

// ReconcileSettlement checks an open settlement attempt for the task and
// completes the task when its transfer has confirmed
func (s *TaskService) ReconcileSettlement(ctx context.Context, id string) (*models.Task, error) {
	unlock := s.locks.acquire(id)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task, _, err = s.reconcileLocked(ctx, task)
	return task, err
}

// reconcileLocked reports inFlight when a transfer for the task may still land.
// Caller holds the task lock.
func (s *TaskService) reconcileLocked(ctx context.Context, task *models.Task) (*models.Task, bool, error) {
	attempt, err := s.store.GetSettlementAttempt(ctx, task.ID)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return task, false, nil
	}
	if err != nil {
		return task, false, err
	}
	if task.Status != models.TaskPendingApproval {
		s.logger.WithFields(logrus.Fields{
			"task_id":   task.ID,
			"status":    task.Status,
			"signature": attempt.Signature,
		}).Warn("Settlement attempt open for a task that is not pending approval")
		return task, false, nil
	}

	status, err := s.settlement.CheckAttempt(ctx, attempt)
	switch status {
	case ledger.StatusConfirmed:
		done, _, err := s.completeLocked(ctx, task, settlementFromAttempt(attempt))
		if err != nil {
			return task, false, err
		}
		return done, false, nil
	case ledger.StatusFailed:
		return task, false, err
	}
	return task, true, err
}
