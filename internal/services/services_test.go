package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"sync"
	"testing"

	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/clients"
	"datalabel-backend/internal/config"
	"datalabel-backend/internal/custody"
	"datalabel-backend/internal/events"
	"datalabel-backend/internal/ledger"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type wallet struct {
	key     ed25519.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return wallet{key: priv, address: ledger.PublicKeyFromEd25519(pub).String()}
}

func (w wallet) principal() auth.Principal {
	// role is deliberately wrong: the engine must load it from the store
	return auth.Principal{WalletAddress: w.address, Role: models.RoleProvider}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TaskEvent
}

func (r *recordingPublisher) PublishTaskEvent(ctx context.Context, event events.TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) types() []events.TaskEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.TaskEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	store       *repository.MemoryStore
	ledger      *ledger.MemoryClient
	artifacts   *clients.LocalArtifactStore
	users       *UserService
	submissions *SubmissionService
	settlement  *SettlementService
	tasks       *TaskService
	published   *recordingPublisher
	custody     wallet
	provider    wallet
	worker      wallet
	worker2     wallet
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSettlementConfig(mode config.SettlementMode) config.SettlementConfig {
	return config.SettlementConfig{
		Mode:            mode,
		AllowManual:     mode == config.SettlementManual,
		ConfirmTimeout:  5,
		PollInitialMs:   1,
		PollMaxMs:       2,
		PollMultiplier:  2,
		PollMaxAttempts: 3,
	}
}

func newHarness(t *testing.T, mode config.SettlementMode) *harness {
	t.Helper()
	logger := quietLogger()
	h := &harness{
		store:     repository.NewMemoryStore(),
		ledger:    ledger.NewMemoryClient(),
		published: &recordingPublisher{},
		custody:   newWallet(t),
		provider:  newWallet(t),
		worker:    newWallet(t),
		worker2:   newWallet(t),
	}
	var err error
	h.artifacts, err = clients.NewLocalArtifactStore("")
	require.NoError(t, err)

	var signer *custody.Signer
	if mode == config.SettlementCustody {
		signer = custody.NewSigner(h.custody.key)
		h.ledger.Fund(signer.PublicKey(), 1_000_000_000)
	}
	h.settlement, err = NewSettlementService(testSettlementConfig(mode), h.ledger, signer, h.store, logger)
	require.NoError(t, err)

	h.users = NewUserService(h.store, logger)
	h.submissions = NewSubmissionService(h.store, h.artifacts, logger)
	h.tasks = NewTaskService(h.store, h.users, h.submissions, h.settlement, h.artifacts, h.published, "", logger)

	ctx := context.Background()
	for w, role := range map[string]models.Role{
		h.provider.address: models.RoleProvider,
		h.worker.address:   models.RoleWorker,
		h.worker2.address:  models.RoleWorker,
	} {
		_, err := h.store.SetRole(ctx, w, role)
		require.NoError(t, err)
	}
	return h
}

func (h *harness) createTask(t *testing.T, reward string) *models.Task {
	t.Helper()
	task, err := h.tasks.CreateTask(context.Background(), h.provider.principal(), CreateTaskInput{
		Title:       "Label cars",
		Description: "Draw a bounding box around every car",
		Reward:      decimal.RequireFromString(reward),
	})
	require.NoError(t, err)
	return task
}

func annotations(labels ...string) []models.Annotation {
	out := make([]models.Annotation, 0, len(labels))
	for i, l := range labels {
		out = append(out, models.Annotation{X: float64(i * 10), Y: 5, Width: 20, Height: 10, Label: l})
	}
	return out
}

func (h *harness) submit(t *testing.T, w wallet, taskID string, labels ...string) *models.Submission {
	t.Helper()
	_, sub, err := h.tasks.SubmitTask(context.Background(), w.principal(), taskID, SubmitInput{Annotations: annotations(labels...)})
	require.NoError(t, err)
	return sub
}

func (h *harness) transactions(t *testing.T, taskID string) []*models.LedgerTransaction {
	t.Helper()
	txs, err := h.store.ListTransactions(context.Background(), repository.TransactionFilter{TaskID: taskID})
	require.NoError(t, err)
	return txs
}

// signedTransfer a provider-signed transfer already submitted to the ledger
func (h *harness) signedTransfer(t *testing.T, from wallet, to string, lamports uint64) string {
	t.Helper()
	ctx := context.Background()
	fromKey, err := ledger.ParsePublicKey(from.address)
	require.NoError(t, err)
	toKey, err := ledger.ParsePublicKey(to)
	require.NoError(t, err)
	h.ledger.Fund(fromKey, lamports)
	blockhash, _, err := h.ledger.LatestBlockhash(ctx)
	require.NoError(t, err)
	msg, err := ledger.NewMessage(fromKey, []ledger.Instruction{ledger.TransferInstruction(fromKey, toKey, lamports)}, blockhash)
	require.NoError(t, err)
	tx := ledger.NewTransaction(msg)
	require.NoError(t, tx.Sign(from.key))
	sig, err := h.ledger.Submit(ctx, tx)
	require.NoError(t, err)
	return sig
}
