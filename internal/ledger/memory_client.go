package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// MemoryClient in-process ledger used for local development and tests.
// It verifies signatures, applies system transfers to its balance table and
// reports a transaction as confirmed after ConfirmAfter status checks.
type MemoryClient struct {
	mu           sync.Mutex
	height       uint64
	validFor     uint64
	balances     map[PublicKey]uint64
	txs          map[string]*memoryTx
	ConfirmAfter int
	// SubmitErr when set every Submit fails with it
	SubmitErr error
	// Drop accepts submissions but never lands them
	Drop bool
}

type memoryTx struct {
	checks int
	status ConfirmationStatus
}

// NewMemoryClient create an empty ledger
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		height:   1,
		validFor: 150,
		balances: make(map[PublicKey]uint64),
		txs:      make(map[string]*memoryTx),
	}
}

// Fund credits an address
func (m *MemoryClient) Fund(address PublicKey, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] += lamports
}

// Advance moves the block height forward
func (m *MemoryClient) Advance(blocks uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height += blocks
}

// Submissions number of accepted transactions
func (m *MemoryClient) Submissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

func (m *MemoryClient) LatestBlockhash(ctx context.Context) (Blockhash, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var h Blockhash
	binary.LittleEndian.PutUint64(h[:8], m.height)
	return h, m.height + m.validFor, nil
}

func (m *MemoryClient) BlockHeight(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

func (m *MemoryClient) Submit(ctx context.Context, tx *Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	payload := tx.Message.Serialize()
	for i := 0; i < int(tx.Message.Header.NumRequiredSignatures); i++ {
		key := tx.Message.AccountKeys[i]
		if !ed25519.Verify(ed25519.PublicKey(key[:]), payload, tx.Signatures[i][:]) {
			return "", fmt.Errorf("signature verification failed for %s", key)
		}
	}
	id := tx.ID().String()
	if _, seen := m.txs[id]; seen {
		return id, nil
	}
	entry := &memoryTx{status: StatusPending}
	m.txs[id] = entry
	if m.Drop {
		return id, nil
	}
	if err := m.apply(&tx.Message); err != nil {
		entry.status = StatusFailed
		return id, nil
	}
	entry.status = StatusConfirmed
	m.height++
	return id, nil
}

func (m *MemoryClient) apply(msg *Message) error {
	for _, ix := range msg.Instructions {
		if msg.AccountKeys[ix.ProgramIDIndex] != SystemProgram {
			continue
		}
		if len(ix.Data) != 12 || binary.LittleEndian.Uint32(ix.Data[:4]) != systemTransferIndex || len(ix.Accounts) != 2 {
			return errors.New("unsupported system instruction")
		}
		amount := binary.LittleEndian.Uint64(ix.Data[4:])
		from := msg.AccountKeys[ix.Accounts[0]]
		to := msg.AccountKeys[ix.Accounts[1]]
		if m.balances[from] < amount {
			return errors.New("insufficient funds")
		}
		m.balances[from] -= amount
		m.balances[to] += amount
	}
	return nil
}

func (m *MemoryClient) Confirm(ctx context.Context, signature string) (ConfirmationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.txs[signature]
	if !ok {
		return StatusPending, nil
	}
	entry.checks++
	if entry.status == StatusConfirmed && entry.checks <= m.ConfirmAfter {
		return StatusPending, nil
	}
	return entry.status, nil
}

func (m *MemoryClient) Balance(ctx context.Context, address string) (uint64, error) {
	pk, err := ParsePublicKey(address)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[pk], nil
}

// Land confirms a dropped transaction, simulating a late confirmation
func (m *MemoryClient) Land(signature string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.txs[signature]; ok {
		entry.status = StatusConfirmed
	}
}
