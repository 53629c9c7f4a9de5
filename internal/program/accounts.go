package program

import (
	"datalabel-backend/internal/apperrors"
)

const (
	// DefaultProgramID address of the deployed data-label program
	DefaultProgramID = "DataLabe1111111111111111111111111111111111111"
	// SystemProgramID native system program
	SystemProgramID = "11111111111111111111111111111111"
)

// AccountMeta one account reference of an instruction
type AccountMeta struct {
	PublicKey  string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Accounts participants an instruction may reference
type Accounts struct {
	Provider string
	Worker   string
	Task     string
}

// TransactionInstruction program id, ordered accounts and encoded data
type TransactionInstruction struct {
	ProgramID string        `json:"program_id"`
	Keys      []AccountMeta `json:"keys"`
	Data      []byte        `json:"data"`
}

// AccountMetas returns the account list the program expects for op, in order.
// The order and flags are part of the program's interface.
func AccountMetas(op Opcode, acc Accounts) ([]AccountMeta, error) {
	system := AccountMeta{PublicKey: SystemProgramID}
	task := AccountMeta{PublicKey: acc.Task, IsWritable: true}
	if acc.Task == "" {
		return nil, apperrors.Codec("%s: task account required", op)
	}

	switch op {
	case OpCreateTask, OpRejectTask:
		if acc.Provider == "" {
			return nil, apperrors.Codec("%s: provider account required", op)
		}
		return []AccountMeta{
			{PublicKey: acc.Provider, IsSigner: true, IsWritable: true},
			task,
			system,
		}, nil
	case OpAcceptTask, OpSubmitTask:
		if acc.Worker == "" {
			return nil, apperrors.Codec("%s: worker account required", op)
		}
		return []AccountMeta{
			{PublicKey: acc.Worker, IsSigner: true, IsWritable: true},
			task,
			system,
		}, nil
	case OpApproveTask:
		if acc.Provider == "" || acc.Worker == "" {
			return nil, apperrors.Codec("%s: provider and worker accounts required", op)
		}
		return []AccountMeta{
			{PublicKey: acc.Provider, IsSigner: true, IsWritable: true},
			{PublicKey: acc.Worker, IsWritable: true},
			task,
			system,
		}, nil
	}
	return nil, apperrors.Codec("unknown opcode %d", uint8(op))
}

// Build encodes ix and attaches its account list
func Build(programID string, ix Instruction, acc Accounts) (*TransactionInstruction, error) {
	if ix == nil {
		return nil, apperrors.Codec("nil instruction")
	}
	data, err := Encode(ix)
	if err != nil {
		return nil, err
	}
	keys, err := AccountMetas(ix.Opcode(), acc)
	if err != nil {
		return nil, err
	}
	if programID == "" {
		programID = DefaultProgramID
	}
	return &TransactionInstruction{ProgramID: programID, Keys: keys, Data: data}, nil
}
