// Package program encodes and decodes the data-label program's instruction set.
//
// Every instruction starts with a one byte opcode. Integer fields are little
// endian; rewards are lamports so no floating point value ever reaches the wire.
package program

import (
	"encoding/binary"
	"unicode/utf8"

	"datalabel-backend/internal/apperrors"
)

// Opcode instruction discriminator
type Opcode uint8

const (
	OpCreateTask  Opcode = 0
	OpAcceptTask  Opcode = 1
	OpSubmitTask  Opcode = 2
	OpApproveTask Opcode = 3
	OpRejectTask  Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpCreateTask:
		return "CreateTask"
	case OpAcceptTask:
		return "AcceptTask"
	case OpSubmitTask:
		return "SubmitTask"
	case OpApproveTask:
		return "ApproveTask"
	case OpRejectTask:
		return "RejectTask"
	}
	return "Unknown"
}

const (
	// HashSize task and submission digests are sha256
	HashSize = 32
	// MaxReasonLength reason length is carried in a single byte
	MaxReasonLength = 255

	createTaskSize = 1 + 8 + HashSize
	submitTaskSize = 1 + HashSize
)

// Hash 32-byte content digest
type Hash [HashSize]byte

// Instruction one of CreateTask, AcceptTask, SubmitTask, ApproveTask, RejectTask
type Instruction interface {
	Opcode() Opcode
}

// CreateTask registers a task and escrows its reward
type CreateTask struct {
	Reward   uint64 // lamports
	TaskHash Hash
}

// AcceptTask binds the signing worker to the task
type AcceptTask struct{}

// SubmitTask commits the worker's submission digest
type SubmitTask struct {
	SubmissionHash Hash
}

// ApproveTask releases the escrowed reward to the worker
type ApproveTask struct{}

// RejectTask returns the task to the pool with a reason
type RejectTask struct {
	Reason string
}

func (CreateTask) Opcode() Opcode  { return OpCreateTask }
func (AcceptTask) Opcode() Opcode  { return OpAcceptTask }
func (SubmitTask) Opcode() Opcode  { return OpSubmitTask }
func (ApproveTask) Opcode() Opcode { return OpApproveTask }
func (RejectTask) Opcode() Opcode  { return OpRejectTask }

// Encode serializes an instruction into its wire layout
func Encode(ix Instruction) ([]byte, error) {
	switch v := ix.(type) {
	case CreateTask:
		buf := make([]byte, createTaskSize)
		buf[0] = byte(OpCreateTask)
		binary.LittleEndian.PutUint64(buf[1:9], v.Reward)
		copy(buf[9:], v.TaskHash[:])
		return buf, nil
	case AcceptTask:
		return []byte{byte(OpAcceptTask)}, nil
	case SubmitTask:
		buf := make([]byte, submitTaskSize)
		buf[0] = byte(OpSubmitTask)
		copy(buf[1:], v.SubmissionHash[:])
		return buf, nil
	case ApproveTask:
		return []byte{byte(OpApproveTask)}, nil
	case RejectTask:
		reason := []byte(v.Reason)
		if len(reason) > MaxReasonLength {
			return nil, apperrors.Codec("reject reason is %d bytes, limit is %d", len(reason), MaxReasonLength)
		}
		if !utf8.Valid(reason) {
			return nil, apperrors.Codec("reject reason is not valid UTF-8")
		}
		buf := make([]byte, 2+len(reason))
		buf[0] = byte(OpRejectTask)
		buf[1] = byte(len(reason))
		copy(buf[2:], reason)
		return buf, nil
	case nil:
		return nil, apperrors.Codec("nil instruction")
	}
	return nil, apperrors.Codec("unsupported instruction %T", ix)
}

// Decode parses a wire buffer. The buffer length must match the opcode's shape exactly.
func Decode(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, apperrors.Codec("empty instruction buffer")
	}
	op := Opcode(data[0])
	switch op {
	case OpCreateTask:
		if err := expectLen(op, data, createTaskSize); err != nil {
			return nil, err
		}
		ix := CreateTask{Reward: binary.LittleEndian.Uint64(data[1:9])}
		copy(ix.TaskHash[:], data[9:])
		return ix, nil
	case OpAcceptTask:
		if err := expectLen(op, data, 1); err != nil {
			return nil, err
		}
		return AcceptTask{}, nil
	case OpSubmitTask:
		if err := expectLen(op, data, submitTaskSize); err != nil {
			return nil, err
		}
		var ix SubmitTask
		copy(ix.SubmissionHash[:], data[1:])
		return ix, nil
	case OpApproveTask:
		if err := expectLen(op, data, 1); err != nil {
			return nil, err
		}
		return ApproveTask{}, nil
	case OpRejectTask:
		if len(data) < 2 {
			return nil, apperrors.Codec("%s: missing reason length", op)
		}
		declared := int(data[1])
		rest := data[2:]
		if declared > len(rest) {
			return nil, apperrors.Codec("%s: reason length %d exceeds remaining %d bytes", op, declared, len(rest))
		}
		if declared < len(rest) {
			return nil, apperrors.Codec("%s: %d trailing bytes after reason", op, len(rest)-declared)
		}
		if !utf8.Valid(rest) {
			return nil, apperrors.Codec("%s: reason is not valid UTF-8", op)
		}
		return RejectTask{Reason: string(rest)}, nil
	}
	return nil, apperrors.Codec("unknown opcode %d", data[0])
}

func expectLen(op Opcode, data []byte, want int) error {
	if len(data) != want {
		return apperrors.Codec("%s: expected %d bytes, got %d", op, want, len(data))
	}
	return nil
}
