package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// systemTransferIndex system program instruction index for a lamport transfer
const systemTransferIndex uint32 = 2

// AccountMeta account reference of an instruction
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction program invocation before compilation
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader signer and read-only account counts
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction instruction with accounts replaced by key indexes
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message legacy transaction message
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

// Transaction signed message
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// TransferInstruction system program transfer of lamports from one account to another
func TransferInstruction(from, to PublicKey, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return Instruction{
		ProgramID: SystemProgram,
		Accounts: []AccountMeta{
			{PublicKey: from, IsSigner: true, IsWritable: true},
			{PublicKey: to, IsWritable: true},
		},
		Data: data,
	}
}

// NewMessage compiles instructions into a message paid for by feePayer.
// Accounts are ordered writable signers, read-only signers, writable
// non-signers, read-only non-signers with the fee payer first.
func NewMessage(feePayer PublicKey, instructions []Instruction, blockhash Blockhash) (*Message, error) {
	if len(instructions) == 0 {
		return nil, errors.New("message needs at least one instruction")
	}

	type entry struct {
		key      PublicKey
		signer   bool
		writable bool
		order    int
	}
	entries := map[PublicKey]*entry{}
	add := func(key PublicKey, signer, writable bool) {
		if e, ok := entries[key]; ok {
			e.signer = e.signer || signer
			e.writable = e.writable || writable
			return
		}
		entries[key] = &entry{key: key, signer: signer, writable: writable, order: len(entries)}
	}

	add(feePayer, true, true)
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			add(acc.PublicKey, acc.IsSigner, acc.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}
	if len(entries) > 256 {
		return nil, fmt.Errorf("too many accounts: %d", len(entries))
	}

	list := make([]*entry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	category := func(e *entry) int {
		switch {
		case e.key == feePayer:
			return -1
		case e.signer && e.writable:
			return 0
		case e.signer:
			return 1
		case e.writable:
			return 2
		default:
			return 3
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		ci, cj := category(list[i]), category(list[j])
		if ci != cj {
			return ci < cj
		}
		return list[i].order < list[j].order
	})

	msg := &Message{RecentBlockhash: blockhash}
	index := make(map[PublicKey]uint8, len(list))
	for i, e := range list {
		index[e.key] = uint8(i)
		msg.AccountKeys = append(msg.AccountKeys, e.key)
		if e.signer {
			msg.Header.NumRequiredSignatures++
			if !e.writable {
				msg.Header.NumReadonlySignedAccounts++
			}
		} else if !e.writable {
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}

	for _, ix := range instructions {
		ci := CompiledInstruction{ProgramIDIndex: index[ix.ProgramID], Data: ix.Data}
		for _, acc := range ix.Accounts {
			ci.Accounts = append(ci.Accounts, index[acc.PublicKey])
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// Serialize wire encoding of the message, the bytes that get signed
func (m *Message) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(m.Header.NumRequiredSignatures)
	buf.WriteByte(m.Header.NumReadonlySignedAccounts)
	buf.WriteByte(m.Header.NumReadonlyUnsignedAccounts)

	buf.Write(appendCompactU16(nil, len(m.AccountKeys)))
	for _, k := range m.AccountKeys {
		buf.Write(k[:])
	}
	buf.Write(m.RecentBlockhash[:])

	buf.Write(appendCompactU16(nil, len(m.Instructions)))
	for _, ix := range m.Instructions {
		buf.WriteByte(ix.ProgramIDIndex)
		buf.Write(appendCompactU16(nil, len(ix.Accounts)))
		buf.Write(ix.Accounts)
		buf.Write(appendCompactU16(nil, len(ix.Data)))
		buf.Write(ix.Data)
	}
	return buf.Bytes()
}

// NewTransaction unsigned transaction around a message
func NewTransaction(msg *Message) *Transaction {
	return &Transaction{
		Signatures: make([]Signature, msg.Header.NumRequiredSignatures),
		Message:    *msg,
	}
}

// Sign fills the signature slot of every required signer
func (tx *Transaction) Sign(keys ...ed25519.PrivateKey) error {
	payload := tx.Message.Serialize()
	byKey := make(map[PublicKey]ed25519.PrivateKey, len(keys))
	for _, k := range keys {
		byKey[PublicKeyFromEd25519(k.Public().(ed25519.PublicKey))] = k
	}
	for i := 0; i < int(tx.Message.Header.NumRequiredSignatures); i++ {
		signer := tx.Message.AccountKeys[i]
		key, ok := byKey[signer]
		if !ok {
			return fmt.Errorf("missing signer %s", signer)
		}
		copy(tx.Signatures[i][:], ed25519.Sign(key, payload))
	}
	return nil
}

// ID first signature, the ledger's transaction identifier
func (tx *Transaction) ID() Signature {
	if len(tx.Signatures) == 0 {
		return Signature{}
	}
	return tx.Signatures[0]
}

// Serialize wire encoding of the signed transaction
func (tx *Transaction) Serialize() []byte {
	out := appendCompactU16(nil, len(tx.Signatures))
	for _, s := range tx.Signatures {
		out = append(out, s[:]...)
	}
	return append(out, tx.Message.Serialize()...)
}

func appendCompactU16(b []byte, n int) []byte {
	for {
		elem := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}
