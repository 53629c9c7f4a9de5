package program

import (
	"crypto/sha256"
	"strings"
	"testing"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTaskRoundTrip(t *testing.T) {
	reward, err := utils.ParseLamports("0.01")
	require.NoError(t, err)
	h := Hash(sha256.Sum256([]byte("task data")))

	data, err := Encode(CreateTask{Reward: uint64(reward), TaskHash: h})
	require.NoError(t, err)
	require.Len(t, data, 41)
	assert.Equal(t, byte(OpCreateTask), data[0])
	// 10_000_000 = 0x989680 little endian
	assert.Equal(t, []byte{0x80, 0x96, 0x98, 0, 0, 0, 0, 0}, data[1:9])

	ix, err := Decode(data)
	require.NoError(t, err)
	got, ok := ix.(CreateTask)
	require.True(t, ok)
	assert.Equal(t, uint64(10_000_000), got.Reward)
	assert.Equal(t, h, got.TaskHash)
	assert.Equal(t, "0.01", utils.FromLamports(int64(got.Reward)).String())
}

func TestEncodeDecodeAllKinds(t *testing.T) {
	var h Hash
	for i := range h {
		h[i] = byte(i)
	}
	tests := []struct {
		ix      Instruction
		wantLen int
	}{
		{CreateTask{Reward: 1, TaskHash: h}, 41},
		{AcceptTask{}, 1},
		{SubmitTask{SubmissionHash: h}, 33},
		{ApproveTask{}, 1},
		{RejectTask{Reason: "blurry"}, 8},
		{RejectTask{Reason: ""}, 2},
		{RejectTask{Reason: "bördë"}, 2 + len("bördë")},
	}
	for _, tt := range tests {
		t.Run(tt.ix.Opcode().String(), func(t *testing.T) {
			data, err := Encode(tt.ix)
			require.NoError(t, err)
			assert.Len(t, data, tt.wantLen)
			assert.Equal(t, byte(tt.ix.Opcode()), data[0])

			back, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.ix, back)
		})
	}
}

func TestRejectTaskReasonLimit(t *testing.T) {
	_, err := Encode(RejectTask{Reason: strings.Repeat("x", MaxReasonLength)})
	require.NoError(t, err)

	_, err = Encode(RejectTask{Reason: strings.Repeat("x", MaxReasonLength+1)})
	assert.Equal(t, apperrors.KindCodec, apperrors.KindOf(err))

	_, err = Encode(RejectTask{Reason: string([]byte{0xff, 0xfe})})
	assert.Equal(t, apperrors.KindCodec, apperrors.KindOf(err))
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unknown opcode", []byte{9}},
		{"create short", append([]byte{0}, make([]byte, 39)...)},
		{"create long", append([]byte{0}, make([]byte, 41)...)},
		{"accept trailing", []byte{1, 0}},
		{"submit short", append([]byte{2}, make([]byte, 31)...)},
		{"approve trailing", []byte{3, 1, 2}},
		{"reject no length", []byte{4}},
		{"reject length exceeds buffer", []byte{4, 10, 'a', 'b'}},
		{"reject max length on tiny buffer", []byte{4, 255}},
		{"reject trailing bytes", []byte{4, 1, 'a', 'b'}},
		{"reject invalid utf8", []byte{4, 2, 0xff, 0xfe}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := Decode(tt.data)
			require.Error(t, err)
			assert.Nil(t, ix)
			assert.Equal(t, apperrors.KindCodec, apperrors.KindOf(err))
		})
	}
}

func TestDecodeDoesNotAliasInput(t *testing.T) {
	data, err := Encode(SubmitTask{SubmissionHash: Hash{1, 2, 3}})
	require.NoError(t, err)
	ix, err := Decode(data)
	require.NoError(t, err)

	data[1] = 0xAA
	assert.Equal(t, byte(1), ix.(SubmitTask).SubmissionHash[0])
}
