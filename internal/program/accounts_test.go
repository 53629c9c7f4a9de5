package program

import (
	"testing"

	"datalabel-backend/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccounts = Accounts{Provider: "provider", Worker: "worker", Task: "task"}

func TestAccountMetasMatchProgramLayout(t *testing.T) {
	system := AccountMeta{PublicKey: SystemProgramID}
	tests := []struct {
		op   Opcode
		want []AccountMeta
	}{
		{OpCreateTask, []AccountMeta{
			{PublicKey: "provider", IsSigner: true, IsWritable: true},
			{PublicKey: "task", IsWritable: true},
			system,
		}},
		{OpAcceptTask, []AccountMeta{
			{PublicKey: "worker", IsSigner: true, IsWritable: true},
			{PublicKey: "task", IsWritable: true},
			system,
		}},
		{OpSubmitTask, []AccountMeta{
			{PublicKey: "worker", IsSigner: true, IsWritable: true},
			{PublicKey: "task", IsWritable: true},
			system,
		}},
		{OpApproveTask, []AccountMeta{
			{PublicKey: "provider", IsSigner: true, IsWritable: true},
			{PublicKey: "worker", IsWritable: true},
			{PublicKey: "task", IsWritable: true},
			system,
		}},
		{OpRejectTask, []AccountMeta{
			{PublicKey: "provider", IsSigner: true, IsWritable: true},
			{PublicKey: "task", IsWritable: true},
			system,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, err := AccountMetas(tt.op, testAccounts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccountMetasMissingParticipants(t *testing.T) {
	_, err := AccountMetas(OpApproveTask, Accounts{Provider: "p", Task: "t"})
	assert.Equal(t, apperrors.KindCodec, apperrors.KindOf(err))

	_, err = AccountMetas(OpSubmitTask, Accounts{Provider: "p", Task: "t"})
	assert.Equal(t, apperrors.KindCodec, apperrors.KindOf(err))

	_, err = AccountMetas(OpCreateTask, Accounts{Provider: "p"})
	assert.Equal(t, apperrors.KindCodec, apperrors.KindOf(err))
}

func TestBuild(t *testing.T) {
	ix, err := Build("", RejectTask{Reason: "blurry"}, testAccounts)
	require.NoError(t, err)
	assert.Equal(t, DefaultProgramID, ix.ProgramID)
	assert.Equal(t, []byte{4, 6, 'b', 'l', 'u', 'r', 'r', 'y'}, ix.Data)
	assert.Len(t, ix.Keys, 3)
}

func TestTaskAccountDeterministic(t *testing.T) {
	a := TaskAccount(DefaultProgramID, "task-1")
	assert.Equal(t, a, TaskAccount(DefaultProgramID, "task-1"))
	assert.NotEqual(t, a, TaskAccount(DefaultProgramID, "task-2"))
}

func TestTaskDigestChangesWithReward(t *testing.T) {
	d := TaskData{ID: "t1", Title: "Label cats", Reward: 10_000_000, ProviderID: "p"}
	h1, err := TaskDigest(d)
	require.NoError(t, err)
	d.Reward++
	h2, err := TaskDigest(d)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
