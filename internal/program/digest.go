package program

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// TaskData fields committed by the CreateTask digest
type TaskData struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Reward            int64  `json:"reward"`
	ProviderID        string `json:"provider_id"`
	ArtifactReference string `json:"artifact_reference"`
}

// TaskDigest sha256 over the canonical JSON of the task data
func TaskDigest(d TaskData) (Hash, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return Hash{}, fmt.Errorf("marshal task data: %w", err)
	}
	return sha256.Sum256(raw), nil
}

// SubmissionDigest sha256 over the submission payload bytes
func SubmissionDigest(payload []byte) Hash {
	return sha256.Sum256(payload)
}

// TaskAccount deterministic account address for a task under the given program
func TaskAccount(programID, taskID string) string {
	sum := sha256.Sum256([]byte(programID + ":task:" + taskID))
	return base58.Encode(sum[:])
}
