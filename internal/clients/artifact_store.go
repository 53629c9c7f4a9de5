package clients

import (
	"context"
	"encoding/json"
	"fmt"
)

// ArtifactStore content-addressed blob storage for task images and submission payloads
type ArtifactStore interface {
	// Put stores data and returns its content address
	Put(ctx context.Context, name string, data []byte) (string, error)
	// PutJSON marshals v and stores it
	PutJSON(ctx context.Context, name string, v interface{}) (string, error)
}

func marshalArtifact(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	return data, nil
}
