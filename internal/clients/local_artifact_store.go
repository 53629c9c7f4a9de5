package clients

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/metrics"
)

// LocalURIPrefix scheme of references produced by LocalArtifactStore
const LocalURIPrefix = "sha256://"

// LocalArtifactStore content-addressed store on the local filesystem, used
// when no IPFS node is configured. An empty dir keeps blobs in memory.
type LocalArtifactStore struct {
	dir   string
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewLocalArtifactStore create a store rooted at dir
func NewLocalArtifactStore(dir string) (*LocalArtifactStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return &LocalArtifactStore{dir: dir, blobs: make(map[string][]byte)}, nil
}

func (s *LocalArtifactStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.StoreUnavailable(err, "artifact store upload cancelled")
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	if s.dir != "" {
		path := filepath.Join(s.dir, digest)
		if _, err := os.Stat(path); err != nil {
			if err := os.WriteFile(path, data, 0o644); err != nil {
				metrics.ArtifactUploads.WithLabelValues("local", "error").Inc()
				return "", apperrors.StoreUnavailable(err, "artifact store upload failed")
			}
		}
	} else {
		s.mu.Lock()
		s.blobs[digest] = append([]byte(nil), data...)
		s.mu.Unlock()
	}
	metrics.ArtifactUploads.WithLabelValues("local", "success").Inc()
	return LocalURIPrefix + digest, nil
}

func (s *LocalArtifactStore) PutJSON(ctx context.Context, name string, v interface{}) (string, error) {
	data, err := marshalArtifact(v)
	if err != nil {
		return "", apperrors.Internal(err, "encode artifact")
	}
	return s.Put(ctx, name, data)
}

// Get reads a blob back by reference
func (s *LocalArtifactStore) Get(ref string) ([]byte, error) {
	digest := strings.TrimPrefix(ref, LocalURIPrefix)
	if _, err := hex.DecodeString(digest); err != nil || len(digest) != sha256.Size*2 {
		return nil, apperrors.Validation(nil, "invalid artifact reference %q", ref)
	}
	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, digest))
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound("artifact %s not found", ref)
		}
		return data, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[digest]
	if !ok {
		return nil, apperrors.NotFound("artifact %s not found", ref)
	}
	return append([]byte(nil), data...), nil
}
