package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"testing"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/clients"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubmissionService(t *testing.T) (*SubmissionService, *clients.LocalArtifactStore) {
	t.Helper()
	artifacts, err := clients.NewLocalArtifactStore("")
	require.NoError(t, err)
	return NewSubmissionService(repository.NewMemoryStore(), artifacts, quietLogger()), artifacts
}

func TestPrepareNormalizesAnnotations(t *testing.T) {
	s, artifacts := newSubmissionService(t)

	sub, err := s.Prepare(context.Background(), "task-1", "worker-1", SubmitInput{
		Annotations: []models.Annotation{
			{X: 50, Y: 40, Width: -20, Height: -10, Label: "  car "},
			{ID: "fixed", X: 1, Y: 1, Width: 2, Height: 2, Label: "bus"},
		},
		Notes: "  two boxes ",
	})
	require.NoError(t, err)

	require.Len(t, sub.Annotations, 2)
	first := sub.Annotations[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "car", first.Label)
	assert.Equal(t, 30.0, first.X)
	assert.Equal(t, 30.0, first.Y)
	assert.Equal(t, 20.0, first.Width)
	assert.Equal(t, 10.0, first.Height)
	assert.Equal(t, "fixed", sub.Annotations[1].ID)
	assert.Equal(t, "two boxes", sub.Notes)
	assert.Empty(t, sub.ResultArtifactReference)

	raw, err := artifacts.Get(sub.ArtifactReference)
	require.NoError(t, err)
	var payload submissionPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "task-1", payload.TaskID)
	assert.Equal(t, "worker-1", payload.WorkerID)
	assert.Equal(t, sub.Annotations, payload.Annotations)
}

func TestPrepareUploadsResultImage(t *testing.T) {
	s, artifacts := newSubmissionService(t)
	image := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}

	sub, err := s.Prepare(context.Background(), "task-1", "worker-1", SubmitInput{
		Annotations:       annotations("car"),
		ResultImageBase64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
	})
	require.NoError(t, err)
	require.NotEmpty(t, sub.ResultArtifactReference)

	stored, err := artifacts.Get(sub.ResultArtifactReference)
	require.NoError(t, err)
	assert.Equal(t, image, stored)
}

func TestPrepareRejectsInvalidInput(t *testing.T) {
	s, _ := newSubmissionService(t)
	ctx := context.Background()

	cases := map[string]SubmitInput{
		"empty label":    {Annotations: []models.Annotation{{Label: " "}}},
		"duplicate id":   {Annotations: []models.Annotation{{ID: "a", Label: "x"}, {ID: "a", Label: "y"}}},
		"nan coordinate": {Annotations: []models.Annotation{{X: math.NaN(), Label: "x"}}},
		"inf extent":     {Annotations: []models.Annotation{{Width: math.Inf(1), Label: "x"}}},
		"bad image":      {Annotations: annotations("x"), ResultImageBase64: "%%%"},
		"plain data url": {Annotations: annotations("x"), ResultImageBase64: "data:image/png,abc"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Prepare(ctx, "task-1", "worker-1", in)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}

func TestSubmissionDigestStable(t *testing.T) {
	s, _ := newSubmissionService(t)
	ctx := context.Background()
	sub, err := s.Prepare(ctx, "task-1", "worker-1", SubmitInput{Annotations: annotations("car", "bus")})
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, sub))

	stored, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	a, err := s.Digest(sub)
	require.NoError(t, err)
	b, err := s.Digest(stored)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	stored.Notes = "changed"
	c, err := s.Digest(stored)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSubmissionCreateDeleteAttach(t *testing.T) {
	s, _ := newSubmissionService(t)
	ctx := context.Background()
	sub, err := s.Prepare(ctx, "task-1", "worker-1", SubmitInput{Annotations: annotations("car")})
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, sub))

	assert.Error(t, s.Create(ctx, sub))

	err = s.AttachSettlement(ctx, "task-1", "")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	require.NoError(t, s.AttachSettlement(ctx, "task-1", "sig"))
	got, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, got.SettlementSignature)
	assert.Equal(t, "sig", *got.SettlementSignature)

	require.NoError(t, s.Delete(ctx, "task-1"))
	require.NoError(t, s.Delete(ctx, "task-1"))
	_, err = s.Get(ctx, "task-1")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestDecodeImage(t *testing.T) {
	data, err := decodeImage("image", base64.StdEncoding.EncodeToString([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	data, err = decodeImage("image", " data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString([]byte("jpg"))+" ")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpg"), data)

	_, err = decodeImage("image", "")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	huge := make([]byte, maxImageBytes+3)
	_, err = decodeImage("image", base64.StdEncoding.EncodeToString(huge))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
