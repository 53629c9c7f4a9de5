package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/clients"
	"datalabel-backend/internal/models"
	"datalabel-backend/internal/program"
	"datalabel-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxAnnotations  = 1000
	maxLabelLength  = 100
	maxNotesLength  = 4000
	maxImageBytes   = 10 << 20
	submissionImage = "result"
)

// SubmitInput worker output for a task
type SubmitInput struct {
	Annotations []models.Annotation
	Notes       string
	// ResultImageBase64 optional annotated image, raw base64 or a data URL
	ResultImageBase64 string
}

// submissionPayload document uploaded to the artifact store for every submission
type submissionPayload struct {
	Annotations []models.Annotation `json:"annotations"`
	Notes       string              `json:"notes"`
	TaskID      string              `json:"taskId"`
	WorkerID    string              `json:"workerId"`
	Timestamp   string              `json:"timestamp"`
}

func payloadOf(sub *models.Submission) submissionPayload {
	return submissionPayload{
		Annotations: sub.Annotations,
		Notes:       sub.Notes,
		TaskID:      sub.TaskID,
		WorkerID:    sub.WorkerID,
		Timestamp:   sub.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// SubmissionService owns submission records, one per task
type SubmissionService struct {
	store     repository.SubmissionRepository
	artifacts clients.ArtifactStore
	logger    *logrus.Logger
}

func NewSubmissionService(store repository.SubmissionRepository, artifacts clients.ArtifactStore, logger *logrus.Logger) *SubmissionService {
	return &SubmissionService{store: store, artifacts: artifacts, logger: logger}
}

// Prepare validates the input and uploads its artifacts. The returned
// submission is not stored yet.
func (s *SubmissionService) Prepare(ctx context.Context, taskID, worker string, in SubmitInput) (*models.Submission, error) {
	annotations, err := normalizeAnnotations(in.Annotations)
	if err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLength {
		return nil, apperrors.FieldError("notes", fmt.Sprintf("at most %d characters", maxNotesLength))
	}

	sub := &models.Submission{
		TaskID:      taskID,
		WorkerID:    worker,
		Annotations: annotations,
		Notes:       notes,
		// postgres keeps microseconds, the payload digest must survive a round trip
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	if in.ResultImageBase64 != "" {
		image, err := decodeImage("result_image", in.ResultImageBase64)
		if err != nil {
			return nil, err
		}
		ref, err := s.artifacts.Put(ctx, fmt.Sprintf("%s-%s.png", submissionImage, taskID), image)
		if err != nil {
			return nil, err
		}
		sub.ResultArtifactReference = ref
	}

	ref, err := s.artifacts.PutJSON(ctx, fmt.Sprintf("submission-%s.json", taskID), payloadOf(sub))
	if err != nil {
		return nil, err
	}
	sub.ArtifactReference = ref

	s.logger.WithFields(logrus.Fields{
		"task_id":     taskID,
		"worker":      worker,
		"annotations": len(annotations),
		"artifact":    ref,
	}).Debug("Submission artifacts uploaded")
	return sub, nil
}

// Create stores sub; fails with InvalidState when the task already has one
func (s *SubmissionService) Create(ctx context.Context, sub *models.Submission) error {
	return s.store.CreateSubmission(ctx, sub)
}

func (s *SubmissionService) Get(ctx context.Context, taskID string) (*models.Submission, error) {
	return s.store.GetSubmission(ctx, taskID)
}

// Delete no-op when the task has no submission
func (s *SubmissionService) Delete(ctx context.Context, taskID string) error {
	return s.store.DeleteSubmission(ctx, taskID)
}

// AttachSettlement records the transfer that paid for the submission
func (s *SubmissionService) AttachSettlement(ctx context.Context, taskID, signature string) error {
	if signature == "" {
		return apperrors.FieldError("signature", "required")
	}
	return s.store.AttachSettlement(ctx, taskID, signature)
}

// Digest SubmitTask hash of a stored submission
func (s *SubmissionService) Digest(sub *models.Submission) (program.Hash, error) {
	raw, err := json.Marshal(payloadOf(sub))
	if err != nil {
		return program.Hash{}, fmt.Errorf("marshal submission payload: %w", err)
	}
	return program.SubmissionDigest(raw), nil
}

func normalizeAnnotations(in []models.Annotation) ([]models.Annotation, error) {
	if len(in) > maxAnnotations {
		return nil, apperrors.FieldError("annotations", fmt.Sprintf("at most %d annotations", maxAnnotations))
	}
	fields := make(map[string]string)
	seen := make(map[string]bool, len(in))
	out := make([]models.Annotation, 0, len(in))
	for i, a := range in {
		key := fmt.Sprintf("annotations[%d]", i)
		a.Label = strings.TrimSpace(a.Label)
		switch {
		case a.Label == "":
			fields[key+".label"] = "required"
		case len(a.Label) > maxLabelLength:
			fields[key+".label"] = fmt.Sprintf("at most %d characters", maxLabelLength)
		}
		for name, v := range map[string]float64{"x": a.X, "y": a.Y, "width": a.Width, "height": a.Height} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				fields[key+"."+name] = "must be a finite number"
			}
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if seen[a.ID] {
			fields[key+".id"] = "duplicate id"
		}
		seen[a.ID] = true
		out = append(out, a.Normalize())
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation(fields, "invalid annotations")
	}
	return out, nil
}
