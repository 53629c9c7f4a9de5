package models

import (
	"time"
)

// Annotation bounding box drawn by a worker
type Annotation struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label"`
	Color  string  `json:"color,omitempty"`
}

// Normalize folds negative width/height into the origin so the box is stored with non-negative extents
func (a Annotation) Normalize() Annotation {
	if a.Width < 0 {
		a.X += a.Width
		a.Width = -a.Width
	}
	if a.Height < 0 {
		a.Y += a.Height
		a.Height = -a.Height
	}
	return a
}

// Submission worker output for a task, at most one per task
type Submission struct {
	TaskID      string       `json:"task_id" gorm:"primaryKey;size:36"`
	WorkerID    string       `json:"worker_id" gorm:"size:64;index;not null"`
	Annotations []Annotation `json:"annotations" gorm:"serializer:json;type:jsonb;not null"`
	Notes       string       `json:"notes,omitempty" gorm:"type:text"`
	// ArtifactReference content address of the submission payload
	ArtifactReference string `json:"artifact_reference" gorm:"size:128;not null"`
	// ResultArtifactReference content address of an uploaded annotated image
	ResultArtifactReference string    `json:"result_artifact_reference,omitempty" gorm:"size:128"`
	SettlementSignature     *string   `json:"settlement_signature,omitempty" gorm:"size:128"`
	CreatedAt               time.Time `json:"created_at"`
}

// TableName specifies the table name for Submission
func (Submission) TableName() string {
	return "submissions"
}
