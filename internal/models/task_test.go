package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnnotationNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Annotation
		want Annotation
	}{
		{
			name: "positive extents untouched",
			in:   Annotation{X: 10, Y: 20, Width: 30, Height: 40},
			want: Annotation{X: 10, Y: 20, Width: 30, Height: 40},
		},
		{
			name: "negative width moves origin left",
			in:   Annotation{X: 50, Y: 20, Width: -30, Height: 40},
			want: Annotation{X: 20, Y: 20, Width: 30, Height: 40},
		},
		{
			name: "both negative",
			in:   Annotation{X: 50, Y: 60, Width: -10, Height: -15},
			want: Annotation{X: 40, Y: 45, Width: 10, Height: 15},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestTaskWorkerConsistent(t *testing.T) {
	w := "worker"
	assert.True(t, (&Task{Status: TaskAvailable}).WorkerConsistent())
	assert.False(t, (&Task{Status: TaskAvailable, WorkerID: &w}).WorkerConsistent())
	for _, s := range []TaskLifecycleStatus{TaskInProgress, TaskPendingApproval, TaskCompleted} {
		assert.True(t, (&Task{Status: s, WorkerID: &w}).WorkerConsistent(), s)
		assert.False(t, (&Task{Status: s}).WorkerConsistent(), s)
	}
}

func TestTaskCloneCopiesWorker(t *testing.T) {
	w := "worker"
	orig := &Task{ID: "t1", Status: TaskInProgress, WorkerID: &w}
	c := orig.Clone()
	*c.WorkerID = "other"
	assert.Equal(t, "worker", orig.WorkerAddress())
}
