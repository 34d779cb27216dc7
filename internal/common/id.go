package common

import (
	"github.com/google/uuid"
)

// NewTaskID generates a unique automation task ID with the "task_" prefix
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewRotationID generates a unique credential-rotation ID with the "rot_" prefix
func NewRotationID() string {
	return "rot_" + uuid.New().String()
}
