// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrWorkflowNotFound = errors.New("workflow not found")
var ErrApprovalNotFound = errors.New("approval not found")
var ErrDuplicateWorkflow = errors.New("workflow already exists")
var ErrInvalidState = errors.New("invalid workflow state")
var ErrCheckpointMismatch = errors.New("checkpoint mismatch")
var ErrValidation = errors.New("validation failed")

// InvalidStateError reports a decision submitted for a workflow that is not
// waiting on a human.
type InvalidStateError struct {
	WorkflowID string
	Status     WorkflowStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("workflow not awaiting approval. Current status: %s", e.Status)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// CheckpointMismatchError reports a decision whose checkpoint differs from
// the workflow's current checkpoint.
type CheckpointMismatchError struct {
	WorkflowID string
	Current    CheckpointType
	Submitted  CheckpointType
}

func (e *CheckpointMismatchError) Error() string {
	current := string(e.Current)
	if current == "" {
		current = "none"
	}
	return fmt.Sprintf("decision is for checkpoint %s but workflow is at checkpoint %s", e.Submitted, current)
}

func (e *CheckpointMismatchError) Is(target error) bool {
	return target == ErrCheckpointMismatch
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func quote(s string) string {
	return strconv.Quote(s)
}
