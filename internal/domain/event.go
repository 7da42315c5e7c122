// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

// TaskEvent records a pipeline task status notification against a workflow.
type TaskEvent struct {
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	AgentName  string    `json:"agent_name,omitempty"`
	RecordedAt time.Time `json:"timestamp"`
}
