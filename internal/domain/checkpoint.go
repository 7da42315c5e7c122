// SPDX-License-Identifier: Apache-2.0

package domain

import "strings"

// CheckpointType names a point in the content pipeline where a human must
// sign off before the run continues.
type CheckpointType string

const (
	CheckpointBrandVoice      CheckpointType = "brand_voice"
	CheckpointStyleCompliance CheckpointType = "style_compliance"
	CheckpointFinalQA         CheckpointType = "final_qa"
)

// Checkpoints lists every checkpoint in pipeline order.
func Checkpoints() []CheckpointType {
	return []CheckpointType{
		CheckpointBrandVoice,
		CheckpointStyleCompliance,
		CheckpointFinalQA,
	}
}

// ParseCheckpointType converts untyped input into a CheckpointType. Both the
// snake_case wire value and the kebab-case route slug are accepted.
func ParseCheckpointType(raw string) (CheckpointType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	switch CheckpointType(normalized) {
	case CheckpointBrandVoice, CheckpointStyleCompliance, CheckpointFinalQA:
		return CheckpointType(normalized), nil
	default:
		return "", &ValidationError{Field: "checkpoint", Reason: "unknown checkpoint type " + quote(raw)}
	}
}

func (c CheckpointType) Valid() bool {
	switch c {
	case CheckpointBrandVoice, CheckpointStyleCompliance, CheckpointFinalQA:
		return true
	default:
		return false
	}
}

// Slug is the URL path segment used by the checkpoint webhook for c.
func (c CheckpointType) Slug() string {
	return strings.ReplaceAll(string(c), "_", "-")
}

// Label is the human readable name of c.
func (c CheckpointType) Label() string {
	switch c {
	case CheckpointBrandVoice:
		return "Brand Voice"
	case CheckpointStyleCompliance:
		return "Style Compliance"
	case CheckpointFinalQA:
		return "Final QA"
	default:
		return string(c)
	}
}

// UnmarshalText parses at the boundary so business logic only ever sees
// known values. The empty string decodes to the zero value (no checkpoint).
func (c *CheckpointType) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*c = ""
		return nil
	}
	parsed, err := ParseCheckpointType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
