// Package restriction maps accumulated foreground time to a restriction
// status and folds a hard lock over it.
package restriction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the restriction applied to a domain.
type Status string

const (
	StatusNormal     Status = "normal"
	StatusGrayscale  Status = "grayscale"
	StatusBlocked    Status = "blocked"
	StatusHardLocked Status = "hardLocked"
)

// ParseStatus parses a status name, accepting any letter case.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "normal", "":
		return StatusNormal, nil
	case "grayscale":
		return StatusGrayscale, nil
	case "blocked":
		return StatusBlocked, nil
	case "hardlocked":
		return StatusHardLocked, nil
	default:
		return "", fmt.Errorf("invalid status: %s (must be normal, grayscale, blocked or hardLocked)", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler and validates the status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Severity orders automatic statuses: Normal < Grayscale < Blocked.
// HardLocked is user-imposed and sits outside this order.
func (s Status) Severity() int {
	switch s {
	case StatusGrayscale:
		return 1
	case StatusBlocked:
		return 2
	default:
		return 0
	}
}

// Automatic reports whether s can be produced by Evaluate.
func (s Status) Automatic() bool {
	return s == StatusNormal || s == StatusGrayscale || s == StatusBlocked
}

// SuppressesTracking reports whether time stops accruing under s.
func (s Status) SuppressesTracking() bool {
	return s == StatusBlocked || s == StatusHardLocked
}

// Thresholds are the accumulated-time limits for a single domain.
type Thresholds struct {
	Grayscale time.Duration
	Block     time.Duration
}

// ThresholdsFromMinutes converts configured minute values.
func ThresholdsFromMinutes(grayscaleMinutes, blockMinutes int) Thresholds {
	return Thresholds{
		Grayscale: time.Duration(grayscaleMinutes) * time.Minute,
		Block:     time.Duration(blockMinutes) * time.Minute,
	}
}

// Evaluate maps accumulated active time to the automatic status.
func Evaluate(total time.Duration, th Thresholds) Status {
	switch {
	case total >= th.Block:
		return StatusBlocked
	case total >= th.Grayscale:
		return StatusGrayscale
	default:
		return StatusNormal
	}
}

// Effective combines the automatic status with the override flag. An active
// override always wins; the automatic value is left untouched underneath.
func Effective(automatic Status, overrideActive bool) Status {
	if overrideActive {
		return StatusHardLocked
	}
	return automatic
}
