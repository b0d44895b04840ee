package knx

import "fmt"

// Priority is the 2-bit frame priority tag carried in every cEMI L-Data
// control field (§3, §4.2).
type Priority uint8

const (
	// PrioritySystem is the highest priority, reserved for system telegrams.
	PrioritySystem Priority = iota
	// PriorityUrgent is used for alarms and urgent telegrams.
	PriorityUrgent
	// PriorityNormal is the default priority for ordinary telegrams.
	PriorityNormal
	// PriorityLow is used for non-urgent telegrams (e.g. long data transfer).
	PriorityLow
)

// String renders the KNX priority name.
func (p Priority) String() string {
	switch p {
	case PrioritySystem:
		return "system"
	case PriorityUrgent:
		return "urgent"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}
