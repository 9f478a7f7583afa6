package service

import "time"

// lwwApplies decides whether an incoming record beats the stored one under
// last-write-wins. The incoming side only wins with a strictly newer
// timestamp: a missing incoming timestamp never wins against a present one,
// and a missing stored timestamp always loses to a present incoming one.
func lwwApplies(existing, incoming *time.Time) bool {
	if incoming == nil {
		return false
	}
	if existing == nil {
		return true
	}
	return incoming.After(*existing)
}
