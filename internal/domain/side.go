package domain

import "strings"

// Side identifies one of the two outcome tokens of an Up/Down market.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
)

// Sides lists both sides in canonical scan order (up first).
func Sides() []Side {
	return []Side{SideUp, SideDown}
}

// ParseSide normalises an outcome label ("Up", "DOWN", ...) to a Side.
// The second return is false for anything that is not one of the two outcomes.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideUp:
		return SideUp, true
	case SideDown:
		return SideDown, true
	}
	return "", false
}
