package tracker

import "strings"

// Entry and exit points are recognised by free-text location labels. A typo
// in a camera's location ("Entrence") silently disables re-entry detection
// for that camera, so labels must be reviewed when cameras are registered.

func IsEntryLabel(location string) bool {
	l := strings.ToLower(location)
	return strings.Contains(l, "entry") || strings.Contains(l, "entrance")
}

func IsExitLabel(location string) bool {
	return strings.Contains(strings.ToLower(location), "exit")
}
