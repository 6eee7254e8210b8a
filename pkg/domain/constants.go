package domain

// Reserved transition targets. They exit the current flow and are never
// persisted as a session's step.
const (
	TargetEnd      = "END"
	TargetMainMenu = "MAIN_MENU"
)

// IsTerminal reports whether target is one of the reserved markers.
func IsTerminal(target string) bool {
	return target == TargetEnd || target == TargetMainMenu
}

// DefaultMainMenuID is used when a catalog does not name its main menu.
const DefaultMainMenuID = "main"
