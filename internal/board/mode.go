package board

// InteractionMode is the board's single alternate-input mode. Selection and
// keyboard navigation can never be active together.
type InteractionMode int

// InteractionMode values.
const (
	ModeNormal InteractionMode = iota
	ModeSelecting
	ModeKeyboard
)

// String returns a short label for status lines.
func (m InteractionMode) String() string {
	switch m {
	case ModeSelecting:
		return "select"
	case ModeKeyboard:
		return "keyboard"
	default:
		return "normal"
	}
}
