package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mattsolo1/grove-wiki/pkg/ledger"
	"github.com/mattsolo1/grove-wiki/pkg/lock"
)

var (
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	folderStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)

	toneColors = map[string]lipgloss.Color{
		"success": lipgloss.Color("2"),
		"warning": lipgloss.Color("3"),
		"error":   lipgloss.Color("1"),
		"default": lipgloss.Color("8"),
	}
)

func renderBadge(b ledger.Badge) string {
	color, ok := toneColors[b.Tone]
	if !ok {
		color = toneColors["default"]
	}
	return lipgloss.NewStyle().Foreground(color).Render("[" + b.Label + "]")
}

func renderLock(st lock.Status) string {
	switch st.State {
	case lock.LockedByMe:
		return renderBadge(ledger.Badge{Label: "locked by you", Tone: "success"})
	case lock.LockedByOther:
		return renderBadge(ledger.Badge{Label: "locked by " + st.HolderName, Tone: "warning"})
	}
	return renderBadge(ledger.Badge{Label: "unlocked", Tone: "default"})
}
