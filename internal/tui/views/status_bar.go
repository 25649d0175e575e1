package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/pchat/internal/status"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the session, its runtime state and the outbox size.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	user    string
	state   status.State
	queued  int
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetUser updates the signed-in user's name.
func (sb *StatusBar) SetUser(name string) {
	sb.user = name
	sb.render()
}

// SetState updates the runtime state display.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.render()
}

// SetQueued updates the number of messages waiting to be sent.
func (sb *StatusBar) SetQueued(n int) {
	sb.queued = n
	sb.render()
}

func (sb *StatusBar) stateColor() string {
	switch sb.state {
	case status.Ready:
		return "green"
	case status.Degraded, status.Connecting:
		return "yellow"
	case status.Offline, status.Error:
		return ui.Tag(sb.theme.FailedColor)
	}
	return "white"
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-]", display(sb.session), sb.stateColor(), sb.state)
	if sb.user != "" {
		line += " | " + display(sb.user)
	}
	if sb.queued > 0 {
		line += fmt.Sprintf(" | [%s]%d queued[-]", ui.Tag(sb.theme.QueuedColor), sb.queued)
	}
	line += " | " + sb.now().Format("15:04")

	_, _ = fmt.Fprint(sb, line)
}
