package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ProfileView displays a person's details.
type ProfileView struct {
	*tview.TextView
	theme  *ui.Theme
	userID string
}

// NewProfileView creates an empty profile page.
func NewProfileView(theme *ui.Theme) *ProfileView {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Profile ")
	tv.SetTitleColor(theme.TitleColor)

	return &ProfileView{TextView: tv, theme: theme}
}

func (pv *ProfileView) Name() string { return "Profile" }
func (pv *ProfileView) Start()       {}
func (pv *ProfileView) Stop()        {}

func (pv *ProfileView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "b", Description: "Block / unblock"},
		{Key: "Esc", Description: "Back"},
	}
}

// UserID returns the person shown.
func (pv *ProfileView) UserID() string {
	return pv.userID
}

// Update renders p. blocked reports whether the local user blocked p.
func (pv *ProfileView) Update(p *store.Person, blocked bool, now time.Time) {
	pv.Clear()
	if p == nil {
		pv.userID = ""
		return
	}
	pv.userID = p.ObjectID

	fg, val := ui.Tag(pv.theme.FgColor), ui.Tag(pv.theme.CounterColor)
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		_, _ = fmt.Fprintf(pv, " [%s::b]%-10s[-:-:-] [%s]%s[-]\n", fg, label, val, display(value))
	}

	_, _ = fmt.Fprintln(pv)
	row("Name:", p.Fullname)
	row("Initials:", p.Initials())
	row("Phone:", p.Phone)
	row("Country:", p.Country)
	row("Seen:", feed.PresenceText(p, now))
	if blocked {
		row("Blocked:", "yes")
	}
	pv.SetTitle(fmt.Sprintf(" %s ", display(p.Fullname)))
}
