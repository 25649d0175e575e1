package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// Contact is one row of the contact list.
type Contact struct {
	Person store.Person
	Recent bool
}

// ContactList is the main page: everyone the local user can open a private
// chat with, recent contacts first.
type ContactList struct {
	*tview.Table
	theme    *ui.Theme
	contacts []Contact
	filter   string
	now      func() time.Time
}

// NewContactList creates the contact table.
func NewContactList(theme *ui.Theme) *ContactList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ContactList{Table: table, theme: theme, now: time.Now}
	cl.render()
	return cl
}

func (cl *ContactList) Name() string { return "Contacts" }
func (cl *ContactList) Start()       {}
func (cl *ContactList) Stop()        {}

func (cl *ContactList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open chat"},
		{Key: "/", Description: "Filter"},
		{Key: "p", Description: "Profile"},
	}
}

// Update replaces the rows.
func (cl *ContactList) Update(contacts []Contact) {
	cl.contacts = contacts
	cl.render()
}

// SetFilter shows only contacts whose name or phone contains filter.
func (cl *ContactList) SetFilter(filter string) {
	cl.filter = strings.ToLower(strings.TrimSpace(filter))
	cl.render()
	cl.Select(1, 0)
}

// Selected returns the person id of the selected row, or "".
func (cl *ContactList) Selected() string {
	row, _ := cl.GetSelection()
	if row < 1 {
		return ""
	}
	id, _ := cl.GetCell(row, 0).GetReference().(string)
	return id
}

func (cl *ContactList) matches(c Contact) bool {
	if cl.filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Person.Fullname), cl.filter) ||
		strings.Contains(c.Person.Phone, cl.filter)
}

func (cl *ContactList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 2},
		{" PHONE", 1},
		{" SEEN", 1},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	row := 1
	now := cl.now()
	for _, c := range cl.contacts {
		if !cl.matches(c) {
			continue
		}
		name := display(c.Person.Fullname)
		if c.Recent {
			name = "* " + name
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+name).
			SetReference(c.Person.ObjectID).
			SetExpansion(2).
			SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+display(c.Person.Phone)).
			SetExpansion(1).
			SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(feed.PresenceText(&c.Person, now)).
			SetExpansion(1).
			SetTextColor(cl.theme.FgColor).
			SetAlign(tview.AlignRight))
		row++
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Contacts (%d/%d) filter: %s ", row-1, len(cl.contacts), cl.filter))
	} else {
		cl.SetTitle(fmt.Sprintf(" Contacts (%d) ", len(cl.contacts)))
	}
}
