package views

import (
	"fmt"

	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ForwardPicker selects the recipients of a forwarded message. Enter
// toggles a person; the done callback receives the selection in list order.
type ForwardPicker struct {
	*tview.List
	persons  []store.Person
	selected map[string]bool
	onDone   func(userIDs []string)
}

// NewForwardPicker lists persons for selection.
func NewForwardPicker(theme *ui.Theme, persons []store.Person, onDone func(userIDs []string)) *ForwardPicker {
	list := tview.NewList().ShowSecondaryText(false)
	list.SetBorder(true)
	list.SetBorderColor(theme.BorderColor)
	list.SetBackgroundColor(theme.BgColor)
	list.SetMainTextColor(theme.FgColor)
	list.SetTitle(" Forward to ")
	list.SetTitleColor(theme.TitleColor)

	fp := &ForwardPicker{
		List:     list,
		persons:  persons,
		selected: make(map[string]bool),
		onDone:   onDone,
	}
	for i := range persons {
		list.AddItem(fp.label(i), "", 0, nil)
	}
	list.SetSelectedFunc(func(i int, _, _ string, _ rune) {
		fp.Toggle(i)
	})
	return fp
}

func (fp *ForwardPicker) Name() string { return "Forward" }
func (fp *ForwardPicker) Start()       {}
func (fp *ForwardPicker) Stop()        {}

func (fp *ForwardPicker) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Toggle"},
		{Key: "f", Description: "Send"},
		{Key: "Esc", Description: "Cancel"},
	}
}

// Toggle flips the selection of row i.
func (fp *ForwardPicker) Toggle(i int) {
	if i < 0 || i >= len(fp.persons) {
		return
	}
	id := fp.persons[i].ObjectID
	fp.selected[id] = !fp.selected[id]
	fp.SetItemText(i, fp.label(i), "")
}

// Done hands the selection to the callback. Nothing happens while no one
// is selected.
func (fp *ForwardPicker) Done() bool {
	ids := fp.Selection()
	if len(ids) == 0 {
		return false
	}
	fp.onDone(ids)
	return true
}

// Selection returns the selected person ids in list order.
func (fp *ForwardPicker) Selection() []string {
	var ids []string
	for _, p := range fp.persons {
		if fp.selected[p.ObjectID] {
			ids = append(ids, p.ObjectID)
		}
	}
	return ids
}

func (fp *ForwardPicker) label(i int) string {
	mark := " "
	if fp.selected[fp.persons[i].ObjectID] {
		mark = "x"
	}
	return tview.Escape(fmt.Sprintf("[%s]", mark)) + " " + display(fp.persons[i].Fullname)
}
