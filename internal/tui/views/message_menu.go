package views

import (
	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageMenu offers the actions available on one message.
type MessageMenu struct {
	*tview.List
}

// NewMessageMenu lists items; onPick receives the chosen one.
func NewMessageMenu(theme *ui.Theme, items []feed.MenuItem, onPick func(feed.MenuItem)) *MessageMenu {
	list := tview.NewList().ShowSecondaryText(false)
	list.SetBorder(true)
	list.SetBorderColor(theme.BorderColor)
	list.SetBackgroundColor(theme.BgColor)
	list.SetMainTextColor(theme.FgColor)
	list.SetTitle(" Message ")
	list.SetTitleColor(theme.TitleColor)

	for i, item := range items {
		list.AddItem(string(item), "", rune('1'+i), func() { onPick(item) })
	}
	return &MessageMenu{List: list}
}

func (mm *MessageMenu) Name() string { return "Menu" }
func (mm *MessageMenu) Start()       {}
func (mm *MessageMenu) Stop()        {}

func (mm *MessageMenu) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Select"},
		{Key: "Esc", Description: "Cancel"},
	}
}
