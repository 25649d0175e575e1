package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	kc := ui.Tag(theme.MenuKeyColor)
	section := func(title string, entries [][2]string) {
		_, _ = fmt.Fprintf(tv, "\n  [::b]%s[-:-:-]\n\n", title)
		for _, e := range entries {
			pad := strings.Repeat(" ", max(1, 26-len(e[0])))
			_, _ = fmt.Fprintf(tv, "  [%s]%s[-:-:-]%s%s\n", kc, tview.Escape(e[0]), pad, e[1])
		}
	}

	section("Global Keys", [][2]string{
		{":", "Command mode"},
		{"Esc", "Cancel / go back"},
		{"?", "Help"},
		{"Ctrl-C", "Quit"},
	})
	section("Contacts", [][2]string{
		{"Enter", "Open private chat"},
		{"/", "Filter by name or phone"},
		{"p", "Show profile"},
	})
	section("Chat", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Open, download or play the selected message"},
		{"m", "Copy / save / delete / forward"},
		{"a", "Author profile"},
		{"t", "Recipient profile"},
		{"r", "Retry a failed upload"},
	})
	section("Commands (: mode)", [][2]string{
		{":chat <name|phone>", "Open a chat"},
		{":photo <path>", "Send a photo"},
		{":sticker <path>", "Send a sticker"},
		{":video <path>", "Send a video"},
		{":audio <path>", "Send a recording"},
		{":location <lat> <lon>", "Send a position"},
		{":block / :unblock", "Block the current recipient"},
		{":name <full name>", "Change your display name"},
		{":help, :h", "Show this help"},
		{":quit, :q", "Quit"},
	})

	return &HelpView{TextView: tv}
}

func (hv *HelpView) Name() string { return "Help" }
func (hv *HelpView) Start()       {}
func (hv *HelpView) Stop()        {}

func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Back"}}
}
