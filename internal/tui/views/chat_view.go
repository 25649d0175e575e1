package views

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// loadEarlierRef marks the "load earlier" row.
const loadEarlierRef = -1

// AvatarColors reports the dominant colour of a resolved avatar.
type AvatarColors interface {
	Color(userID string) (color.Color, bool)
}

// ChatView renders a feed: a title with the recipient's presence, one
// selectable row per message with optional header and footer rows, a typing
// line and the composer. It implements feed.View.
type ChatView struct {
	*tview.Flex
	theme    *ui.Theme
	title    *tview.TextView
	rows     *tview.Table
	typing   *tview.TextView
	composer *tview.InputField

	feed    *feed.Feed
	colors  AvatarColors
	beep    func()
	notify  func(ok bool, text string)
	onClose func()
	now     func() time.Time

	showLoadEarlier bool
	selectedID      string
}

var _ feed.View = (*ChatView)(nil)

// NewChatView creates an empty chat page. beep sounds the terminal bell,
// notify shows a one-shot message and onClose runs when the page is popped.
func NewChatView(theme *ui.Theme, colors AvatarColors, beep func(), notify func(ok bool, text string), onClose func()) *ChatView {
	title := tview.NewTextView().
		SetDynamicColors(true)
	title.SetBackgroundColor(theme.BgColor)

	rows := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	rows.SetBorder(true)
	rows.SetBorderColor(theme.BorderColor)
	rows.SetBackgroundColor(theme.BgColor)
	rows.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	typing := tview.NewTextView().
		SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(title, 2, 0, false).
		AddItem(rows, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)

	cv := &ChatView{
		Flex:     flex,
		theme:    theme,
		title:    title,
		rows:     rows,
		typing:   typing,
		composer: composer,
		colors:   colors,
		beep:     beep,
		notify:   notify,
		onClose:  onClose,
		now:      time.Now,
	}

	rows.SetSelectionChangedFunc(func(row, _ int) {
		if i, ok := cv.indexAt(row); ok && cv.feed != nil {
			cv.selectedID = cv.feed.MessageAt(i).ObjectID
		}
	})
	rows.SetSelectedFunc(func(row, _ int) {
		cv.activate(row)
	})
	composer.SetChangedFunc(func(string) {
		if cv.feed != nil && composer.GetText() != "" {
			cv.feed.InputChanged()
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || cv.feed == nil {
			return
		}
		if err := cv.feed.SendText(composer.GetText()); err != nil {
			cv.notify(false, err.Error())
			return
		}
		composer.SetText("")
	})
	return cv
}

// Attach binds the feed that drives the view.
func (cv *ChatView) Attach(f *feed.Feed) {
	cv.feed = f
	cv.composer.SetDisabled(!f.InputEnabled())
	if !f.InputEnabled() {
		cv.composer.SetLabel(" blocked ")
	}
	cv.Reload()
}

// Feed returns the attached feed.
func (cv *ChatView) Feed() *feed.Feed {
	return cv.feed
}

func (cv *ChatView) Name() string { return "Chat" }
func (cv *ChatView) Start()       {}

// Stop closes the feed when the page is popped.
func (cv *ChatView) Stop() {
	if cv.feed != nil {
		cv.feed.Close()
	}
	if cv.onClose != nil {
		cv.onClose()
	}
}

func (cv *ChatView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "Enter", Description: "Open / download / play"},
		{Key: "m", Description: "Message menu"},
		{Key: "a", Description: "Author profile"},
		{Key: "t", Description: "Recipient profile"},
		{Key: "r", Description: "Retry failed upload"},
		{Key: "Esc", Description: "Back"},
	}
}

// Rows returns the message table, for focus management.
func (cv *ChatView) Rows() *tview.Table {
	return cv.rows
}

// Composer returns the input field, for focus management.
func (cv *ChatView) Composer() *tview.InputField {
	return cv.composer
}

// Selected returns the render index of the selected message.
func (cv *ChatView) Selected() (int, bool) {
	row, _ := cv.rows.GetSelection()
	return cv.indexAt(row)
}

// Reload rebuilds every row from the feed, keeping the selected message.
func (cv *ChatView) Reload() {
	if cv.feed == nil || cv.feed.Closed() {
		return
	}
	cv.renderTitle()
	cv.rows.Clear()

	row := 0
	selectRow := -1
	if cv.showLoadEarlier {
		cv.rows.SetCell(row, 0, tview.NewTableCell("── load earlier messages ──").
			SetReference(loadEarlierRef).
			SetAlign(tview.AlignCenter).
			SetExpansion(1).
			SetTextColor(cv.theme.HeaderColor))
		row++
	}

	for i := 0; i < cv.feed.LoadedCount(); i++ {
		if header := cv.feed.HeaderAt(i); header != "" {
			cv.rows.SetCell(row, 0, tview.NewTableCell(header).
				SetSelectable(false).
				SetAlign(tview.AlignCenter).
				SetExpansion(1).
				SetTextColor(cv.theme.HeaderColor))
			row++
		}

		w := cv.feed.WrapperAt(i)
		cv.rows.SetCell(row, 0, cv.bubble(i, w))
		if w.ID() == cv.selectedID {
			selectRow = row
		}
		row++

		if footer := cv.feed.FooterAt(i); footer != "" {
			cv.rows.SetCell(row, 0, tview.NewTableCell(footer+" ").
				SetSelectable(false).
				SetAlign(tview.AlignRight).
				SetExpansion(1).
				SetTextColor(cv.footerColor(footer)))
			row++
		}
	}

	if selectRow >= 0 {
		cv.rows.Select(selectRow, 0)
	}
}

// ScrollToBottom selects the newest message.
func (cv *ChatView) ScrollToBottom() {
	for row := cv.rows.GetRowCount() - 1; row >= 0; row-- {
		if _, ok := cv.indexAt(row); ok {
			cv.rows.Select(row, 0)
			break
		}
	}
	cv.rows.ScrollToEnd()
}

func (cv *ChatView) ShowLoadEarlier(show bool) {
	cv.showLoadEarlier = show
}

func (cv *ChatView) ShowTyping(typing bool) {
	cv.typing.Clear()
	if typing {
		_, _ = fmt.Fprintf(cv.typing, " [%s::i]typing...[-:-:-]", ui.Tag(cv.theme.TypingColor))
	}
}

func (cv *ChatView) PlayIncoming() {
	if cv.beep != nil {
		cv.beep()
	}
}

func (cv *ChatView) Notify(ok bool, text string) {
	if cv.notify != nil {
		cv.notify(ok, text)
	}
}

func (cv *ChatView) activate(row int) {
	if cv.feed == nil {
		return
	}
	if ref, _ := cv.rows.GetCell(row, 0).GetReference().(int); ref == loadEarlierRef && cv.showLoadEarlier && row == 0 {
		cv.feed.LoadEarlier()
		return
	}
	if i, ok := cv.indexAt(row); ok {
		cv.feed.Tap(i)
	}
}

// indexAt maps a table row to its message index.
func (cv *ChatView) indexAt(row int) (int, bool) {
	if row < 0 || row >= cv.rows.GetRowCount() {
		return 0, false
	}
	cell := cv.rows.GetCell(row, 0)
	if cell == nil {
		return 0, false
	}
	i, ok := cell.GetReference().(int)
	if !ok || i < 0 {
		return 0, false
	}
	return i, true
}

func (cv *ChatView) renderTitle() {
	name, presence := cv.feed.TitleDetails()
	cv.title.Clear()
	_, _ = fmt.Fprintf(cv.title, " [%s::b]%s[-:-:-]\n [::d]%s[-:-:-]", ui.Tag(cv.theme.TitleColor), display(name), display(presence))
}

func (cv *ChatView) bubble(i int, w *feed.Wrapper) *tview.TableCell {
	text := display(Describe(w))
	fg := cv.theme.IncomingColor
	align := tview.AlignLeft
	if w.Outgoing() {
		fg = cv.theme.OutgoingColor
		align = tview.AlignRight
	} else {
		initials := cv.feed.AvatarInitials(i)
		tag := "::b"
		if cv.feed.AvatarAt(i) != nil && cv.colors != nil {
			if c, ok := cv.colors.Color(w.Message.UserID); ok {
				r, g, b, _ := c.RGBA()
				tag = fmt.Sprintf("#%02x%02x%02x::b", r>>8, g>>8, b>>8)
			}
		}
		text = fmt.Sprintf("[%s]%s[-:-:-] %s", tag, display(initials), text)
	}
	return tview.NewTableCell(" " + text + " ").
		SetReference(i).
		SetAlign(align).
		SetExpansion(1).
		SetTextColor(fg)
}

func (cv *ChatView) footerColor(footer string) tcell.Color {
	switch footer {
	case feed.StatusTextQueued:
		return cv.theme.QueuedColor
	case feed.StatusTextFailed:
		return cv.theme.FailedColor
	case feed.StatusTextRead:
		return cv.theme.ReadColor
	}
	return cv.theme.HeaderColor
}

// Describe renders a message as one line of text.
func Describe(w *feed.Wrapper) string {
	m := w.Message
	switch m.Type {
	case store.TypeText, store.TypeEmoji:
		return strings.ReplaceAll(m.Text, "\n", " ")
	case store.TypePhoto:
		return fmt.Sprintf("[photo %dx%d] %s", m.PhotoWidth, m.PhotoHeight, mediaHint(w, "view"))
	case store.TypeVideo:
		return fmt.Sprintf("[video %s] %s", clock(m.VideoDuration), mediaHint(w, "play"))
	case store.TypeAudio:
		action := "play"
		if w.AudioStatus == feed.AudioPlaying {
			action = "stop"
		}
		return fmt.Sprintf("[audio %s] %s", clock(m.AudioDuration), mediaHint(w, action))
	case store.TypeLocation:
		return fmt.Sprintf("[location %.5f, %.5f] %s", m.Latitude, m.Longitude, mediaHint(w, "show"))
	}
	return "[" + m.Type + "]"
}

func mediaHint(w *feed.Wrapper, action string) string {
	switch w.MediaStatus {
	case feed.StatusQueued:
		return "loading..."
	case feed.StatusManual:
		return "Enter to download"
	case feed.StatusFailed:
		return "unavailable"
	case feed.StatusSucceeded:
		return "Enter to " + action
	}
	if w.Message.IsMediaQueued {
		return "waiting..."
	}
	if w.Message.IsMediaFailed {
		return "unavailable"
	}
	return ""
}

func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
