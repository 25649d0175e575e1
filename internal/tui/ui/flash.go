package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

const (
	infoDuration  = 4 * time.Second
	errorDuration = 8 * time.Second
)

// FlashMessage is a one-shot notification with an expiry.
type FlashMessage struct {
	Text    string
	OK      bool
	Expires time.Time
}

// FlashBar shows the latest notification until it expires. All methods
// run on the UI goroutine.
type FlashBar struct {
	*tview.TextView
	theme   *Theme
	current FlashMessage
	now     func() time.Time
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
		now:      time.Now,
	}
}

// Info shows a success or informational message.
func (fb *FlashBar) Info(text string) {
	fb.show(text, true, infoDuration)
}

// Err shows a failure.
func (fb *FlashBar) Err(err error) {
	fb.show(err.Error(), false, errorDuration)
}

// Notify shows text as a success when ok is set, as a failure otherwise.
func (fb *FlashBar) Notify(ok bool, text string) {
	d := infoDuration
	if !ok {
		d = errorDuration
	}
	fb.show(text, ok, d)
}

// Current returns the active message, or nil once it expired.
func (fb *FlashBar) Current() *FlashMessage {
	if fb.current.Text == "" || fb.now().After(fb.current.Expires) {
		return nil
	}
	m := fb.current
	return &m
}

// Refresh clears the bar when the message expired. Call it on a ticker.
func (fb *FlashBar) Refresh() {
	if fb.Current() == nil && fb.current.Text != "" {
		fb.current = FlashMessage{}
		fb.Clear()
	}
}

func (fb *FlashBar) show(text string, ok bool, d time.Duration) {
	fb.current = FlashMessage{Text: text, OK: ok, Expires: fb.now().Add(d)}
	color := Tag(fb.theme.FlashInfoColor)
	if !ok {
		color = Tag(fb.theme.FlashErrColor)
	}
	fb.Clear()
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", color, tview.Escape(text))
}
