package views

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/pchat/internal/login"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

const (
	labelNext   = "Next"
	labelVerify = "Verify"
	labelBack   = "Back"
	labelDone   = "Done"
)

// LoginView walks the user through phone sign-in: number, code, then a
// display name for people signing in for the first time.
type LoginView struct {
	*tview.Flex
	theme   *ui.Theme
	form    *tview.Form
	message *tview.TextView

	flow     *login.Flow
	ctx      context.Context
	post     func(func())
	onSignIn func(p *store.Person)
	busy     bool

	person *store.Person
}

// NewLoginView creates the sign-in page. post runs a function on the UI
// goroutine; onSignIn receives the signed-in person once it has a name.
func NewLoginView(ctx context.Context, theme *ui.Theme, flow *login.Flow, post func(func()), onSignIn func(p *store.Person)) *LoginView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetTitleColor(theme.TitleColor)
	form.SetFieldBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(message, 3, 0, false)

	lv := &LoginView{
		Flex:     flex,
		theme:    theme,
		form:     form,
		message:  message,
		flow:     flow,
		ctx:      ctx,
		post:     post,
		onSignIn: onSignIn,
	}
	lv.phoneStep()
	return lv
}

func (lv *LoginView) Name() string { return "Sign in" }
func (lv *LoginView) Start()       {}
func (lv *LoginView) Stop()        {}

func (lv *LoginView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Activate"},
	}
}

// FocusTarget returns the primitive that should receive focus.
func (lv *LoginView) FocusTarget() tview.Primitive {
	return lv.form
}

func (lv *LoginView) phoneStep() {
	lv.form.Clear(true)
	lv.form.SetTitle(" Sign in with your phone ")

	names := make([]string, len(login.Countries))
	current := 0
	for i, c := range login.Countries {
		names[i] = fmt.Sprintf("%s (%s)", c.Name, c.DialCode)
		if c.Code == lv.flow.Country().Code {
			current = i
		}
	}
	lv.form.AddDropDown("Country", names, current, func(_ string, i int) {
		if i >= 0 && i != current {
			current = i
			lv.flow.SelectCountry(login.Countries[i])
		}
	})
	lv.form.AddInputField("Phone", "", 20, phoneChar, func(text string) {
		lv.flow.SetPhone(text)
		lv.refreshNext()
	})
	lv.form.AddButton(labelNext, lv.requestCode)
	lv.refreshNext()
	lv.form.SetFocus(1)
}

// refreshNext enables "Next" only once a number was typed.
func (lv *LoginView) refreshNext() {
	if i := lv.form.GetButtonIndex(labelNext); i >= 0 {
		lv.form.GetButton(i).SetDisabled(!lv.flow.CanProceed() || lv.busy)
	}
}

func (lv *LoginView) requestCode() {
	if lv.busy || !lv.flow.CanProceed() {
		return
	}
	lv.setBusy("Requesting code for " + lv.flow.Number() + "...")
	go func() {
		err := lv.flow.RequestCode(lv.ctx)
		lv.post(func() {
			lv.busy = false
			if err != nil {
				lv.showError(err)
				lv.refreshNext()
				return
			}
			lv.codeStep()
		})
	}()
}

func (lv *LoginView) codeStep() {
	lv.form.Clear(true)
	lv.form.SetTitle(" Enter the code ")
	lv.showInfo("We sent a code to " + lv.flow.Number())

	code := ""
	lv.form.AddInputField("Code", "", 8, tview.InputFieldInteger, func(text string) {
		code = text
	})
	lv.form.AddButton(labelVerify, func() { lv.verify(code) })
	lv.form.AddButton(labelBack, func() {
		lv.flow.SetPhone("")
		lv.phoneStep()
	})
	lv.form.SetFocus(0)
}

func (lv *LoginView) verify(code string) {
	if lv.busy {
		return
	}
	lv.setBusy("Verifying...")
	go func() {
		p, err := lv.flow.Verify(lv.ctx, code)
		lv.post(func() {
			lv.busy = false
			switch {
			case errors.Is(err, login.ErrInvalidCode):
				lv.showError(errors.New("wrong code, try again"))
			case err != nil:
				lv.showError(err)
				lv.phoneStep()
			case p.Fullname == "":
				lv.person = p
				lv.nameStep()
			default:
				lv.onSignIn(p)
			}
		})
	}()
}

func (lv *LoginView) nameStep() {
	lv.form.Clear(true)
	lv.form.SetTitle(" What's your name? ")
	lv.showInfo("Your name is shown to the people you chat with.")

	name := ""
	lv.form.AddInputField("Name", "", 32, nil, func(text string) {
		name = text
	})
	lv.form.AddButton(labelDone, func() {
		if err := lv.flow.Rename(lv.person, name); err != nil {
			lv.showError(err)
			return
		}
		if lv.person.Fullname == "" {
			lv.showError(errors.New("please enter a name"))
			return
		}
		lv.onSignIn(lv.person)
	})
	lv.form.SetFocus(0)
}

func (lv *LoginView) setBusy(text string) {
	lv.busy = true
	lv.refreshNext()
	lv.showInfo(text)
}

func (lv *LoginView) showInfo(text string) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "[%s]%s[-]", ui.Tag(lv.theme.FlashInfoColor), display(text))
}

func (lv *LoginView) showError(err error) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "[%s]%s[-]", ui.Tag(lv.theme.FlashErrColor), display(err.Error()))
}

func phoneChar(_ string, r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == ' ', r == '-', r == '(', r == ')', r == '.':
		return true
	}
	return false
}
