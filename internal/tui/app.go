// Package tui is the terminal front end of a session: sign-in, contacts and
// private chats rendered with tview.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/pchat/internal/app"
	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/login"
	"github.com/matheus3301/pchat/internal/loop"
	"github.com/matheus3301/pchat/internal/media"
	"github.com/matheus3301/pchat/internal/status"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/tui/keys"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/matheus3301/pchat/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	recentLimit   = 20
	refreshEvery  = time.Second
	photoMaxWidth = 1024
	pendingLimit  = 500
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	screen   tcell.Screen
	rt       *app.Runtime
	logger   *zap.Logger
	theme    *ui.Theme
	registry *keys.Registry
	d        loop.Dispatcher

	root        *tview.Flex
	pages       *ui.Pages
	prompt      *ui.Prompt
	flash       *ui.FlashBar
	crumbs      *ui.Crumbs
	menu        *ui.Menu
	sessionInfo *ui.SessionInfo
	statusBar   *views.StatusBar

	contacts *views.ContactList
	chat     *views.ChatView
	profile  *views.ProfileView
	forward  *views.ForwardPicker

	promptActive bool
	startedAt    time.Time
	ctx          context.Context
	cancel       context.CancelFunc
}

var _ feed.Presenter = (*App)(nil)

// NewApp creates the TUI of a running session.
func NewApp(rt *app.Runtime) (*App, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("create screen: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication().SetScreen(screen),
		screen:      screen,
		rt:          rt,
		logger:      rt.Logger.Named("tui"),
		theme:       theme,
		registry:    keys.NewRegistry(),
		pages:       ui.NewPages(),
		prompt:      ui.NewPrompt(theme),
		flash:       ui.NewFlashBar(theme),
		crumbs:      ui.NewCrumbs(theme),
		menu:        ui.NewMenu(theme),
		sessionInfo: ui.NewSessionInfo(theme),
		statusBar:   views.NewStatusBar(theme),
		contacts:    views.NewContactList(theme),
		profile:     views.NewProfileView(theme),
		startedAt:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.d = loop.Func(func(fn func()) { a.app.QueueUpdateDraw(fn) })

	a.statusBar.SetSession(rt.Session)
	a.statusBar.SetState(rt.Machine.Current())
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a, nil
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Help: "Command",
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Help: "Help",
		Handler: func() { a.pages.Push(views.NewHelpView(a.theme)) },
	})

	a.registry.AddView("Contacts", &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Help: "Filter",
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView("Contacts", &keys.Action{
		Key: tcell.KeyRune, Rune: 'p', Help: "Profile",
		Handler: func() {
			if id := a.contacts.Selected(); id != "" {
				a.ShowProfile(id)
			}
		},
	})

	a.registry.AddView("Chat", &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Help: "Compose",
		Handler: func() {
			if a.chat != nil {
				a.app.SetFocus(a.chat.Composer())
			}
		},
	})
	a.registry.AddView("Chat", &keys.Action{
		Key: tcell.KeyRune, Rune: 'm', Help: "Message menu",
		Handler: a.showMessageMenu,
	})
	a.registry.AddView("Chat", &keys.Action{
		Key: tcell.KeyRune, Rune: 'a', Help: "Author",
		Handler: func() {
			if i, ok := a.selected(); ok {
				a.chat.Feed().TapAvatar(i)
			}
		},
	})
	a.registry.AddView("Chat", &keys.Action{
		Key: tcell.KeyRune, Rune: 't', Help: "Recipient",
		Handler: func() {
			if a.chat != nil {
				a.chat.Feed().TapTitle()
			}
		},
	})
	a.registry.AddView("Chat", &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Help: "Retry upload",
		Handler: a.retrySelected,
	})

	a.registry.AddView("Forward", &keys.Action{
		Key: tcell.KeyRune, Rune: 'f', Help: "Send",
		Handler: func() {
			if a.forward != nil && !a.forward.Done() {
				a.flash.Info("Select at least one contact.")
			}
		},
	})
	a.registry.AddView("Profile", &keys.Action{
		Key: tcell.KeyRune, Rune: 'b', Help: "Block / unblock",
		Handler: a.toggleBlock,
	})
}

func (a *App) setupCallbacks() {
	a.contacts.SetSelectedFunc(func(row, _ int) {
		if id := a.contacts.Selected(); id != "" {
			a.openChat(id)
		}
	})

	a.pages.SetOnChange(func(top ui.Component, names []string) {
		a.crumbs.Update(names)
		if top == nil {
			return
		}
		hints := slices.Concat(top.Hints(), a.registry.Hints(""))
		a.menu.Update(hints)
		if top == ui.Component(a.contacts) {
			a.reloadContacts()
		}
		a.app.SetFocus(focusOf(top))
	})

	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.contacts.SetFilter(text)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptCommand {
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(func() {
		a.contacts.SetFilter("")
		a.hidePrompt()
	})
}

// focusOf returns the primitive inside c that takes keyboard focus.
func focusOf(c ui.Component) tview.Primitive {
	switch v := c.(type) {
	case *views.ChatView:
		return v.Rows()
	case *views.LoginView:
		return v.FocusTarget()
	}
	return c
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		AddItem(a.sessionInfo, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(ui.NewLogo(a.theme), 20, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flash, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.promptActive {
			return event
		}
		top := a.pages.Top()
		if _, ok := top.(*views.LoginView); ok {
			return event
		}

		focused := a.app.GetFocus()
		if event.Key() == tcell.KeyEscape {
			if a.chat != nil && focused == a.chat.Composer() {
				a.app.SetFocus(a.chat.Rows())
				return nil
			}
			a.pages.Pop()
			return nil
		}

		// Let text input widgets handle all other keys.
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if top != nil && a.registry.HandleEvent(top.Name(), event) {
			return nil
		}
		return event
	})
}

// Run starts the TUI and blocks until the user quits.
func (a *App) Run() error {
	defer a.cancel()

	if a.rt.Machine.SignedIn() {
		a.showHome()
	} else {
		a.showLogin()
	}
	go a.watchEvents()
	go a.refreshLoop()

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) post(fn func()) {
	a.d.Post(fn)
}

func (a *App) beep() {
	_ = a.screen.Beep()
}

func (a *App) showLogin() {
	verifier := login.NewDevVerifier(func(number, code string) {
		a.post(func() { a.showCode(number, code) })
	})
	flow := login.NewFlow(verifier, a.rt.DB, a.logger)
	a.pages.Reset(views.NewLoginView(a.ctx, a.theme, flow, a.post, a.signIn))
}

// showCode displays the code a development verifier issued.
func (a *App) showCode(number, code string) {
	modal := tview.NewModal().
		SetText(fmt.Sprintf("Verification code for %s:\n\n%s", number, code)).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) {
			a.pages.RemovePage("code")
			if top := a.pages.Top(); top != nil {
				a.app.SetFocus(focusOf(top))
			}
		})
	a.pages.AddPage("code", modal, true, true)
	a.app.SetFocus(modal)
}

func (a *App) signIn(p *store.Person) {
	go func() {
		err := a.rt.SignIn(p)
		a.post(func() {
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.flash.Info("Welcome, " + p.Fullname + ".")
			a.showHome()
		})
	}()
}

func (a *App) showHome() {
	if me := a.rt.Me(); me != nil {
		a.statusBar.SetUser(me.Fullname)
	}
	a.pages.Reset(a.contacts)
}

func (a *App) reloadContacts() {
	me := a.rt.UserID()
	persons, err := a.rt.DB.ListPersons(me)
	if err != nil {
		a.flash.Err(err)
		return
	}
	recent, err := a.rt.DB.RecentContacts(recentLimit)
	if err != nil {
		a.logger.Warn("failed to load recent contacts", zap.Error(err))
	}
	a.contacts.Update(orderContacts(persons, recent))
}

// orderContacts puts recent contacts first, most recent first, and keeps
// the store order for the rest.
func orderContacts(persons []store.Person, recent []string) []views.Contact {
	rank := make(map[string]int, len(recent))
	for i, id := range recent {
		rank[id] = i + 1
	}
	out := make([]views.Contact, 0, len(persons))
	for _, p := range persons {
		out = append(out, views.Contact{Person: p, Recent: rank[p.ObjectID] > 0})
	}
	slices.SortStableFunc(out, func(x, y views.Contact) int {
		rx, ry := rank[x.Person.ObjectID], rank[y.Person.ObjectID]
		switch {
		case rx > 0 && ry > 0:
			return rx - ry
		case rx > 0:
			return -1
		case ry > 0:
			return 1
		}
		return 0
	})
	return out
}

func (a *App) openChat(userID string) {
	me := a.rt.Me()
	if me == nil {
		a.flash.Err(app.ErrSignedOut)
		return
	}

	presenceCtx, stopPresence := context.WithCancel(a.ctx)
	go a.rt.WatchPresence(presenceCtx, userID)

	cv := views.NewChatView(a.theme, a.rt.Media.Avatars, a.beep, a.flash.Notify, func() {
		stopPresence()
		a.chat = nil
	})

	cfg := feed.Config{
		ChatID:      store.PrivateChatID(me.ObjectID, userID),
		RecipientID: userID,
		UserID:      me.ObjectID,
		Store:       a.rt.DB,
		Dispatcher:  a.d,
		View:        cv,
		Loaders:     a.rt.Media.Loaders,
		Avatars:     a.rt.Media.Avatars,
		Presenter:   a,
		Player:      a.rt.Media.Player,
		Exporter:    a.rt.Media.Exporter,
		Logger:      a.logger,
	}
	if c := a.rt.Composer(); c != nil {
		cfg.Sender = c
	}
	// One chat page at a time: opening another replaces the stack above home.
	if a.pages.Depth() > 1 {
		a.pages.Reset(a.contacts)
	}
	cv.Attach(feed.New(cfg))
	a.chat = cv
	a.pages.Push(cv)
}

func (a *App) selected() (int, bool) {
	if a.chat == nil || a.chat.Feed() == nil {
		return 0, false
	}
	return a.chat.Selected()
}

func (a *App) showMessageMenu() {
	i, ok := a.selected()
	if !ok {
		return
	}
	f := a.chat.Feed()
	m := f.MessageAt(i)
	a.pages.Push(views.NewMessageMenu(a.theme, f.MenuItems(i), func(item feed.MenuItem) {
		a.pages.Pop()
		if item == feed.MenuForward {
			a.showForward(f, m)
			return
		}
		// The menu stays open while messages arrive or are deleted.
		i, ok := f.IndexOf(m.ObjectID)
		if !ok {
			a.flash.Info("Message no longer available.")
			return
		}
		switch item {
		case feed.MenuCopy:
			a.screen.SetClipboard([]byte(f.CopyText(i)))
			a.flash.Info("Copied.")
		case feed.MenuSave:
			if !f.Save(i) {
				a.flash.Info("Download the attachment first.")
			}
		case feed.MenuDelete:
			if err := f.Delete(i); err != nil {
				a.flash.Err(err)
			}
		}
	}))
}

func (a *App) showForward(f *feed.Feed, m store.Message) {
	persons, err := a.rt.DB.ListPersons(a.rt.UserID())
	if err != nil {
		a.flash.Err(err)
		return
	}
	a.forward = views.NewForwardPicker(a.theme, persons, func(ids []string) {
		a.pages.Pop()
		a.forward = nil
		if err := f.Forward(m, ids); err != nil {
			a.flash.Err(err)
			return
		}
		a.flash.Info(fmt.Sprintf("Forwarded to %d contact(s).", len(ids)))
	})
	a.pages.Push(a.forward)
}

func (a *App) retrySelected() {
	i, ok := a.selected()
	if !ok {
		return
	}
	w := a.chat.Feed().WrapperAt(i)
	if !w.Outgoing() || !w.Message.IsMediaFailed {
		return
	}
	if err := a.rt.RetryMedia(w.ID()); err != nil {
		a.flash.Err(err)
		return
	}
	a.flash.Info("Upload queued again.")
}

func (a *App) toggleBlock() {
	userID := a.profile.UserID()
	me := a.rt.UserID()
	if userID == "" || me == "" || userID == me {
		return
	}
	blocked, err := a.rt.DB.IsBlocker(me, userID)
	if err == nil {
		err = a.rt.DB.Block(me, userID, blocked)
	}
	if err != nil {
		a.flash.Err(err)
		return
	}
	a.ShowProfile(userID)
}

// ShowPhoto implements feed.Presenter.
func (a *App) ShowPhoto(w *feed.Wrapper) {
	img, err := media.Thumbnail(w.MediaPath, photoMaxWidth)
	if err != nil {
		a.flash.Err(err)
		return
	}
	a.pages.Push(views.NewPhotoView(a.theme, img, w.MediaPath))
}

// ShowVideo implements feed.Presenter.
func (a *App) ShowVideo(w *feed.Wrapper) {
	play := func(path string) (func(), error) {
		stop, _, err := a.rt.Media.Player.Play(path)
		return stop, err
	}
	a.pages.Push(views.NewVideoView(a.theme, w.MediaPath, play, a.flash.Err))
}

// ShowLocation implements feed.Presenter.
func (a *App) ShowLocation(w *feed.Wrapper) {
	a.pages.Push(views.NewLocationView(a.theme, w.Message.Latitude, w.Message.Longitude))
}

// ShowProfile implements feed.Presenter.
func (a *App) ShowProfile(userID string) {
	p, err := a.rt.DB.GetPerson(userID)
	if err != nil {
		a.flash.Err(err)
		return
	}
	if p == nil {
		a.flash.Info("Unknown contact.")
		return
	}
	blocked, err := a.rt.DB.IsBlocker(a.rt.UserID(), userID)
	if err != nil {
		a.logger.Warn("failed to read block state", zap.Error(err))
	}
	a.profile.Update(p, blocked, time.Now())
	if a.pages.Top() != ui.Component(a.profile) {
		a.pages.Push(a.profile)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if a.promptActive {
		return
	}
	a.promptActive = true
	a.prompt.Activate(mode)
	a.root.AddItem(a.prompt, 3, 0, true)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	if !a.promptActive {
		return
	}
	a.promptActive = false
	a.root.RemoveItem(a.prompt)
	if top := a.pages.Top(); top != nil {
		a.app.SetFocus(focusOf(top))
	}
}

func (a *App) runCommand(cmd Command) {
	var err error
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
		return
	case "h", "help":
		a.pages.Push(views.NewHelpView(a.theme))
		return
	case "chat":
		err = a.chatCommand(cmd.Args)
	case "name":
		err = a.renameCommand(cmd.Args)
	case "photo", "sticker", "video", "audio", "location":
		err = a.sendCommand(cmd)
	case "block", "unblock":
		err = a.blockCommand(cmd.Name == "unblock")
	default:
		err = fmt.Errorf("unknown command %q", cmd.Name)
	}
	if err != nil {
		a.flash.Err(err)
	}
}

func (a *App) chatCommand(query string) error {
	if query == "" {
		return fmt.Errorf("%w: chat <name|phone>", errUsage)
	}
	if p, err := a.rt.DB.FindPersonByPhone(query); err != nil {
		return err
	} else if p != nil {
		a.openChat(p.ObjectID)
		return nil
	}
	persons, err := a.rt.DB.ListPersons(a.rt.UserID())
	if err != nil {
		return err
	}
	q := strings.ToLower(query)
	for _, p := range persons {
		if strings.Contains(strings.ToLower(p.Fullname), q) {
			a.openChat(p.ObjectID)
			return nil
		}
	}
	return fmt.Errorf("no contact matches %q", query)
}

func (a *App) renameCommand(name string) error {
	me := a.rt.Me()
	if me == nil {
		return app.ErrSignedOut
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name <full name>", errUsage)
	}
	p := *me
	p.Fullname = name
	go func() {
		err := a.rt.UpdateProfile(&p)
		a.post(func() {
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.statusBar.SetUser(p.Fullname)
			a.flash.Info("Name changed.")
		})
	}()
	return nil
}

func (a *App) sendCommand(cmd Command) error {
	if a.chat == nil {
		return errors.New("open a chat first")
	}
	f := a.chat.Feed()
	if cmd.Name == "location" {
		lat, lon, err := ParseLocation(cmd.Args)
		if err != nil {
			return err
		}
		return f.SendLocation(lat, lon)
	}
	if cmd.Args == "" {
		return fmt.Errorf("%w: %s <path>", errUsage, cmd.Name)
	}
	switch cmd.Name {
	case "video":
		return f.SendVideo(cmd.Args)
	case "audio":
		return f.SendAudio(cmd.Args)
	default:
		return f.SendPhoto(cmd.Args)
	}
}

func (a *App) blockCommand(unblock bool) error {
	if a.chat == nil {
		return errors.New("open a chat first")
	}
	me := a.rt.UserID()
	if err := a.rt.DB.Block(me, a.chat.Feed().RecipientID(), unblock); err != nil {
		return err
	}
	if unblock {
		a.flash.Info("Contact unblocked.")
	} else {
		a.flash.Info("Contact blocked.")
	}
	return nil
}

// watchEvents mirrors bus events that concern the shell: runtime state,
// outbox activity and directory changes.
func (a *App) watchEvents() {
	ch, unsub := a.rt.Bus.Subscribe("", 128)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch {
	case evt.Kind == bus.KindStatusChanged:
		change, ok := evt.Payload.(status.StatusChange)
		if !ok {
			return
		}
		a.post(func() { a.statusBar.SetState(change.To) })
	case evt.Kind == bus.KindOutboxFailed:
		payload, _ := evt.Payload.(map[string]string)
		a.post(func() { a.flash.Notify(false, "Sending failed: "+payload["error"]) })
		a.refreshPending()
	case evt.Kind == bus.KindOutboxSent, strings.HasPrefix(evt.Kind, bus.KindMessagesChanged):
		a.refreshPending()
	case evt.Kind == bus.KindNetPerson:
		a.post(func() {
			if a.pages.Top() == ui.Component(a.contacts) {
				a.reloadContacts()
			}
		})
	}
}

// refreshPending counts queued messages off the UI goroutine.
func (a *App) refreshPending() {
	pending, err := a.rt.DB.PendingSync(pendingLimit)
	if err != nil {
		return
	}
	n := len(pending)
	a.post(func() { a.statusBar.SetQueued(n) })
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			data := a.sessionData()
			a.post(func() {
				a.flash.Refresh()
				a.sessionInfo.Update(data)
				a.statusBar.SetQueued(data.Pending)
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) sessionData() ui.SessionData {
	data := ui.SessionData{
		Session: a.rt.Session,
		Status:  string(a.rt.Machine.Current()),
		Uptime:  time.Since(a.startedAt),
	}
	if me := a.rt.Me(); me != nil {
		data.User = me.Fullname
		data.Phone = me.Phone
	}
	if n, err := a.rt.DB.MessageCount(); err == nil {
		data.Messages = int(n)
	}
	if pending, err := a.rt.DB.PendingSync(pendingLimit); err == nil {
		data.Pending = len(pending)
	}
	return data
}
