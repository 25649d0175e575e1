package feed

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/matheus3301/pchat/internal/store"
)

func TestFooterStatus(t *testing.T) {
	h := newHarness(t, 0)

	sent := h.st.add(me, store.TypeText)
	queued := h.st.add(me, store.TypeText)
	h.st.update(queued.ObjectID, func(m *store.Message) { m.SyncRequired = true })
	mediaQueued := h.st.add(me, store.TypePhoto)
	h.st.update(mediaQueued.ObjectID, func(m *store.Message) { m.IsMediaQueued = true })
	failed := h.st.add(me, store.TypePhoto)
	h.st.update(failed.ObjectID, func(m *store.Message) { m.IsMediaFailed = true })
	h.st.add(other, store.TypeText)
	h.waitFor("five rows", func() bool { return h.f.TotalCount() == 5 && h.f.MessageAt(3).Rev == 2 })

	want := []string{StatusTextSent, StatusTextQueued, StatusTextQueued, StatusTextFailed, ""}
	for i, w := range want {
		if got := h.f.FooterAt(i); got != w {
			t.Errorf("FooterAt(%d) = %q, want %q", i, got, w)
		}
	}

	h.waitReload(func() {
		h.st.setAction(store.Action{ChatID: chat, UserID: other, LastRead: sent.CreatedAt})
	})
	if got := h.f.FooterAt(0); got != StatusTextRead {
		t.Errorf("FooterAt(0) after read = %q, want Read", got)
	}
}

func TestHeaderEveryThirdRow(t *testing.T) {
	h := newHarness(t, 7)
	for i := range 7 {
		got := h.f.HeaderAt(i)
		if (i%3 == 0) != (got != "") {
			t.Errorf("HeaderAt(%d) = %q", i, got)
		}
	}
	want := time.UnixMilli(h.f.MessageAt(3).CreatedAt).Format("02 Jan, 15:04")
	if got := h.f.HeaderAt(3); got != want {
		t.Errorf("HeaderAt(3) = %q, want %q", got, want)
	}
}

func TestMenuItems(t *testing.T) {
	h := newHarness(t, 0)
	for _, typ := range []string{store.TypeText, store.TypeEmoji, store.TypePhoto, store.TypeVideo, store.TypeAudio, store.TypeLocation} {
		h.st.add(other, typ)
	}
	h.waitFor("six rows", func() bool { return h.f.TotalCount() == 6 })

	want := [][]MenuItem{
		{MenuCopy, MenuDelete, MenuForward},
		{MenuCopy, MenuDelete, MenuForward},
		{MenuSave, MenuDelete, MenuForward},
		{MenuSave, MenuDelete, MenuForward},
		{MenuSave, MenuDelete, MenuForward},
		{MenuDelete, MenuForward},
	}
	for i, w := range want {
		if got := h.f.MenuItems(i); !reflect.DeepEqual(got, w) {
			t.Errorf("MenuItems(%d) = %v, want %v", i, got, w)
		}
	}
	if got := h.f.CopyText(0); got != h.f.MessageAt(0).Text {
		t.Errorf("CopyText = %q", got)
	}
}

func TestSaveNotifiesOnce(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		notice string
	}{
		{"success", nil, "Successfully saved."},
		{"failure", errors.New("disk full"), "Saving failed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &fakeLoader{}
			exporter := &fakeExporter{err: tt.err}
			h := newHarness(t, 0, withLoaders(map[string]MediaLoader{store.TypeAudio: loader}), func(c *Config) {
				c.Exporter = exporter
			})
			h.waitReload(func() { h.st.add(other, store.TypeAudio) })

			if h.f.Save(0) {
				t.Fatal("Save succeeded before the attachment resolved")
			}
			h.waitReload(func() { loader.complete(0, MediaResult{Status: StatusSucceeded, Path: "/a.m4a"}) })

			if !h.f.Save(0) {
				t.Fatal("Save() = false")
			}
			h.waitFor("notice", func() bool { return len(h.view.notices) > 0 })
			if len(h.view.notices) != 1 || h.view.notices[0] != tt.notice {
				t.Errorf("notices = %v, want [%s]", h.view.notices, tt.notice)
			}
			if exporter.names[0] != h.f.MessageAt(0).ObjectID+".mp4" {
				t.Errorf("exported as %q", exporter.names[0])
			}
		})
	}
}

func TestForwardToEachUser(t *testing.T) {
	sender := &fakeSender{}
	h := newHarness(t, 2, func(c *Config) { c.Sender = sender })

	m := h.f.MessageAt(1)
	if err := h.f.Forward(m, []string{"u1", "u2"}); err != nil {
		t.Fatal(err)
	}
	for _, u := range []string{"u1", "u2"} {
		if got := sender.forwards[store.PrivateChatID(me, u)]; got != m.ObjectID {
			t.Errorf("forward to %s = %q, want %q", u, got, m.ObjectID)
		}
	}
}

func TestSendRecordsRecentAndDetectsEmoji(t *testing.T) {
	sender := &fakeSender{}
	h := newHarness(t, 0, func(c *Config) { c.Sender = sender })

	if err := h.f.SendText("  "); err != nil {
		t.Fatal(err)
	}
	if err := h.f.SendText("hello"); err != nil {
		t.Fatal(err)
	}
	if err := h.f.SendText("👍🏽"); err != nil {
		t.Fatal(err)
	}
	if err := h.f.SendLocation(1.5, -2.5); err != nil {
		t.Fatal(err)
	}

	if len(sender.drafts) != 3 {
		t.Fatalf("drafts = %d, want 3", len(sender.drafts))
	}
	if sender.drafts[0].Type != store.TypeText || sender.drafts[1].Type != store.TypeEmoji {
		t.Errorf("types = %s, %s", sender.drafts[0].Type, sender.drafts[1].Type)
	}
	if d := sender.drafts[2]; d.Type != store.TypeLocation || d.Latitude != 1.5 || d.Longitude != -2.5 {
		t.Errorf("location draft = %+v", d)
	}
	if len(h.st.recents) != 3 || h.st.recents[0] != other {
		t.Errorf("recents = %v", h.st.recents)
	}
}

func TestBlockedRecipientDisablesInput(t *testing.T) {
	sender := &fakeSender{}
	st := newMemStore()
	st.blocker = true
	h := newHarness(t, 0, func(c *Config) {
		c.Sender = sender
		c.Store = st
	})
	h.st = st

	if h.f.InputEnabled() {
		t.Error("InputEnabled() = true for a blocking recipient")
	}
	if err := h.f.SendText("hi"); err == nil {
		t.Error("send to a blocking recipient succeeded")
	}
	if len(sender.drafts) != 0 {
		t.Error("draft reached the sender")
	}
}

func TestTitleDetails(t *testing.T) {
	h := newHarness(t, 0)
	now := h.d.Now()
	h.st.persons[other] = &store.Person{
		ObjectID:      other,
		Fullname:      "Grace Hopper",
		LastActive:    now.Add(-2 * time.Hour).UnixMilli(),
		LastTerminate: now.Add(-90 * time.Minute).UnixMilli(),
	}

	name, presence := h.f.TitleDetails()
	if name != "Grace Hopper" {
		t.Errorf("name = %q", name)
	}
	if presence != "Last active 1 hour ago" {
		t.Errorf("presence = %q", presence)
	}
}

func TestPresenceText(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	ms := func(d time.Duration) int64 { return now.Add(-d).UnixMilli() }

	tests := []struct {
		name string
		p    store.Person
		want string
	}{
		{"never seen", store.Person{}, ""},
		{"online", store.Person{LastActive: ms(time.Minute), LastTerminate: ms(time.Hour)}, "Online"},
		{"just now", store.Person{LastActive: ms(time.Hour), LastTerminate: ms(10 * time.Second)}, "Last active just now"},
		{"minutes", store.Person{LastActive: ms(time.Hour), LastTerminate: ms(5 * time.Minute)}, "Last active 5 min ago"},
		{"hours", store.Person{LastActive: ms(10 * time.Hour), LastTerminate: ms(3 * time.Hour)}, "Last active 3 hours ago"},
		{"clean exit in the same instant", store.Person{LastActive: ms(2 * time.Hour), LastTerminate: ms(2 * time.Hour)}, "Last active 2 hours ago"},
		{"clean exit after last heartbeat", store.Person{LastActive: ms(31 * time.Minute), LastTerminate: ms(30 * time.Minute)}, "Last active 30 min ago"},
		{"heartbeat expired", store.Person{LastActive: ms(45 * time.Minute), LastTerminate: ms(45 * time.Minute)}, "Last active 45 min ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PresenceText(&tt.p, now); got != tt.want {
				t.Errorf("PresenceText() = %q, want %q", got, tt.want)
			}
		})
	}
}
