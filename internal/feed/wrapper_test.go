package feed

import (
	"errors"
	"image"
	"testing"

	"github.com/matheus3301/pchat/internal/store"
)

func withLoaders(loaders map[string]MediaLoader) func(*Config) {
	return func(c *Config) { c.Loaders = loaders }
}

func TestWrapperIdentityIsStable(t *testing.T) {
	h := newHarness(t, 3)

	w1 := h.f.WrapperAt(1)
	w1.AudioStatus = AudioPlaying
	w1.MediaPath = "/cache/x"
	w2 := h.f.WrapperAt(1)
	if w1 != w2 {
		t.Fatal("WrapperAt returned a new wrapper for the same message")
	}
	if w2.AudioStatus != AudioPlaying || w2.MediaPath != "/cache/x" {
		t.Error("UI-only fields were reset")
	}
	if len(h.f.wrappers) != 1 {
		t.Errorf("wrappers = %d, want 1", len(h.f.wrappers))
	}
}

func TestWrapperSyncsRecordButKeepsUIState(t *testing.T) {
	h := newHarness(t, 3)
	w := h.f.WrapperAt(2)
	w.AudioStatus = AudioPlaying

	h.waitReload(func() {
		h.st.update(w.ID(), func(m *store.Message) { m.Text = "changed" })
	})

	again := h.f.WrapperAt(2)
	if again != w {
		t.Fatal("wrapper recreated after modification")
	}
	if again.Message.Text != "changed" {
		t.Errorf("Text = %q, want changed", again.Message.Text)
	}
	if again.AudioStatus != AudioPlaying {
		t.Error("sync overwrote playback state")
	}
}

func TestMediaGateDispatchesOnce(t *testing.T) {
	photos := &fakeLoader{}
	h := newHarness(t, 0, withLoaders(map[string]MediaLoader{store.TypePhoto: photos}))
	h.waitReload(func() { h.st.add(other, store.TypePhoto) })

	w := h.f.WrapperAt(0)
	h.f.WrapperAt(0)
	h.f.HeaderAt(0)
	if photos.calls() != 1 {
		t.Fatalf("loader calls = %d, want 1", photos.calls())
	}
	if w.MediaStatus != StatusQueued {
		t.Errorf("status = %v, want queued while loading", w.MediaStatus)
	}

	preview := image.NewGray(image.Rect(0, 0, 2, 2))
	h.waitReload(func() {
		photos.complete(0, MediaResult{Status: StatusSucceeded, Path: "/cache/p.jpg", Preview: preview})
	})
	if w.MediaStatus != StatusSucceeded || w.MediaPath != "/cache/p.jpg" || w.Preview == nil {
		t.Errorf("wrapper after load = %+v", w)
	}
	h.f.WrapperAt(0)
	if photos.calls() != 1 {
		t.Error("resolved media was loaded again")
	}
}

func TestMediaGateSkipsRemoteQueuedOrFailed(t *testing.T) {
	videos := &fakeLoader{}
	h := newHarness(t, 0, withLoaders(map[string]MediaLoader{store.TypeVideo: videos}))

	queued := h.st.add(other, store.TypeVideo)
	h.st.update(queued.ObjectID, func(m *store.Message) { m.IsMediaQueued = true })
	failed := h.st.add(other, store.TypeVideo)
	h.st.update(failed.ObjectID, func(m *store.Message) { m.IsMediaFailed = true })
	own := h.st.add(me, store.TypeVideo)
	h.st.update(own.ObjectID, func(m *store.Message) { m.IsMediaQueued = true })
	h.waitFor("three messages", func() bool {
		if h.f.TotalCount() != 3 {
			return false
		}
		for i := range 3 {
			m := h.f.MessageAt(i)
			if m.Rev != 2 {
				return false
			}
		}
		return true
	})

	for i := range 3 {
		h.f.WrapperAt(i)
	}
	if videos.calls() != 1 {
		t.Fatalf("loader calls = %d, want 1 (only the local message)", videos.calls())
	}
	if videos.reqs[0].Message.ObjectID != own.ObjectID {
		t.Errorf("loaded %s, want %s", videos.reqs[0].Message.ObjectID, own.ObjectID)
	}
	if st := h.f.WrapperAt(0).MediaStatus; st != StatusUnknown {
		t.Errorf("remote queued status = %v, want unknown", st)
	}
}

func TestTapManualRetries(t *testing.T) {
	audio := &fakeLoader{}
	h := newHarness(t, 0, withLoaders(map[string]MediaLoader{store.TypeAudio: audio}))
	h.waitReload(func() { h.st.add(other, store.TypeAudio) })

	h.f.WrapperAt(0)
	h.waitReload(func() { audio.complete(0, MediaResult{Status: StatusManual}) })
	if h.f.WrapperAt(0).MediaStatus != StatusManual {
		t.Fatal("status not manual")
	}

	h.f.Tap(0)
	if audio.calls() != 2 {
		t.Fatalf("loader calls = %d, want 2", audio.calls())
	}
	if !audio.reqs[1].Manual {
		t.Error("retry was not marked manual")
	}
	if h.f.WrapperAt(0).MediaStatus != StatusQueued {
		t.Error("retry did not mark the wrapper queued")
	}
}

func TestTapSucceededPresents(t *testing.T) {
	tests := []struct {
		typ   string
		check func(p *fakePresenter) bool
	}{
		{store.TypePhoto, func(p *fakePresenter) bool { return p.photos == 1 }},
		{store.TypeVideo, func(p *fakePresenter) bool { return p.videos == 1 }},
		{store.TypeLocation, func(p *fakePresenter) bool { return p.locations == 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			loader := &fakeLoader{}
			presenter := &fakePresenter{}
			h := newHarness(t, 0, withLoaders(map[string]MediaLoader{tt.typ: loader}), func(c *Config) {
				c.Presenter = presenter
			})
			h.waitReload(func() { h.st.add(other, tt.typ) })
			h.f.WrapperAt(0)
			h.waitReload(func() { loader.complete(0, MediaResult{Status: StatusSucceeded, Path: "/f"}) })

			h.f.Tap(0)
			if !tt.check(presenter) {
				t.Errorf("presenter = %+v", presenter)
			}
		})
	}
}

func TestAudioToggle(t *testing.T) {
	loader := &fakeLoader{}
	player := &fakePlayer{}
	h := newHarness(t, 0, withLoaders(map[string]MediaLoader{store.TypeAudio: loader}), func(c *Config) {
		c.Player = player
	})
	h.waitReload(func() { h.st.add(other, store.TypeAudio) })
	w := h.f.WrapperAt(0)
	h.waitReload(func() { loader.complete(0, MediaResult{Status: StatusSucceeded, Path: "/a.m4a"}) })

	reloads := h.view.reloads
	h.f.Tap(0)
	if w.AudioStatus != AudioPlaying {
		t.Fatal("tap did not start playback")
	}
	if h.view.reloads != reloads+1 {
		t.Error("start did not re-render")
	}

	h.f.Tap(0)
	if w.AudioStatus != AudioStopped {
		t.Fatal("second tap did not stop playback")
	}
	if player.stopped != 1 {
		t.Errorf("stopped = %d, want 1", player.stopped)
	}

	// Natural completion.
	h.f.Tap(0)
	if w.AudioStatus != AudioPlaying {
		t.Fatal("third tap did not start playback")
	}
	h.waitReload(player.finish)
	if w.AudioStatus != AudioStopped {
		t.Error("completion did not stop the wrapper")
	}
	if len(player.played) != 2 || player.played[0] != "/a.m4a" {
		t.Errorf("played = %v", player.played)
	}
}

func TestAudioPlaybackIsNotExclusive(t *testing.T) {
	loader := &fakeLoader{}
	player := &fakePlayer{}
	h := newHarness(t, 0, withLoaders(map[string]MediaLoader{store.TypeAudio: loader}), func(c *Config) {
		c.Player = player
	})
	h.st.add(other, store.TypeAudio)
	h.waitReload(func() { h.st.add(other, store.TypeAudio) })
	h.waitFor("two rows", func() bool { return h.f.TotalCount() == 2 })
	a, b := h.f.WrapperAt(0), h.f.WrapperAt(1)
	for i := range loader.calls() {
		loader.complete(i, MediaResult{Status: StatusSucceeded, Path: "/x"})
	}
	h.waitFor("both resolved", func() bool {
		return a.MediaStatus == StatusSucceeded && b.MediaStatus == StatusSucceeded
	})

	h.f.Tap(0)
	h.f.Tap(1)
	if a.AudioStatus != AudioPlaying || b.AudioStatus != AudioPlaying {
		t.Error("starting one clip stopped the other")
	}
}

func TestAvatarFetchedOnce(t *testing.T) {
	avatars := &fakeAvatars{local: map[string]image.Image{}}
	h := newHarness(t, 0, func(c *Config) { c.Avatars = avatars })
	for range 2 {
		m := h.st.add(other, store.TypeText)
		h.st.update(m.ObjectID, func(m *store.Message) { m.UserPictureAt = 77 })
	}
	h.waitFor("rows", func() bool { return h.f.TotalCount() == 2 && h.f.MessageAt(1).UserPictureAt == 77 })

	if img := h.f.AvatarAt(0); img != nil {
		t.Error("avatar resolved before fetch")
	}
	h.f.AvatarAt(1)
	if len(avatars.fetches) != 1 {
		t.Fatalf("fetches = %d, want 1", len(avatars.fetches))
	}

	avatars.mu.Lock()
	avatars.local[other] = image.NewGray(image.Rect(0, 0, 1, 1))
	avatars.mu.Unlock()
	h.waitReload(func() { avatars.done[0](nil) })
	if h.f.AvatarAt(0) == nil {
		t.Error("avatar missing after fetch")
	}
	if len(avatars.fetches) != 1 {
		t.Error("avatar fetched again after success")
	}
}

func TestFailedAvatarWaitsForNewPicture(t *testing.T) {
	avatars := &fakeAvatars{local: map[string]image.Image{}}
	h := newHarness(t, 0, func(c *Config) { c.Avatars = avatars })
	m := h.st.add(other, store.TypeText)
	h.st.update(m.ObjectID, func(m *store.Message) { m.UserPictureAt = 77 })
	h.waitFor("row", func() bool { return h.f.TotalCount() == 1 && h.f.MessageAt(0).UserPictureAt == 77 })

	h.f.AvatarAt(0)
	avatars.done[0](errors.New("not found"))
	h.waitFor("failure recorded", func() bool { return h.f.avatarFailed[other] == 77 })

	for range 3 {
		h.f.AvatarAt(0)
	}
	if len(avatars.fetches) != 1 {
		t.Fatalf("fetches = %d after re-renders, want 1", len(avatars.fetches))
	}

	h.st.update(m.ObjectID, func(m *store.Message) { m.UserPictureAt = 78 })
	h.waitFor("new picture", func() bool { return h.f.MessageAt(0).UserPictureAt == 78 })
	h.f.AvatarAt(0)
	if len(avatars.fetches) != 2 {
		t.Errorf("fetches = %d after picture change, want 2", len(avatars.fetches))
	}
}

func TestAvatarWithoutPictureIsNotFetched(t *testing.T) {
	avatars := &fakeAvatars{local: map[string]image.Image{}}
	h := newHarness(t, 1, func(c *Config) { c.Avatars = avatars })
	if h.f.AvatarAt(0) != nil {
		t.Error("unexpected avatar")
	}
	if len(avatars.fetches) != 0 {
		t.Error("fetched an avatar for a user without picture")
	}
	if got := h.f.AvatarInitials(0); got != h.f.MessageAt(0).UserInitials {
		t.Errorf("AvatarInitials = %q", got)
	}
}

func TestTapAvatarOpensRemoteProfiles(t *testing.T) {
	presenter := &fakePresenter{}
	h := newHarness(t, 1, func(c *Config) { c.Presenter = presenter })
	h.waitReload(func() { h.st.add(me, store.TypeText) })

	h.f.TapAvatar(0)
	h.f.TapAvatar(1)
	if len(presenter.profiles) != 1 || presenter.profiles[0] != other {
		t.Errorf("profiles = %v, want [other]", presenter.profiles)
	}
}
