package feed

import (
	"image"

	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

// MediaStatus is the resolution state of an attachment.
type MediaStatus int

const (
	StatusUnknown MediaStatus = iota
	StatusQueued
	StatusManual
	StatusSucceeded
	StatusFailed
)

func (s MediaStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusManual:
		return "manual"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AudioStatus is the playback state of an audio wrapper.
type AudioStatus int

const (
	AudioStopped AudioStatus = iota
	AudioPlaying
)

// Wrapper is the presentation state of one message. The record fields are
// refreshed on every access; the UI fields are owned by the feed and survive.
type Wrapper struct {
	Message  store.Message
	Incoming bool

	MediaStatus MediaStatus
	AudioStatus AudioStatus
	MediaPath   string
	Preview     image.Image

	audioSeq  int
	stopAudio func()
}

// ID returns the message identity.
func (w *Wrapper) ID() string {
	return w.Message.ObjectID
}

// Outgoing reports whether the local user authored the message.
func (w *Wrapper) Outgoing() bool {
	return !w.Incoming
}

func (w *Wrapper) sync(m store.Message, me string) {
	w.Message = m
	w.Incoming = m.UserID != me
}

// WrapperAt returns the cached wrapper of render row i, creating it on first use.
func (f *Feed) WrapperAt(i int) *Wrapper {
	m := f.MessageAt(i)
	w, ok := f.wrappers[m.ObjectID]
	if !ok {
		w = &Wrapper{}
		f.wrappers[m.ObjectID] = w
	}
	w.sync(m, f.me)
	f.loadMedia(w)
	return w
}

func (f *Feed) loadMedia(w *Wrapper) {
	if w.MediaStatus != StatusUnknown {
		return
	}
	if w.Incoming && w.Message.IsMediaQueued {
		return
	}
	if w.Incoming && w.Message.IsMediaFailed {
		return
	}
	if loader, ok := f.loaders[w.Message.Type]; ok {
		f.startLoad(w, loader, false)
	}
}

func (f *Feed) startLoad(w *Wrapper, loader MediaLoader, manual bool) {
	w.MediaStatus = StatusQueued
	loader.Load(MediaRequest{Message: w.Message, Manual: manual}, func(res MediaResult) {
		f.d.Post(func() {
			if f.closed {
				return
			}
			w.MediaStatus = res.Status
			if res.Path != "" {
				w.MediaPath = res.Path
			}
			if res.Preview != nil {
				w.Preview = res.Preview
			}
			f.view.Reload()
		})
	})
}

// Tap handles a tap on the bubble of row i: manual attachments are loaded,
// resolved ones are presented.
func (f *Feed) Tap(i int) {
	w := f.WrapperAt(i)
	switch w.MediaStatus {
	case StatusManual:
		switch w.Message.Type {
		case store.TypePhoto, store.TypeVideo, store.TypeAudio:
			if loader, ok := f.loaders[w.Message.Type]; ok {
				f.startLoad(w, loader, true)
			}
		}
	case StatusSucceeded:
		switch w.Message.Type {
		case store.TypePhoto:
			if f.presenter != nil {
				f.presenter.ShowPhoto(w)
			}
		case store.TypeVideo:
			if f.presenter != nil {
				f.presenter.ShowVideo(w)
			}
		case store.TypeAudio:
			f.toggleAudio(w)
		case store.TypeLocation:
			if f.presenter != nil {
				f.presenter.ShowLocation(w)
			}
		}
	}
}

func (f *Feed) toggleAudio(w *Wrapper) {
	switch w.AudioStatus {
	case AudioStopped:
		if f.player == nil {
			return
		}
		stop, done, err := f.player.Play(w.MediaPath)
		if err != nil {
			f.logger.Warn("audio playback failed", zap.String("msg_id", w.ID()), zap.Error(err))
			return
		}
		w.audioSeq++
		seq := w.audioSeq
		w.stopAudio = stop
		w.AudioStatus = AudioPlaying
		f.view.Reload()

		go func() {
			<-done
			f.d.Post(func() {
				if f.closed || w.audioSeq != seq || w.AudioStatus != AudioPlaying {
					return
				}
				w.AudioStatus = AudioStopped
				w.stopAudio = nil
				f.view.Reload()
			})
		}()
	case AudioPlaying:
		if w.stopAudio != nil {
			w.stopAudio()
			w.stopAudio = nil
		}
		w.AudioStatus = AudioStopped
		f.view.Reload()
	}
}

// AvatarAt returns the avatar of row i's author, or nil while it is not
// resolved. A missing avatar is fetched once; the feed re-renders on success.
// A failed picture is not retried until the author sets a new one.
func (f *Feed) AvatarAt(i int) image.Image {
	w := f.WrapperAt(i)
	userID := w.Message.UserID
	if img, ok := f.avatarImages[userID]; ok {
		return img
	}
	if f.avatars == nil {
		return nil
	}
	if img, ok := f.avatars.Local(userID); ok {
		f.avatarImages[userID] = img
		return img
	}
	pictureAt := w.Message.UserPictureAt
	if pictureAt == 0 || f.avatarFetching[userID] || f.avatarFailed[userID] == pictureAt {
		return nil
	}
	f.avatarFetching[userID] = true
	f.avatars.Fetch(userID, pictureAt, func(err error) {
		f.d.Post(func() {
			delete(f.avatarFetching, userID)
			if f.closed {
				return
			}
			if err != nil {
				f.avatarFailed[userID] = pictureAt
				f.logger.Debug("avatar fetch failed", zap.String("user_id", userID), zap.Int64("picture_at", pictureAt), zap.Error(err))
				return
			}
			delete(f.avatarFailed, userID)
			f.view.Reload()
		})
	})
	return nil
}

// AvatarInitials returns the initials shown when row i has no avatar image.
func (f *Feed) AvatarInitials(i int) string {
	return f.WrapperAt(i).Message.UserInitials
}

// TapAvatar opens the author's profile unless it is the local user.
func (f *Feed) TapAvatar(i int) {
	w := f.WrapperAt(i)
	if w.Message.UserID != f.me && f.presenter != nil {
		f.presenter.ShowProfile(w.Message.UserID)
	}
}
