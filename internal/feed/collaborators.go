package feed

import (
	"image"

	"github.com/matheus3301/pchat/internal/live"
	"github.com/matheus3301/pchat/internal/store"
)

// Store is the persistence a feed reads from and writes to.
type Store interface {
	LiveMessages(chatID string) live.Query[store.Message]
	LiveActions(chatID, exceptUserID string) live.Query[store.Action]
	MarkMessageDeleted(id string) error
	UpdateTyping(chatID, userID string, typing bool) error
	UpdateLastRead(chatID, userID string, at int64) error
	GetPerson(id string) (*store.Person, error)
	IsBlocker(blockerID, blockedID string) (bool, error)
	TouchRecent(userID string) error
}

// View is the render surface of a feed. All calls happen on the dispatcher's queue.
type View interface {
	Reload()
	ScrollToBottom()
	ShowLoadEarlier(show bool)
	ShowTyping(typing bool)
	PlayIncoming()
	Notify(ok bool, text string)
}

// MediaRequest asks a loader to resolve a message attachment.
type MediaRequest struct {
	Message store.Message
	Manual  bool // explicit tap, ignores auto-download settings
}

// MediaResult is what a loader reports back.
type MediaResult struct {
	Status  MediaStatus
	Path    string      // local file of the resolved content
	Preview image.Image // thumbnail or rendered placeholder, optional
}

// MediaLoader resolves attachments of one content type. Load must not block;
// done may be called from any goroutine, exactly once.
type MediaLoader interface {
	Load(req MediaRequest, done func(MediaResult))
}

// AvatarResolver provides user pictures.
type AvatarResolver interface {
	// Local returns an already resolved avatar without touching the disk or network.
	Local(userID string) (image.Image, bool)
	// Fetch resolves the avatar in the background; done may be called from any goroutine.
	Fetch(userID string, pictureAt int64, done func(error))
}

// Presenter opens full content views.
type Presenter interface {
	ShowPhoto(w *Wrapper)
	ShowVideo(w *Wrapper)
	ShowLocation(w *Wrapper)
	ShowProfile(userID string)
}

// AudioPlayer plays audio attachments. The returned channel is closed when
// playback ends, whether it completed or was stopped.
type AudioPlayer interface {
	Play(path string) (stop func(), done <-chan struct{}, err error)
}

// Exporter copies a resolved attachment out of the media cache. It may block.
type Exporter interface {
	Export(src, name string) (string, error)
}

// Draft is an outgoing message before it becomes a record.
type Draft struct {
	Type      string
	Text      string
	Path      string // local file for photo, video and audio
	Latitude  float64
	Longitude float64
}

// Sender hands composed and forwarded messages to the outbound service.
type Sender interface {
	Send(chatID string, d Draft) error
	Forward(chatID string, m store.Message) error
}
