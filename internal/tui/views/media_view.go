package views

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// PhotoView shows a resolved photo attachment.
type PhotoView struct {
	*tview.Image
}

// NewPhotoView renders img, titled after the file it came from.
func NewPhotoView(theme *ui.Theme, img image.Image, path string) *PhotoView {
	iv := tview.NewImage().SetImage(img)
	iv.SetBorder(true)
	iv.SetBorderColor(theme.BorderColor)
	iv.SetBackgroundColor(theme.BgColor)
	iv.SetTitle(fmt.Sprintf(" %s ", filepath.Base(path)))
	iv.SetTitleColor(theme.TitleColor)
	return &PhotoView{Image: iv}
}

func (pv *PhotoView) Name() string { return "Photo" }
func (pv *PhotoView) Start()       {}
func (pv *PhotoView) Stop()        {}

func (pv *PhotoView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Back"}}
}

// VideoView plays a video attachment in the external player while shown.
type VideoView struct {
	*tview.TextView
	path  string
	play  func(path string) (stop func(), err error)
	stop  func()
	onErr func(error)
}

// NewVideoView creates the page for the video at path. play starts the
// external player and returns its stop function.
func NewVideoView(theme *ui.Theme, path string, play func(path string) (func(), error), onErr func(error)) *VideoView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Video ")
	tv.SetTitleColor(theme.TitleColor)
	_, _ = fmt.Fprintf(tv, "\n\n[::b]%s[-:-:-]\n\n[::d]playing in the external player[-:-:-]", display(filepath.Base(path)))
	return &VideoView{TextView: tv, path: path, play: play, onErr: onErr}
}

func (vv *VideoView) Name() string { return "Video" }

// Start launches playback.
func (vv *VideoView) Start() {
	stop, err := vv.play(vv.path)
	if err != nil {
		if vv.onErr != nil {
			vv.onErr(err)
		}
		return
	}
	vv.stop = stop
}

// Stop ends playback when the page is closed.
func (vv *VideoView) Stop() {
	if vv.stop != nil {
		vv.stop()
		vv.stop = nil
	}
}

func (vv *VideoView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Stop and go back"}}
}
