package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/pchat/internal/media"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// LocationView shows a shared position as coordinates and a scannable
// geo: QR code, which opens the place on a phone.
type LocationView struct {
	*tview.TextView
}

// NewLocationView renders the position at lat, lon.
func NewLocationView(theme *ui.Theme, lat, lon float64) *LocationView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Location ")
	tv.SetTitleColor(theme.TitleColor)

	uri := media.GeoURI(lat, lon)
	_, _ = fmt.Fprintf(tv, "\n[::b]%.6f, %.6f[-:-:-]\n\n%s\n[::d]%s[-:-:-]", lat, lon, renderQR(uri), uri)
	return &LocationView{TextView: tv}
}

func (lv *LocationView) Name() string { return "Location" }
func (lv *LocationView) Start()       {}
func (lv *LocationView) Stop()        {}

func (lv *LocationView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Back"}}
}

// renderQR converts content to a compact QR code using Unicode half-block
// characters. Two bitmap rows become one terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "(QR generation failed: " + err.Error() + ")"
	}
	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
