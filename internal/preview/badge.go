package preview

import (
	"image"
	"image/color"

	"github.com/bryanchriswhite/ScreenRecorder/internal/recording"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	badgeMargin  = 8
	badgePadding = 5
	badgeOpacity = 0xb0
)

var (
	badgeBackground = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	badgeText       = color.RGBA{R: 0xff, G: 0x55, B: 0x55, A: 0xff}
)

// DrawBadge draws text on a translucent box in the top-left corner of img
func DrawBadge(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	textWidth := d.MeasureString(text).Ceil()
	ascent := face.Metrics().Ascent.Ceil()
	lineHeight := face.Metrics().Height.Ceil()

	box := image.Rect(0, 0, textWidth+badgePadding*2, lineHeight+badgePadding*2).
		Add(img.Bounds().Min).
		Add(image.Pt(badgeMargin, badgeMargin))

	draw.DrawMask(img, box, image.NewUniform(badgeBackground), image.Point{},
		image.NewUniform(color.Alpha{A: badgeOpacity}), image.Point{}, draw.Over)

	d.Dst = img
	d.Src = image.NewUniform(badgeText)
	d.Dot = fixed.P(box.Min.X+badgePadding, box.Min.Y+badgePadding+ascent)
	d.DrawString(text)
}

// StatusSource reports the session status
type StatusSource interface {
	Status() recording.Status
}

// SessionBadge labels frames while a recording is running or paused
func SessionBadge(s StatusSource) func() string {
	return func() string {
		st := s.Status()
		switch st.State {
		case recording.StateRecording:
			return "REC " + st.ElapsedText
		case recording.StatePaused:
			return "PAUSED " + st.ElapsedText
		}
		return ""
	}
}
