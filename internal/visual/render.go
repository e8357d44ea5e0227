package visual

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"
)

// CoverRect returns the source rectangle that, scaled to dst, fills it completely
// while keeping the aspect ratio and centering the crop.
func CoverRect(src image.Rectangle, dstW, dstH int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 || dstW <= 0 || dstH <= 0 {
		return src
	}
	// compare aspect ratios without floats: sw/sh vs dstW/dstH
	if sw*dstH > sh*dstW {
		w := sh * dstW / dstH
		x := src.Min.X + (sw-w)/2
		return image.Rect(x, src.Min.Y, x+w, src.Max.Y)
	}
	h := sw * dstH / dstW
	y := src.Min.Y + (sh-h)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+h)
}

// Scale draws img cover-fitted into a w x h RGBA canvas.
func Scale(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, CoverRect(img.Bounds(), w, h), draw.Src, nil)
	return dst
}

func hex(c color.Color) lipgloss.Color {
	r, g, b, _ := c.RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
}

// Render draws img into cols x rows terminal cells using upper half blocks, so
// every cell carries two vertical pixels.
func Render(img image.Image, cols, rows int) string {
	if img == nil || cols <= 0 || rows <= 0 {
		return ""
	}
	px := Scale(img, cols, rows*2)
	var b strings.Builder
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			top := px.At(x, 2*y)
			bottom := px.At(x, 2*y+1)
			b.WriteString(lipgloss.NewStyle().Foreground(hex(top)).Background(hex(bottom)).Render("▀"))
		}
		if y < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Placeholder fills the background area when no image could be decoded.
func Placeholder(label string, cols, rows int, fg, bg lipgloss.Color) string {
	if cols <= 0 || rows <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Width(cols).Height(rows).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(fg).Background(bg).
		Render(label)
}

// Renderer memoizes the last rendered frame.
type Renderer struct {
	url        string
	decoded    bool
	cols, rows int
	out        string
}

// Frame renders bg at the given size, reusing the previous frame when nothing changed.
func (r *Renderer) Frame(bg Background, cols, rows int, fg, fill lipgloss.Color) string {
	if bg.URL == r.url && (bg.Image != nil) == r.decoded && cols == r.cols && rows == r.rows && r.out != "" {
		return r.out
	}
	var out string
	switch {
	case bg.Image != nil:
		out = Render(bg.Image, cols, rows)
	case bg.URL != "":
		out = Placeholder("场景图片无法预览", cols, rows, fg, fill)
	default:
		out = Placeholder("", cols, rows, fg, fill)
	}
	r.url, r.decoded, r.cols, r.rows, r.out = bg.URL, bg.Image != nil, cols, rows, out
	return out
}
