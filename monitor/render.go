package monitor

import (
	"fmt"
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"tickos/hal"
	"tickos/trace"
)

var (
	colorBG       = color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xff}
	colorFG       = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	colorDim      = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
	colorHeaderBG = color.RGBA{R: 0x18, G: 0x18, B: 0x18, A: 0xff}
	colorRunning  = color.RGBA{R: 0x4a, G: 0xdf, B: 0x6a, A: 0xff}
	colorBlocked  = color.RGBA{R: 0xff, G: 0xdd, B: 0x66, A: 0xff}
)

const (
	lineHeight = 10
	fontOffset = 8
	recentRows = 6
)

// Renderer draws the task table and recent switches onto a framebuffer.
type Renderer struct {
	target Target
	fb     hal.Framebuffer
	d      *fbDisplay
	font   tinyfont.Fonter
	pane   *ConsolePane
}

// NewRenderer returns a Renderer drawing target onto fb.
func NewRenderer(target Target, fb hal.Framebuffer) *Renderer {
	return &Renderer{
		target: target,
		fb:     fb,
		d:      &fbDisplay{fb: fb},
		font:   &proggy.TinySZ8pt7b,
	}
}

// AttachConsole shows p along the bottom edge of every frame.
func (r *Renderer) AttachConsole(p *ConsolePane) {
	r.pane = p
}

// Step samples the target and presents one frame.
func (r *Renderer) Step() error {
	if r.fb == nil || r.fb.Format() != hal.PixelFormatRGB565 {
		return nil
	}
	s := r.target.Sample()
	w, h := r.d.Size()
	if r.pane != nil {
		h -= int16(r.pane.Height() + 1)
	}

	r.fb.ClearRGB(colorBG.R, colorBG.G, colorBG.B)
	r.d.FillRectangle(0, 0, w, lineHeight+2, colorHeaderBG)

	st := s.Status
	r.text(2, 0, colorFG, fmt.Sprintf("%s  tick %d  tasks %d", st.Phase, st.Ticks, st.Tasks))

	y := int16(lineHeight + 4)
	r.text(2, y, colorDim, "id name         pri slice left state")
	y += lineHeight
	for _, t := range s.Tasks {
		if y+lineHeight > h {
			break
		}
		c := colorFG
		switch {
		case t.Current:
			c = colorRunning
		case t.State != "ready":
			c = colorBlocked
		}
		r.text(2, y, c, fmt.Sprintf("%2d %-12s %3d %5d %4d %s",
			t.ID, fitText(t.Name, 12), t.Priority, t.TimeSlice, t.Remaining, t.State))
		y += lineHeight
	}

	if r.target.Recorder != nil && y+2*lineHeight <= h {
		y += lineHeight / 2
		r.text(2, y, colorDim, "recent switches")
		y += lineHeight
		for _, e := range recentSwitches(r.target.Recorder, recentRows) {
			if y+lineHeight > h {
				break
			}
			r.text(2, y, colorFG, fmt.Sprintf("t=%-6d %d -> %d", e.Tick, e.From, e.To))
			y += lineHeight
		}
	}

	if r.pane != nil {
		r.pane.flush()
		r.d.FillRectangle(0, h, w, 1, colorDim)
		r.pane.drawTo(r.fb, int(h)+1)
	}
	return r.d.Display()
}

func (r *Renderer) text(x, y int16, c color.RGBA, s string) {
	tinyfont.WriteLine(r.d, r.font, x, y+fontOffset, s, c)
}

func recentSwitches(rec *trace.Recorder, n int) []trace.Event {
	events := rec.Recent(n * 4)
	out := make([]trace.Event, 0, n)
	for i := len(events) - 1; i >= 0 && len(out) < n; i-- {
		if events[i].Kind == trace.KindSwitch {
			out = append(out, events[i])
		}
	}
	return out
}

func fitText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// fbDisplay adapts a Framebuffer to drivers.Displayer.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = (*fbDisplay)(nil)

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}
	buf := d.fb.Buffer()
	off := iy*d.fb.StrideBytes() + ix*2
	if off+1 >= len(buf) {
		return
	}
	pixel := hal.RGB565(c.R, c.G, c.B)
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d *fbDisplay) Display() error {
	return d.fb.Present()
}

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) {
	w, h := d.fb.Width(), d.fb.Height()
	x0 := clampInt(int(x), 0, w)
	y0 := clampInt(int(y), 0, h)
	x1 := clampInt(int(x)+int(width), 0, w)
	y1 := clampInt(int(y)+int(height), 0, h)

	pixel := hal.RGB565(c.R, c.G, c.B)
	buf := d.fb.Buffer()
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			off := py*stride + px*2
			buf[off] = byte(pixel)
			buf[off+1] = byte(pixel >> 8)
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
