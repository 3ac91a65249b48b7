package monitor

import (
	"bytes"
	"image/color"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"

	"tickos/hal"
)

// maxPending bounds console output buffered between frames. Older bytes are
// dropped first.
const maxPending = 4096

// ConsolePane is a scrolling text pane that shows the machine console in the
// monitor window. Write may be called from any goroutine; the terminal itself
// is only touched from Renderer.Step.
type ConsolePane struct {
	mu      sync.Mutex
	pending []byte

	d *paneDisplay
	t *tinyterm.Terminal
}

// NewConsolePane returns a pane of the given size. height is rounded down to
// whole text lines.
func NewConsolePane(width, height int) *ConsolePane {
	height -= height % lineHeight
	if height < lineHeight {
		height = lineHeight
	}
	d := newPaneDisplay(width, height)
	t := tinyterm.NewTerminal(d)
	t.Configure(&tinyterm.Config{
		Font:       &proggy.TinySZ8pt7b,
		FontHeight: lineHeight,
		FontOffset: fontOffset,
	})
	return &ConsolePane{d: d, t: t}
}

// Write queues console output for the next frame.
func (p *ConsolePane) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, b...)
	if over := len(p.pending) - maxPending; over > 0 {
		p.pending = p.pending[over:]
	}
	return len(b), nil
}

// Height is the pane height in pixels.
func (p *ConsolePane) Height() int { return p.d.height }

// flush feeds queued output through the terminal.
func (p *ConsolePane) flush() {
	p.mu.Lock()
	buf := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(buf) > 0 {
		p.t.Write(bytes.ReplaceAll(buf, []byte("\n"), []byte("\r\n")))
	}
}

// drawTo copies the pane into fb with its top edge at y.
func (p *ConsolePane) drawTo(fb hal.Framebuffer, y int) {
	p.d.blit(fb, y)
}

// paneDisplay is an offscreen RGB565 display with a vertical scroll register,
// the way a panel controller's scroll start line works: row r of the visible
// pane shows memory row (scroll+r) mod height.
type paneDisplay struct {
	width, height int
	scroll        int
	buf           []uint16
}

var _ tinyterm.Displayer = (*paneDisplay)(nil)

func newPaneDisplay(width, height int) *paneDisplay {
	return &paneDisplay{
		width:  width,
		height: height,
		buf:    make([]uint16, width*height),
	}
}

func (d *paneDisplay) Size() (x, y int16) {
	return int16(d.width), int16(d.height)
}

func (d *paneDisplay) SetPixel(x, y int16, c color.RGBA) {
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.width || iy < 0 || iy >= d.height {
		return
	}
	d.buf[iy*d.width+ix] = hal.RGB565(c.R, c.G, c.B)
}

func (d *paneDisplay) Display() error { return nil }

func (d *paneDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	x0 := clampInt(int(x), 0, d.width)
	y0 := clampInt(int(y), 0, d.height)
	x1 := clampInt(int(x)+int(width), 0, d.width)
	y1 := clampInt(int(y)+int(height), 0, d.height)
	pixel := hal.RGB565(c.R, c.G, c.B)
	for py := y0; py < y1; py++ {
		row := d.buf[py*d.width : (py+1)*d.width]
		for px := x0; px < x1; px++ {
			row[px] = pixel
		}
	}
	return nil
}

// ScrollUp shifts memory up by lines and clears the exposed rows.
func (d *paneDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	n := int(lines)
	if n <= 0 {
		return nil
	}
	if n < d.height {
		copy(d.buf, d.buf[n*d.width:])
	}
	return d.FillRectangle(0, int16(d.height-n), int16(d.width), int16(n), bg)
}

func (d *paneDisplay) SetScroll(line int16) {
	d.scroll = ((int(line) % d.height) + d.height) % d.height
}

func (d *paneDisplay) SetRotation(drivers.Rotation) error { return nil }

func (d *paneDisplay) blit(fb hal.Framebuffer, top int) {
	buf := fb.Buffer()
	stride := fb.StrideBytes()
	w := min(d.width, fb.Width())
	for r := 0; r < d.height; r++ {
		y := top + r
		if y < 0 || y >= fb.Height() {
			continue
		}
		src := d.buf[((d.scroll+r)%d.height)*d.width:]
		dst := buf[y*stride:]
		for x := 0; x < w; x++ {
			dst[x*2] = byte(src[x])
			dst[x*2+1] = byte(src[x] >> 8)
		}
	}
}
