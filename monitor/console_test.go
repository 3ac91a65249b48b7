package monitor

import (
	"image/color"
	"testing"

	"tickos/hal"
)

var white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

func pixelAt(fb hal.Framebuffer, x, y int) uint16 {
	buf := fb.Buffer()
	off := y*fb.StrideBytes() + x*2
	return uint16(buf[off]) | uint16(buf[off+1])<<8
}

func TestPaneScrollRegister(t *testing.T) {
	d := newPaneDisplay(4, 3)
	d.SetPixel(1, 0, white)
	d.SetScroll(1)

	fb := hal.NewFramebuffer(4, 3)
	d.blit(fb, 0)

	// Memory row 0 is shown last once the scroll start moves to row 1.
	if got := pixelAt(fb, 1, 2); got != 0xFFFF {
		t.Fatalf("screen row 2 = %#04x, want white", got)
	}
	if got := pixelAt(fb, 1, 0); got != 0 {
		t.Fatalf("screen row 0 = %#04x, want background", got)
	}

	d.SetScroll(-1)
	if d.scroll != 2 {
		t.Fatalf("SetScroll(-1) scroll = %d, want 2", d.scroll)
	}
}

func TestPaneScrollUpClearsExposedRows(t *testing.T) {
	d := newPaneDisplay(2, 3)
	d.FillRectangle(0, 0, 2, 3, white)
	d.SetPixel(0, 2, color.RGBA{R: 0xff, A: 0xff})

	if err := d.ScrollUp(1, color.RGBA{}); err != nil {
		t.Fatalf("ScrollUp() error = %v", err)
	}
	if got := d.buf[1*2+0]; got != hal.RGB565(0xff, 0, 0) {
		t.Fatalf("row 1 after scroll = %#04x, want the old row 2", got)
	}
	if d.buf[2*2] != 0 || d.buf[2*2+1] != 0 {
		t.Fatalf("exposed row not cleared: %#04x %#04x", d.buf[4], d.buf[5])
	}
}

func TestConsolePaneDropsOldestOutput(t *testing.T) {
	p := NewConsolePane(64, 20)
	if p.Height() != 20 {
		t.Fatalf("Height() = %d, want 20", p.Height())
	}
	big := make([]byte, maxPending+10)
	for i := range big {
		big[i] = 'a'
	}
	big[len(big)-1] = 'z'
	if n, err := p.Write(big); n != len(big) || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if len(p.pending) != maxPending || p.pending[maxPending-1] != 'z' {
		t.Fatalf("pending holds %d bytes, want the newest %d", len(p.pending), maxPending)
	}
}

func TestRendererDrawsConsolePane(t *testing.T) {
	target := runTarget(t, 10)
	fb := hal.NewFramebuffer(320, 240)
	pane := NewConsolePane(320, 80)
	r := NewRenderer(target, fb)
	r.AttachConsole(pane)

	pane.Write([]byte("led0: HIGH\n"))
	if err := r.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(pane.pending) != 0 {
		t.Fatalf("Step() left %d bytes queued", len(pane.pending))
	}

	lit := 0
	for y := 240 - pane.Height(); y < 240; y++ {
		for x := 0; x < 320; x++ {
			if pixelAt(fb, x, y) != 0 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Fatalf("console pane drew nothing")
	}
}
