//go:build cgo

package hal

import (
	"context"
	"errors"
	"image"

	"tickos/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// WindowConfig controls the desktop monitor window.
type WindowConfig struct {
	Framebuffer Framebuffer
	// Step runs once per frame on the window goroutine, before drawing.
	Step  func() error
	Scale int
}

// RunWindow boots the machine and shows the framebuffer in a desktop window.
// It blocks until the window closes, the machine halts, or ctx is done; a
// closed window halts the machine.
func RunWindow(ctx context.Context, m *Machine, boot func(), cfg WindowConfig) error {
	fb, ok := cfg.Framebuffer.(*hostFramebuffer)
	if !ok {
		return errors.New("window mode needs a framebuffer from NewFramebuffer")
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 2
	}

	errc := make(chan error, 1)
	go func() {
		errc <- m.Boot(boot)
	}()

	g := &hostGame{ctx: ctx, m: m, fb: fb, step: cfg.Step}
	ebiten.SetWindowTitle("tickos (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(fb.width*cfg.Scale, fb.height*cfg.Scale)
	ebiten.SetTPS(60)
	runErr := ebiten.RunGame(g)

	m.Halt()
	bootErr := <-errc
	if runErr != nil {
		return runErr
	}
	if bootErr == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return bootErr
}

type hostGame struct {
	ctx     context.Context
	m       *Machine
	fb      *hostFramebuffer
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	step    func() error
}

func (g *hostGame) Update() error {
	select {
	case <-g.ctx.Done():
		return ebiten.Termination
	default:
	}
	if g.step != nil {
		if err := g.step(); err != nil {
			return err
		}
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.fb
	if g.img == nil || g.img.Bounds().Dx() != fb.width || g.img.Bounds().Dy() != fb.height {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)

	src := g.scratch
	dst := g.img.Pix
	for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		j := (i / 2) * 4
		dst[j+0] = r
		dst[j+1] = gg
		dst[j+2] = b
		dst[j+3] = 0xFF
	}

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.fb.width, g.fb.height
}
