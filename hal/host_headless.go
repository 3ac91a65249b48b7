package hal

import "context"

// RunHeadless boots the machine without a window and blocks until it halts
// or ctx is done.
func RunHeadless(ctx context.Context, m *Machine, boot func()) error {
	errc := make(chan error, 1)
	go func() {
		errc <- m.Boot(boot)
	}()

	select {
	case <-ctx.Done():
		m.Halt()
		<-errc
		return ctx.Err()
	case err := <-errc:
		return err
	}
}
