package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

type closeWriter interface {
	CloseWrite() error
}

// CopyBidirectional copies between left and right until both directions are
// done, one side fails, or ctx is canceled. Both connections are closed on
// return.
//
// When one direction reaches EOF its destination is half-closed if it
// supports CloseWrite; otherwise both connections are closed.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, closeBoth)
	defer stop()

	copyHalf := func(dst, src net.Conn) func() error {
		return func() error {
			if _, err := io.Copy(dst, src); err != nil {
				return err
			}
			if cw, ok := dst.(closeWriter); !ok || cw.CloseWrite() != nil {
				closeBoth()
			}
			return nil
		}
	}
	g.Go(copyHalf(left, right))
	g.Go(copyHalf(right, left))

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
