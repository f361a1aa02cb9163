package fleet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// accept listens for server-role vehicles and hands each socket to the first link whose peer
// matches. Sockets nobody claims are closed.
func (f *Fleet) accept(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", f.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", f.cfg.ListenAddr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	f.listenMu.Lock()
	f.addr = ln.Addr()
	f.listenMu.Unlock()
	defer func() {
		f.listenMu.Lock()
		f.addr = nil
		f.listenMu.Unlock()
	}()

	f.logger.Info("accepting vehicle connections", "addr", ln.Addr())
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Temporary failures such as running out of file descriptors.
			delay = min(max(2*delay, 5*time.Millisecond), time.Second)
			f.logger.Warn("accept failed", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-f.clock.After(delay):
			}
			continue
		}
		delay = 0
		f.route(conn)
	}
}

func (f *Fleet) route(conn net.Conn) {
	for _, id := range f.ids {
		if f.links[id].Accept(conn) {
			f.logger.Debug("vehicle connection accepted", "vehicle", id, "remote", conn.RemoteAddr())
			return
		}
	}
	f.logger.Warn("connection from unknown peer closed", "remote", conn.RemoteAddr())
	_ = conn.Close()
}
