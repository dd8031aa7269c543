package service

import (
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beka-birhanu/mazewar-server/maze"
	"github.com/beka-birhanu/mazewar-server/player"
	"github.com/beka-birhanu/mazewar-server/protocol"
	"github.com/beka-birhanu/mazewar-server/registry"
	"github.com/beka-birhanu/mazewar-server/service/i"
)

// received is one outcome of a blocking protocol.Recv call, carried from
// the reader goroutine to the main connection loop over an unbuffered
// channel.
type received struct {
	hdr     protocol.Header
	payload []byte
	err     error
}

// ServeConn runs one accepted connection to completion: it owns conn for
// its entire lifetime, dispatches frames into g, and unregisters itself
// from reg on exit. It never returns until the connection is done, so
// callers run it in its own goroutine — the direct structural
// replacement for mzw_client_service's detached pthread (spec.md §4.5).
func ServeConn(conn net.Conn, connID uuid.UUID, g i.Game, reg *registry.Registry, log *zap.SugaredLogger) {
	frames := make(chan received)
	go readLoop(conn, frames)

	var p *player.Player
	defer func() {
		if p != nil {
			g.Logout(p)
		}
		reg.Unregister(connID)
		_ = conn.Close()
	}()

	for {
		if p != nil {
			if err := g.CheckForHit(p); err != nil {
				log.Debugw("check for hit before recv", "conn", connID, "err", err)
			}
		}

		var hitChan <-chan struct{}
		if p != nil {
			hitChan = p.HitChan()
		}

		select {
		case res := <-frames:
			if res.err != nil {
				log.Debugw("connection closed", "conn", connID, "err", res.err)
				return
			}
			if p != nil {
				if err := g.CheckForHit(p); err != nil {
					log.Debugw("check for hit after recv", "conn", connID, "err", err)
				}
			}
			p = dispatch(conn, connID, g, log, p, res.hdr, res.payload)

		case <-hitChan:
			// This receive already drained p.hit, so CheckForHit's own
			// TakeHit would find nothing left and silently no-op; run the
			// hit sequence directly instead.
			if err := g.HandleHit(p); err != nil {
				log.Debugw("handle hit", "conn", connID, "err", err)
			}
		}
	}
}

// readLoop owns the one blocking protocol.Recv call for this connection
// and forwards every outcome on frames, stopping after the first error.
func readLoop(conn net.Conn, frames chan<- received) {
	for {
		hdr, payload, err := protocol.Recv(conn)
		frames <- received{hdr: hdr, payload: payload, err: err}
		if err != nil {
			return
		}
	}
}

// dispatch applies one decoded frame and returns the (possibly newly
// bound) player for this connection, per spec.md §4.5 step 2d.
func dispatch(conn net.Conn, connID uuid.UUID, g i.Game, log *zap.SugaredLogger, p *player.Player, hdr protocol.Header, payload []byte) *player.Player {
	switch hdr.Type {
	case protocol.TypeLogin:
		if p != nil {
			return p // already logged in: ignored.
		}
		newP, err := g.Login(maze.Object(hdr.Param1), string(payload), conn, connID)
		if err != nil {
			if sendErr := protocol.Send(conn, protocol.Header{Type: protocol.TypeInUse}, nil); sendErr != nil {
				log.Debugw("send INUSE failed", "conn", connID, "err", sendErr)
			}
			return nil
		}
		// newP is already reachable from the table at this point, so route
		// this through its own serialized send rather than writing conn
		// directly: a broadcast from another player's goroutine could
		// already be sending to this same connection.
		if sendErr := newP.SendPacket(protocol.Header{Type: protocol.TypeReady}, nil); sendErr != nil {
			log.Debugw("send READY failed", "conn", connID, "err", sendErr)
		}
		if err := g.Reset(newP); err != nil {
			log.Debugw("post-login reset failed", "conn", connID, "err", err)
		}
		return newP

	case protocol.TypeMove:
		if p == nil {
			return p
		}
		if err := g.Move(p, signOf(hdr.Param1)); err != nil {
			log.Debugw("move rejected", "conn", connID, "err", err)
		}
		return p

	case protocol.TypeTurn:
		if p == nil {
			return p
		}
		if err := g.Rotate(p, signOf(hdr.Param1)); err != nil {
			log.Debugw("rotate failed", "conn", connID, "err", err)
		}
		return p

	case protocol.TypeFire:
		if p == nil {
			return p
		}
		if err := g.FireLaser(p); err != nil {
			log.Debugw("fire laser failed", "conn", connID, "err", err)
		}
		return p

	case protocol.TypeRefresh:
		if p == nil {
			return p
		}
		if err := g.RefreshView(p); err != nil {
			log.Debugw("refresh view failed", "conn", connID, "err", err)
		}
		return p

	case protocol.TypeSend:
		if p == nil || len(payload) == 0 {
			return p
		}
		g.SendChat(p, payload)
		return p

	default:
		log.Debugw("unknown frame type, ignored", "conn", connID, "type", hdr.Type)
		return p
	}
}

// signOf interprets a wire byte as the signed +1/-1 parameter spec.md
// §4.1 describes for MOVE and TURN frames.
func signOf(b uint8) int { return int(int8(b)) }
