// Package game is the orchestration layer between the wire protocol and
// the leaf packages maze and player: every player-visible operation
// (login, movement, rotation, laser fire, hit handling, respawn, chat)
// lives here — SPEC_FULL.md §4.4. Each step takes a player's own lock
// only briefly through a player accessor, and never two players' locks
// at once. Frames are written under the receiving player's own lock
// (player.SendPacket, player.UpdateView), and a view redraw reads the
// maze while that lock is held, so the maze lock is always innermost.
// This is the split the teacher
// repo's Game/GameSessionManager pairing inspired, adapted to avoid a
// recursive mutex (spec.md §9).
package game

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beka-birhanu/mazewar-server/maze"
	"github.com/beka-birhanu/mazewar-server/player"
	"github.com/beka-birhanu/mazewar-server/protocol"
)

// hitStunDuration is how long a hit player is held before respawning,
// matching the sleep(3) in player_check_for_laser_hit.
const hitStunDuration = 3 * time.Second

// Game composes the shared maze and player table, and is the single
// object a connection's service loop calls into after login.
type Game struct {
	maze  *maze.Maze
	table *player.Table
	log   *zap.SugaredLogger
}

// New returns a Game over the given maze and player table.
func New(m *maze.Maze, t *player.Table, log *zap.SugaredLogger) *Game {
	return &Game{maze: m, table: t, log: log}
}

// Table exposes the underlying player table, e.g. for the service
// package to report live-player counts.
func (g *Game) Table() *player.Table { return g.table }

// Login places a new player of the given avatar and name at a random
// empty maze cell and registers it in the table. It fails if the avatar
// is already logged in or the maze has no empty cell left, mirroring
// player_login's two failure modes.
func (g *Game) Login(avatar maze.Object, name string, conn net.Conn, connID uuid.UUID) (*player.Player, error) {
	return g.table.LoginNew(avatar, func() (*player.Player, error) {
		row, col, err := g.maze.SetPlayerRandom(avatar)
		if err != nil {
			return nil, fmt.Errorf("game: login: %w", err)
		}
		p := player.New(avatar, name, conn, connID)
		p.SetLocation(row, col)
		return p, nil
	})
}

// Logout removes p from the maze and the table and drops the table's
// reference to it, then tells every remaining player p is gone.
func (g *Game) Logout(p *player.Player) {
	loc := p.Location()
	g.maze.Remove(p.Avatar(), loc.Row, loc.Col)
	g.table.Logout(p.Avatar())
	g.broadcastScore(p.Avatar(), -1)
	p.Unref()
}

// Move steps p one cell forward (sign > 0) or backward (sign < 0, i.e.
// the reverse of its current gaze) and, on success, refreshes every
// logged-in player's view — including p's own, since its surroundings
// changed, and everyone else's, since p's avatar moved within their
// sightlines. A move into a wall, an occupied cell, or off the grid is
// a silent no-op failure per spec.md §7; the caller sends no error
// frame back to the client.
func (g *Game) Move(p *player.Player, sign int) error {
	loc := p.Location()
	dir := loc.Dir
	if sign < 0 {
		dir = maze.Reverse(dir)
	}

	nr, nc, err := g.maze.Move(loc.Row, loc.Col, dir)
	if err != nil {
		return err
	}
	p.SetLocation(nr, nc)
	g.broadcastViews()
	return nil
}

// RefreshView forces a full CLEAR+SHOW redraw of p's own view, ignoring
// whatever is cached, the direct analogue of the REFRESH frame's effect
// in spec.md §4.5.
func (g *Game) RefreshView(p *player.Player) error {
	p.InvalidateView()
	return g.updateView(p)
}

// Rotate turns p one quarter turn left (sign > 0) or right (sign < 0),
// invalidates its cached view (a rotation changes the whole visible
// corridor), and redraws it. Other players' views are unaffected: an
// avatar's on-wire byte doesn't depend on the direction it's facing.
func (g *Game) Rotate(p *player.Player, sign int) error {
	d := p.Dir()
	if sign > 0 {
		d = maze.TurnLeft(d)
	} else {
		d = maze.TurnRight(d)
	}
	p.SetDir(d)
	p.InvalidateView()
	return g.updateView(p)
}

// FireLaser scans straight ahead of p for the first avatar in its
// sightline. If one is found, it is marked hit (observed asynchronously
// by that player's own service loop via CheckForHit) and p's score is
// incremented and broadcast. Firing into a wall or empty corridor, or
// at nothing before the grid edge, is a silent no-op.
func (g *Game) FireLaser(p *player.Player) error {
	loc := p.Location()
	target := g.maze.FindTarget(loc.Row, loc.Col, loc.Dir)
	if !target.IsAvatar() {
		return nil
	}

	victim := g.table.Get(target)
	if victim == nil {
		return nil
	}
	defer victim.Unref()

	victim.MarkHit()
	score := p.AddScore(1)
	g.broadcastScore(p.Avatar(), score)
	return nil
}

// CheckForHit drains p's pending hit notification, if any, and runs the
// hit sequence if one was pending. Called by the service loop both
// immediately before and immediately after each blocking receive, per
// spec.md §4.5.
func (g *Game) CheckForHit(p *player.Player) error {
	if !p.TakeHit() {
		return nil
	}
	return g.runHitSequence(p)
}

// HandleHit runs the hit sequence unconditionally, for a caller that has
// already consumed the notification token itself — e.g. a select
// receiving directly off p.HitChan() while idle between frames. Such a
// caller must not route through CheckForHit: TakeHit does its own
// non-blocking receive on the same channel, which would find nothing
// left to drain and silently skip the hit entirely.
func (g *Game) HandleHit(p *player.Player) error {
	return g.runHitSequence(p)
}

// runHitSequence vanishes p from the maze, redraws everyone's view,
// tells p it was hit, holds it for hitStunDuration, then respawns it.
func (g *Game) runHitSequence(p *player.Player) error {
	loc := p.Location()
	g.maze.Remove(p.Avatar(), loc.Row, loc.Col)
	g.broadcastViews()

	if err := p.SendPacket(protocol.Header{Type: protocol.TypeAlert}, nil); err != nil {
		return fmt.Errorf("game: send ALERT: %w", err)
	}

	time.Sleep(hitStunDuration)
	return g.Reset(p)
}

// Reset removes p from wherever it currently sits and attempts to place
// it at a new random empty cell. On placement failure, p is left in
// limbo at the (-1,-1) sentinel location — still in the table, but
// invisible and immobile until it next disconnects — without touching
// its score or broadcasting anything, matching the order of operations
// in player_reset (placement before score reset). On success, its score
// is zeroed, every other player's current score is replayed to it, its
// own zeroed score is broadcast to everyone, and every view is redrawn.
func (g *Game) Reset(p *player.Player) error {
	loc := p.Location()
	g.maze.Remove(p.Avatar(), loc.Row, loc.Col)

	row, col, err := g.maze.SetPlayerRandom(p.Avatar())
	if err != nil {
		p.SetLocation(-1, -1)
		if g.log != nil {
			g.log.Errorw("respawn failed, player left in limbo", "avatar", string(rune(p.Avatar())), "err", err)
		}
		return fmt.Errorf("game: reset: %w", err)
	}
	p.SetLocation(row, col)
	p.ResetScore()

	snapshot := g.table.Snapshot()
	defer releaseSnapshot(snapshot)
	for _, other := range snapshot {
		if other.Avatar() == p.Avatar() {
			continue
		}
		if err := sendScore(p, other.Avatar(), other.Score()); err != nil && g.log != nil {
			g.log.Debugw("send score to respawned player failed", "err", err)
		}
	}

	g.broadcastScore(p.Avatar(), 0)
	g.broadcastViews()
	return nil
}

// SendChat formats "name[avatar] message" and broadcasts it as a CHAT
// frame to every logged-in player, the sender included, truncating to
// 1024 bytes to match the original fixed buffer's capacity.
func (g *Game) SendChat(p *player.Player, message []byte) {
	formatted := []byte(fmt.Sprintf("%s[%c] ", p.Name(), rune(p.Avatar())))
	formatted = append(formatted, message...)
	if len(formatted) > 1024 {
		formatted = formatted[:1024]
	}

	snapshot := g.table.Snapshot()
	defer releaseSnapshot(snapshot)
	for _, other := range snapshot {
		if err := other.SendPacket(protocol.Header{Type: protocol.TypeChat}, formatted); err != nil && g.log != nil {
			g.log.Debugw("send chat failed", "to", other.Name(), "err", err)
		}
	}
}

// broadcastViews redraws every logged-in player's view under a single
// table-lock snapshot, taking and releasing each player's own lock one
// at a time as updateView runs — never the table lock and a player lock
// together (SPEC_FULL.md §4.4 Open Question #1).
func (g *Game) broadcastViews() {
	snapshot := g.table.Snapshot()
	defer releaseSnapshot(snapshot)
	for _, p := range snapshot {
		if err := g.updateView(p); err != nil && g.log != nil {
			g.log.Debugw("update view failed", "to", p.Name(), "err", err)
		}
	}
}

// broadcastScore tells every logged-in player that avatar's score is
// now score (score == -1 signals "remove from scoreboard", used on
// logout).
func (g *Game) broadcastScore(avatar maze.Object, score int) {
	snapshot := g.table.Snapshot()
	defer releaseSnapshot(snapshot)
	for _, p := range snapshot {
		if err := sendScore(p, avatar, score); err != nil && g.log != nil {
			g.log.Debugw("send score failed", "to", p.Name(), "err", err)
		}
	}
}

// updateView recomputes p's view and sends only what the client doesn't
// already have cached: a full CLEAR+SHOW redraw if the cache is
// invalid, otherwise one SHOW per cell whose value changed, including
// clearing cells that fell out of the new (possibly shorter) view.
// Preserves the "no batching" behavior documented in spec.md §9 Open
// Question #4: one frame per changed cell, never coalesced. The compute,
// diff, send, and cache-commit steps all run under p.UpdateView's single
// lock, so two concurrent redraws of the same player (e.g. from two
// different broadcasts) can't interleave their diffs against the cache.
func (g *Game) updateView(p *player.Player) error {
	return p.UpdateView(
		func(row, col int, dir maze.Direction) maze.View {
			return g.maze.GetView(row, col, dir, player.ViewDepth)
		},
		func(send func(protocol.Header, []byte) error, prev player.ViewState, view maze.View) error {
			if prev.ValidDepth < 0 {
				if err := send(protocol.Header{Type: protocol.TypeClear}, nil); err != nil {
					return fmt.Errorf("game: send CLEAR: %w", err)
				}
				for d, row := range view {
					for pos := 0; pos < 3; pos++ {
						if err := sendShow(send, row[pos], pos, d); err != nil {
							return err
						}
					}
				}
				return nil
			}

			maxLen := len(prev.Last)
			if len(view) > maxLen {
				maxLen = len(view)
			}
			for d := 0; d < maxLen; d++ {
				for pos := 0; pos < 3; pos++ {
					newCell := maze.EMPTY
					if d < len(view) {
						newCell = view[d][pos]
					}
					oldCell := maze.EMPTY
					if d < len(prev.Last) {
						oldCell = prev.Last[d][pos]
					}
					if newCell != oldCell {
						if err := sendShow(send, newCell, pos, d); err != nil {
							return err
						}
					}
				}
			}
			return nil
		},
	)
}

// sendShow emits one SHOW frame for the cell at view position pos,
// depth d, through the send function bound to the player being updated.
func sendShow(send func(protocol.Header, []byte) error, obj maze.Object, pos, d int) error {
	return send(protocol.Header{
		Type:   protocol.TypeShow,
		Param1: byte(obj),
		Param2: uint8(pos),
		Param3: uint8(d),
	}, nil)
}

// sendScore emits one SCORE frame via p's own serialized send. score of
// -1 is carried as the wire byte 0xFF, the "remove from scoreboard"
// sentinel (spec.md §4.1).
func sendScore(p *player.Player, avatar maze.Object, score int) error {
	return p.SendPacket(protocol.Header{
		Type:   protocol.TypeScore,
		Param1: byte(avatar),
		Param2: uint8(int8(score)),
	}, nil)
}

func releaseSnapshot(ps []*player.Player) {
	for _, p := range ps {
		p.Unref()
	}
}
