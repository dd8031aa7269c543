// Package player holds the leaf-level per-player record: identity,
// location, score, the cached view used for delta updates, and the
// async hit channel — SPEC_FULL.md §4.4. Every accessor here takes only
// the player's own mutex and never reaches into the table; UpdateView
// reaches the maze only through the callback it is given. The only
// frames written under that mutex are SendPacket's and UpdateView's, on
// this player's own connection, which is what lets the orchestration
// layer (package game) work without a recursive mutex.
package player

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/beka-birhanu/mazewar-server/maze"
	"github.com/beka-birhanu/mazewar-server/protocol"
)

// ViewDepth is the number of corridor rows extracted per view update,
// matching VIEW_DEPTH in the original source.
const ViewDepth = 8

// Player is one logged-in player's server-side state. Zero value is not
// usable; construct with New.
type Player struct {
	mu sync.Mutex

	avatar maze.Object
	name   string
	conn   net.Conn
	connID uuid.UUID

	row, col int
	dir      maze.Direction
	score    int

	lastView       maze.View
	viewValidDepth int // -1 = no valid cached view.

	hit chan struct{} // capacity 1; async hit notification (SPEC_FULL.md §4.4/§4.5).

	ref int32 // atomic; accessed only via Ref/Unref/RefCount.
}

// New constructs a Player with ref count 1, facing North, and no valid
// cached view — the fields player_login sets before placement and
// before this player is reachable from the table.
func New(avatar maze.Object, name string, conn net.Conn, connID uuid.UUID) *Player {
	return &Player{
		avatar:         avatar,
		name:           name,
		conn:           conn,
		connID:         connID,
		dir:            maze.North,
		viewValidDepth: -1,
		hit:            make(chan struct{}, 1),
		ref:            1,
	}
}

// Avatar returns the player's immutable avatar identity.
func (p *Player) Avatar() maze.Object { return p.avatar }

// Name returns the player's immutable display name.
func (p *Player) Name() string { return p.name }

// Conn returns the underlying connection, for sending frames.
func (p *Player) Conn() net.Conn { return p.conn }

// ConnID returns the registry connection ID, for log correlation.
func (p *Player) ConnID() uuid.UUID { return p.connID }

// SendPacket serializes hdr and payload onto the connection under p's own
// lock, the Go analogue of player_send_packet holding the player mutex
// across the write. Without this, a broadcast from one player's service
// goroutine and a direct send from p's own goroutine can interleave their
// header and payload writes on the same conn and desync the stream.
func (p *Player) SendPacket(hdr protocol.Header, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.Send(p.conn, hdr, payload)
}

// Location is a snapshot of position and gaze.
type Location struct {
	Row, Col int
	Dir      maze.Direction
}

// Location returns a consistent snapshot of row, col, and dir.
func (p *Player) Location() Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Location{Row: p.row, Col: p.col, Dir: p.dir}
}

// SetLocation overwrites row and col, e.g. after a successful maze move
// or respawn.
func (p *Player) SetLocation(row, col int) {
	p.mu.Lock()
	p.row, p.col = row, col
	p.mu.Unlock()
}

// Dir returns the current gaze direction.
func (p *Player) Dir() maze.Direction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dir
}

// SetDir overwrites the gaze direction.
func (p *Player) SetDir(d maze.Direction) {
	p.mu.Lock()
	p.dir = d
	p.mu.Unlock()
}

// Score returns the current score.
func (p *Player) Score() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

// AddScore adds delta to the score and returns the new value.
func (p *Player) AddScore(delta int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score += delta
	return p.score
}

// ResetScore zeros the score.
func (p *Player) ResetScore() {
	p.mu.Lock()
	p.score = 0
	p.mu.Unlock()
}

// ViewState is a snapshot of the cached view used for delta computation.
type ViewState struct {
	Last       maze.View
	ValidDepth int
}

// ViewState returns the cached view and its valid depth.
func (p *Player) ViewState() ViewState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ViewState{Last: p.lastView, ValidDepth: p.viewValidDepth}
}

// SetViewState overwrites the cached view and its valid depth.
func (p *Player) SetViewState(view maze.View, depth int) {
	p.mu.Lock()
	p.lastView = view
	p.viewValidDepth = depth
	p.mu.Unlock()
}

// InvalidateView marks the cached view stale, forcing the next
// UpdateView call to send a full CLEAR+SHOW redraw.
func (p *Player) InvalidateView() {
	p.mu.Lock()
	p.viewValidDepth = -1
	p.mu.Unlock()
}

// UpdateView runs one view-cache refresh cycle atomically under p's own
// lock: it calls computeView with p's current location to get the fresh
// view, hands emit the previous cached view alongside a send function
// bound to this player's connection, and only commits the fresh view as
// the new cache once emit returns successfully. Holding the lock across
// all three steps is what player_update_view does by taking the player's
// mutex once for the whole compute-send-cache sequence; splitting the read
// of the old cache from the write of the new one lets two concurrent
// callers (e.g. two broadcasts racing on the same player) interleave their
// diffs and leave the cache inconsistent with what the client actually
// received.
func (p *Player) UpdateView(
	computeView func(row, col int, dir maze.Direction) maze.View,
	emit func(send func(protocol.Header, []byte) error, prev ViewState, view maze.View) error,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := computeView(p.row, p.col, p.dir)
	prev := ViewState{Last: p.lastView, ValidDepth: p.viewValidDepth}
	send := func(hdr protocol.Header, payload []byte) error {
		return protocol.Send(p.conn, hdr, payload)
	}

	if err := emit(send, prev, view); err != nil {
		return err
	}
	p.lastView = view
	p.viewValidDepth = len(view)
	return nil
}

// MarkHit signals the player's service loop that a laser hit occurred.
// Non-blocking: a hit that arrives while one is already pending is
// coalesced, matching the source's volatile sig_atomic_t laser_hit flag
// (which only ever holds 0 or 1).
func (p *Player) MarkHit() {
	select {
	case p.hit <- struct{}{}:
	default:
	}
}

// HitChan returns the channel the service loop selects on alongside
// incoming frames to observe an asynchronous laser hit.
func (p *Player) HitChan() <-chan struct{} { return p.hit }

// TakeHit drains a pending hit notification, reporting whether one was
// pending. This is the channel-based analogue of
// player_check_for_laser_hit's read-and-clear of laser_hit.
func (p *Player) TakeHit() bool {
	select {
	case <-p.hit:
		return true
	default:
		return false
	}
}

// Ref increments the reference count and returns the player, mirroring
// player_ref's signature (minus the debug "why" string, which this
// module's structured logger subsumes at call sites).
func (p *Player) Ref() *Player {
	atomic.AddInt32(&p.ref, 1)
	return p
}

// Unref decrements the reference count and reports whether it reached
// zero. Go's GC reclaims the struct regardless; the explicit count exists
// because spec.md §3's invariant ("table[A] == P implies P.ref_count >=
// 1") is asserted directly by this module's tests (SPEC_FULL.md §9).
func (p *Player) Unref() bool {
	return atomic.AddInt32(&p.ref, -1) == 0
}

// RefCount returns the current reference count.
func (p *Player) RefCount() int32 {
	return atomic.LoadInt32(&p.ref)
}
