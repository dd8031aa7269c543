package game

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beka-birhanu/mazewar-server/maze"
	"github.com/beka-birhanu/mazewar-server/player"
	"github.com/beka-birhanu/mazewar-server/protocol"
)

// recorder drains one end of a net.Pipe continuously, since Send on a
// synchronous pipe blocks until something reads, and records every
// frame header it observes.
type recorder struct {
	mu     sync.Mutex
	frames []protocol.Header
}

func (r *recorder) add(h protocol.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, h)
}

func (r *recorder) snapshot() []protocol.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Header, len(r.frames))
	copy(out, r.frames)
	return out
}

func (r *recorder) countType(typ protocol.FrameType) int {
	n := 0
	for _, h := range r.snapshot() {
		if h.Type == typ {
			n++
		}
	}
	return n
}

func newRecordedPlayer(t *testing.T, g *Game, avatar maze.Object, name string) (*player.Player, *recorder) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	rec := &recorder{}
	go func() {
		for {
			hdr, _, err := protocol.Recv(client)
			if err != nil {
				return
			}
			rec.add(hdr)
		}
	}()

	p, err := g.Login(avatar, name, server, uuid.New())
	require.NoError(t, err)
	return p, rec
}

func newTestGame(t *testing.T, rows []string) *Game {
	t.Helper()
	m, err := maze.New(rows)
	require.NoError(t, err)
	return New(m, player.NewTable(), nil)
}

// placeAt forcibly relocates p's avatar in both the maze grid and its
// own location field, keeping the two in sync the way Login/Move/Reset
// do internally — Login places randomly, so tests that need an exact
// starting cell must move the avatar in the maze too, not just overwrite
// the player record's cached row/col.
func placeAt(t *testing.T, g *Game, p *player.Player, row, col int) {
	t.Helper()
	loc := p.Location()
	g.maze.Remove(p.Avatar(), loc.Row, loc.Col)
	require.NoError(t, g.maze.SetPlayer(p.Avatar(), row, col))
	p.SetLocation(row, col)
}

var openRoom = []string{
	"*****",
	"*   *",
	"*   *",
	"*   *",
	"*****",
}

func TestLoginRejectsDuplicateAvatarWithoutTouchingMaze(t *testing.T) {
	g := newTestGame(t, openRoom)
	_, _ = newRecordedPlayer(t, g, 'A', "first")

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	_, err := g.Login('A', "second", server, uuid.New())
	assert.Error(t, err)
	assert.Equal(t, 1, g.Table().Count())
}

// TestLoginSameAvatarConcurrentlyPlacesAtMostOnce exercises the fix for
// the check-then-act race between the occupancy check, maze placement,
// and the table insert: two connections logging in the same avatar at
// once, in a maze with exactly one free cell, must not both succeed in
// placing an avatar into the maze before either login is resolved.
func TestLoginSameAvatarConcurrentlyPlacesAtMostOnce(t *testing.T) {
	g := newTestGame(t, []string{"*A*"}) // one free cell, already occupied by 'A'.
	g.maze.Remove('A', 0, 1)             // now exactly one free cell exists.

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		server, client := net.Pipe()
		t.Cleanup(func() { server.Close(); client.Close() })
		go func(i int) {
			defer wg.Done()
			_, err := g.Login('A', "contender", server, uuid.New())
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent login for the same avatar must succeed")
	assert.Equal(t, 1, g.Table().Count())
}

func TestMoveSuccessBroadcastsViewToEveryone(t *testing.T) {
	g := newTestGame(t, openRoom)
	a, recA := newRecordedPlayer(t, g, 'A', "a")
	_, recB := newRecordedPlayer(t, g, 'B', "b")

	// Put A in a known spot facing a direction with room to move.
	placeAt(t, g, a, 2, 2)
	a.SetDir(maze.South)

	require.NoError(t, g.Move(a, 1))

	require.Eventually(t, func() bool {
		return recA.countType(protocol.TypeClear) >= 1 && recB.countType(protocol.TypeClear) >= 1
	}, time.Second, 5*time.Millisecond, "both players should receive a redraw after A moves")
}

func TestMoveIntoWallIsNoopError(t *testing.T) {
	g := newTestGame(t, openRoom)
	a, _ := newRecordedPlayer(t, g, 'A', "a")
	placeAt(t, g, a, 1, 1)
	a.SetDir(maze.North)

	err := g.Move(a, 1)
	assert.Error(t, err)
	assert.Equal(t, locationAt(1, 1), a.Location())
}

func locationAt(row, col int) player.Location {
	return player.Location{Row: row, Col: col, Dir: maze.North}
}

func TestRotateInvalidatesAndRedrawsOwnViewOnly(t *testing.T) {
	g := newTestGame(t, openRoom)
	a, recA := newRecordedPlayer(t, g, 'A', "a")
	_, recB := newRecordedPlayer(t, g, 'B', "b")
	placeAt(t, g, a, 2, 2)

	require.NoError(t, g.Rotate(a, 1))
	assert.Equal(t, maze.West, a.Dir())

	require.Eventually(t, func() bool {
		return recA.countType(protocol.TypeClear) >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, recB.countType(protocol.TypeClear), "rotating does not redraw other players' views")
}

func TestFireLaserHitsAndScores(t *testing.T) {
	g := newTestGame(t, openRoom)
	shooter, recS := newRecordedPlayer(t, g, 'A', "shooter")
	victim, _ := newRecordedPlayer(t, g, 'B', "victim")

	placeAt(t, g, shooter, 1, 1)
	shooter.SetDir(maze.East)
	placeAt(t, g, victim, 1, 3)

	require.NoError(t, g.FireLaser(shooter))
	assert.True(t, victim.TakeHit(), "victim should have a pending hit notification")
	assert.Equal(t, 1, shooter.Score())

	require.Eventually(t, func() bool {
		return recS.countType(protocol.TypeScore) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestFireLaserIntoEmptyCorridorIsNoop(t *testing.T) {
	g := newTestGame(t, openRoom)
	shooter, _ := newRecordedPlayer(t, g, 'A', "shooter")
	placeAt(t, g, shooter, 1, 1)
	shooter.SetDir(maze.East)

	assert.NoError(t, g.FireLaser(shooter))
	assert.Equal(t, 0, shooter.Score())
}

func TestCheckForHitIsNoopWithoutPendingHit(t *testing.T) {
	g := newTestGame(t, openRoom)
	a, _ := newRecordedPlayer(t, g, 'A', "a")
	assert.NoError(t, g.CheckForHit(a))
}

func TestResetZeroesScoreAndReplaysOthersScores(t *testing.T) {
	g := newTestGame(t, openRoom)
	a, recA := newRecordedPlayer(t, g, 'A', "a")
	b, _ := newRecordedPlayer(t, g, 'B', "b")
	b.AddScore(7)
	a.AddScore(3)

	require.NoError(t, g.Reset(a))
	assert.Equal(t, 0, a.Score())

	require.Eventually(t, func() bool {
		return recA.countType(protocol.TypeScore) >= 2 // b's score replayed, then a's own reset score broadcast.
	}, time.Second, 5*time.Millisecond)
}

func TestResetLeavesPlayerInLimboWhenMazeIsFull(t *testing.T) {
	// Every cell is already occupied by other avatars, so a player whose
	// own cell was already vacated elsewhere (e.g. by CheckForHit) has
	// nowhere left to respawn.
	g := newTestGame(t, []string{"AB"})
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	go func() {
		for {
			if _, _, err := protocol.Recv(client); err != nil {
				return
			}
		}
	}()

	c := player.New('C', "c", server, uuid.New())
	c.SetLocation(-1, -1)
	c.AddScore(5)

	err := g.Reset(c)
	assert.Error(t, err)
	assert.Equal(t, player.Location{Row: -1, Col: -1, Dir: maze.North}, c.Location())
	assert.Equal(t, 5, c.Score(), "score must be untouched when respawn placement fails")
}

func TestSendChatBroadcastsFormattedLineToEveryone(t *testing.T) {
	g := newTestGame(t, openRoom)
	a, recA := newRecordedPlayer(t, g, 'A', "alice")
	_, recB := newRecordedPlayer(t, g, 'B', "bob")

	g.SendChat(a, []byte("hello"))

	require.Eventually(t, func() bool {
		return recA.countType(protocol.TypeChat) >= 1 && recB.countType(protocol.TypeChat) >= 1
	}, time.Second, 5*time.Millisecond, "chat goes to sender and everyone else")
}
