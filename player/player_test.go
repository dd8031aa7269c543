package player

import (
	"net"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beka-birhanu/mazewar-server/maze"
	"github.com/beka-birhanu/mazewar-server/protocol"
)

func newTestPlayer(t *testing.T) (*Player, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return New('A', "ralph", server, uuid.New()), client
}

func TestNewPlayerDefaults(t *testing.T) {
	p, _ := newTestPlayer(t)
	assert.Equal(t, maze.Object('A'), p.Avatar())
	assert.Equal(t, "ralph", p.Name())
	assert.Equal(t, maze.North, p.Dir())
	assert.Equal(t, int32(1), p.RefCount())

	vs := p.ViewState()
	assert.Equal(t, -1, vs.ValidDepth)
}

func TestLocationRoundTrip(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.SetLocation(3, 4)
	p.SetDir(maze.East)
	loc := p.Location()
	assert.Equal(t, Location{Row: 3, Col: 4, Dir: maze.East}, loc)
}

func TestScoreMutation(t *testing.T) {
	p, _ := newTestPlayer(t)
	assert.Equal(t, 1, p.AddScore(1))
	assert.Equal(t, 3, p.AddScore(2))
	assert.Equal(t, 3, p.Score())
	p.ResetScore()
	assert.Equal(t, 0, p.Score())
}

func TestViewStateAndInvalidate(t *testing.T) {
	p, _ := newTestPlayer(t)
	view := maze.View{{' ', ' ', ' '}}
	p.SetViewState(view, 1)

	vs := p.ViewState()
	require.Equal(t, 1, vs.ValidDepth)
	require.Len(t, vs.Last, 1)

	p.InvalidateView()
	assert.Equal(t, -1, p.ViewState().ValidDepth)
}

func TestHitSignalIsNonBlockingAndCoalesces(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.MarkHit()
	p.MarkHit() // second mark while one is pending must not block

	assert.True(t, p.TakeHit())
	assert.False(t, p.TakeHit(), "hit flag must clear after being taken")
}

func TestRefUnref(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.Ref()
	assert.Equal(t, int32(2), p.RefCount())
	assert.False(t, p.Unref())
	assert.True(t, p.Unref(), "count reaches zero on the matching unref")
}

// TestSendPacketSerializesConcurrentSends exercises the fix for
// interleaved header/payload writes: two goroutines calling SendPacket
// on the same player at once must each have their header and payload
// land back to back on the wire, never split by the other's frame.
func TestSendPacketSerializesConcurrentSends(t *testing.T) {
	p, client := newTestPlayer(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = p.SendPacket(protocol.Header{Type: protocol.TypeChat}, []byte("hello from the first sender"))
	}()
	go func() {
		defer wg.Done()
		_ = p.SendPacket(protocol.Header{Type: protocol.TypeChat}, []byte("hi"))
	}()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		hdr, payload, err := protocol.Recv(client)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeChat, hdr.Type)
		require.Equal(t, int(hdr.Size), len(payload), "a corrupted interleave would desync Size from the payload that follows")
		seen[string(payload)] = true
	}
	wg.Wait()
	assert.True(t, seen["hello from the first sender"])
	assert.True(t, seen["hi"])
}

// TestUpdateViewCommitsCacheOnlyAfterEmitSucceeds exercises that a
// failed emit leaves the previous cache untouched, and that compute,
// emit, and the cache write observe one consistent view.
func TestUpdateViewCommitsCacheOnlyAfterEmitSucceeds(t *testing.T) {
	p, client := newTestPlayer(t)
	go func() {
		for {
			if _, _, err := protocol.Recv(client); err != nil {
				return
			}
		}
	}()

	view := maze.View{{'*', ' ', '*'}}
	err := p.UpdateView(
		func(row, col int, dir maze.Direction) maze.View { return view },
		func(send func(protocol.Header, []byte) error, prev ViewState, v maze.View) error {
			assert.Equal(t, -1, prev.ValidDepth, "first call sees the fresh player's invalid cache")
			return send(protocol.Header{Type: protocol.TypeClear}, nil)
		},
	)
	require.NoError(t, err)

	vs := p.ViewState()
	assert.Equal(t, 1, vs.ValidDepth)
	assert.Equal(t, view, vs.Last)

	err = p.UpdateView(
		func(row, col int, dir maze.Direction) maze.View { return maze.View{{'#', '#', '#'}, {'#', '#', '#'}} },
		func(send func(protocol.Header, []byte) error, prev ViewState, v maze.View) error {
			return assert.AnError
		},
	)
	require.ErrorIs(t, err, assert.AnError)

	vs = p.ViewState()
	assert.Equal(t, 1, vs.ValidDepth, "a failed emit must not commit the new depth")
	assert.Equal(t, view, vs.Last, "a failed emit must not commit the new view")
}
