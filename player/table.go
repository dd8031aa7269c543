package player

import (
	"fmt"
	"sync"

	"github.com/beka-birhanu/mazewar-server/maze"
)

// MaxPlayers sizes the slot array to the full byte range of an avatar
// Object (only 'A'..'Z' are ever occupied), matching MAX_PLAYERS in
// player.c's player_map array.
const MaxPlayers = 256

// Table is the process-wide registry of logged-in players, indexed by
// avatar byte. Its own mutex is taken only to read or mutate the slot
// array itself — never while a Player's own lock is held — which is
// what lets broadcast-style iteration (Snapshot) be race-free without
// risking the lock-order inversion documented as a latent bug in the
// original player_move (SPEC_FULL.md §4.4 Open Question #1).
type Table struct {
	mu    sync.Mutex
	slots [MaxPlayers]*Player
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{}
}

// Logout clears the slot for avatar and returns the player it held (nil
// if the slot was empty). The slot is cleared whichever player occupies
// it; there is no check that it holds a particular player. Logout does
// not change the reference count: the caller drops the login-held
// reference with its own Unref.
func (t *Table) Logout(avatar maze.Object) *Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.slots[avatar]
	t.slots[avatar] = nil
	return p
}

// LoginNew atomically checks that avatar's slot is empty, invokes place to
// perform the maze placement and construct the Player, and inserts the
// result into that slot — all under Table's single lock, so two
// connections logging in the same avatar concurrently can't both pass the
// occupancy check before either has placed anything. This mirrors
// map_mutex spanning the whole check-then-insert sequence in
// player_login, rather than letting the check, the maze placement, and
// the insert race as three separate critical sections. place is called
// with the table lock held, so it must not itself touch the table.
func (t *Table) LoginNew(avatar maze.Object, place func() (*Player, error)) (*Player, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots[avatar] != nil {
		return nil, fmt.Errorf("player: avatar %q is already logged in", rune(avatar))
	}
	p, err := place()
	if err != nil {
		return nil, err
	}
	t.slots[avatar] = p
	return p, nil
}

// Get returns the player at avatar's slot, ref'd so the caller holds a
// safe handle even if the player logs out concurrently, or nil if the
// slot is empty.
func (t *Table) Get(avatar maze.Object) *Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.slots[avatar]
	if p == nil {
		return nil
	}
	return p.Ref()
}

// Snapshot returns a ref'd copy of every currently logged-in player, for
// broadcast-style iteration. Taking the table lock for the whole sweep
// (rather than none, as in the original player_move) is the fix for
// Open Question #1: it guarantees the slice can't be mutated out from
// under the caller mid-broadcast, at the cost of a single coarse lock
// held only for the duration of copying pointers — never for send I/O.
func (t *Table) Snapshot() []*Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Player, 0, MaxPlayers)
	for _, p := range t.slots {
		if p != nil {
			out = append(out, p.Ref())
		}
	}
	return out
}

// Count returns the number of occupied slots.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.slots {
		if p != nil {
			n++
		}
	}
	return n
}
