// Package maze implements the shared mutable grid at the center of the
// game: placement, removal, movement, line-of-sight, and first-person
// view extraction — see SPEC_FULL.md §4.2. All operations take a single
// coarse mutex for their whole duration, mirroring maze.c's maze_mutex.
package maze

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Object is a single maze cell: EMPTY, a WALL byte, or an AVATAR byte
// ('A'..'Z').
type Object byte

// EMPTY is the space character; any byte that is neither a space nor
// 'A'..'Z' is a WALL; 'A'..'Z' are AVATAR identities.
const EMPTY Object = ' '

// IsEmpty reports whether o is the empty cell.
func (o Object) IsEmpty() bool { return o == EMPTY }

// IsAvatar reports whether o is a player avatar identity.
func (o Object) IsAvatar() bool { return o >= 'A' && o <= 'Z' }

// IsWall reports whether o is an impassable, non-avatar cell.
func (o Object) IsWall() bool { return !o.IsEmpty() && !o.IsAvatar() }

// Direction is one of NORTH, WEST, SOUTH, EAST, encoded 0..3 so that
// Reverse/TurnLeft/TurnRight are simple modular arithmetic (spec.md §3).
type Direction int

const (
	North Direction = iota
	West
	South
	East
)

// Reverse returns the opposite direction.
func Reverse(d Direction) Direction { return (d + 2) % 4 }

// TurnLeft returns the direction one quarter-turn counter-clockwise.
func TurnLeft(d Direction) Direction { return (d + 1) % 4 }

// TurnRight returns the direction one quarter-turn clockwise.
func TurnRight(d Direction) Direction { return (d + 3) % 4 }

// forward[d] is the (drow, dcol) step taken moving one cell in direction
// d, per SPEC_FULL.md §3.
var forward = [4][2]int{
	North: {-1, 0},
	West:  {0, -1},
	South: {1, 0},
	East:  {0, 1},
}

// left[d] is the perpendicular step to the left of direction d, taken
// verbatim from spec.md §4.2's explicit table (authoritative over the
// sign differences in maze.c's lrow/lcol — see SPEC_FULL.md §3).
var left = [4][2]int{
	North: {0, -1},
	West:  {1, 0},
	South: {0, 1},
	East:  {-1, 0},
}

// View is a first-person strip: depth rows of {LEFT_WALL, CORRIDOR,
// RIGHT_WALL}.
type View [][3]Object

const (
	LeftWall  = 0
	Corridor  = 1
	RightWall = 2
)

// Maze is the fixed-size grid. Zero value is not usable; construct with
// New.
type Maze struct {
	mu   sync.Mutex
	grid [][]Object
	rows int
	cols int
	rng  *rand.Rand
}

// New builds a Maze from rows of equal length. At least one row is
// required.
func New(rows []string) (*Maze, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("maze: template has no rows")
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("maze: template rows must be non-empty")
	}
	grid := make([][]Object, len(rows))
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("maze: row %d has length %d, want %d", i, len(row), cols)
		}
		grid[i] = make([]Object, cols)
		for j := 0; j < cols; j++ {
			grid[i][j] = Object(row[j])
		}
	}
	return &Maze{
		grid: grid,
		rows: len(rows),
		cols: cols,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Rows returns the grid's row count.
func (m *Maze) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows
}

// Cols returns the grid's column count.
func (m *Maze) Cols() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cols
}

func (m *Maze) inBounds(r, c int) bool {
	return r >= 0 && r < m.rows && c >= 0 && c < m.cols
}

// SetPlayer places avatar at (row, col) iff that cell is in bounds and
// empty.
func (m *Maze) SetPlayer(avatar Object, row, col int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setPlayerLocked(avatar, row, col)
}

func (m *Maze) setPlayerLocked(avatar Object, row, col int) error {
	if !m.inBounds(row, col) {
		return fmt.Errorf("maze: [%d,%d] out of bounds", row, col)
	}
	if !m.grid[row][col].IsEmpty() {
		return fmt.Errorf("maze: [%d,%d] is not empty (holds %q)", row, col, rune(m.grid[row][col]))
	}
	m.grid[row][col] = avatar
	return nil
}

// maxPlacementAttempts bounds SetPlayerRandom's uniform trials, matching
// maze_set_player_random's max_attempts in maze.c.
const maxPlacementAttempts = 1000

// SetPlayerRandom makes up to 1000 uniformly random attempts to place
// avatar at an empty cell, returning the cell on the first success.
func (m *Maze) SetPlayerRandom(avatar Object) (row, col int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < maxPlacementAttempts; i++ {
		r := m.rng.Intn(m.rows)
		c := m.rng.Intn(m.cols)
		if err := m.setPlayerLocked(avatar, r, c); err == nil {
			return r, c, nil
		}
	}
	return 0, 0, fmt.Errorf("maze: failed to place %q after %d attempts", rune(avatar), maxPlacementAttempts)
}

// Remove clears (row, col) iff it currently holds avatar; otherwise a
// no-op (idempotent, per spec.md §4.2).
func (m *Maze) Remove(avatar Object, row, col int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inBounds(row, col) && m.grid[row][col] == avatar {
		m.grid[row][col] = EMPTY
	}
}

// Move steps the avatar at (row, col) one cell in direction d. It
// succeeds iff the source holds an avatar and the destination is in
// bounds and empty; on success the avatar moves and the source cell is
// cleared.
func (m *Maze) Move(row, col int, d Direction) (newRow, newCol int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.inBounds(row, col) || !m.grid[row][col].IsAvatar() {
		return 0, 0, fmt.Errorf("maze: no avatar at [%d,%d]", row, col)
	}

	step := forward[d]
	nr, nc := row+step[0], col+step[1]
	if !m.inBounds(nr, nc) || !m.grid[nr][nc].IsEmpty() {
		return 0, 0, fmt.Errorf("maze: [%d,%d] is out of bounds or occupied", nr, nc)
	}

	m.grid[nr][nc] = m.grid[row][col]
	m.grid[row][col] = EMPTY
	return nr, nc, nil
}

// FindTarget steps from (row, col) in direction d until it hits the
// first non-empty cell or the grid edge, returning that cell if it's an
// avatar, EMPTY otherwise. It does not mutate the grid.
func (m *Maze) FindTarget(row, col int, d Direction) Object {
	m.mu.Lock()
	defer m.mu.Unlock()

	step := forward[d]
	r, c := row, col
	for m.inBounds(r, c) {
		r += step[0]
		c += step[1]
		if !m.inBounds(r, c) {
			break
		}
		if !m.grid[r][c].IsEmpty() {
			if m.grid[r][c].IsAvatar() {
				return m.grid[r][c]
			}
			return EMPTY
		}
	}
	return EMPTY
}

// GetView returns the corridor/left-wall/right-wall triples seen from
// (row, col) gazing in direction gaze, up to depth steps. It stops at the
// first step that falls outside the grid (it does NOT stop at a wall or
// avatar in the corridor — a laser-gaze view is expected to show what's
// ahead, including obstructions); the returned View's length is the
// number of steps actually taken.
func (m *Maze) GetView(row, col int, gaze Direction, depth int) View {
	m.mu.Lock()
	defer m.mu.Unlock()

	fwd := forward[gaze]
	lft := left[gaze]
	view := make(View, 0, depth)

	for d := 0; d < depth; d++ {
		r := row + d*fwd[0]
		c := col + d*fwd[1]
		if !m.inBounds(r, c) {
			break
		}

		var row3 [3]Object
		row3[Corridor] = m.grid[r][c]

		rl, cl := r+lft[0], c+lft[1]
		if m.inBounds(rl, cl) {
			row3[LeftWall] = m.grid[rl][cl]
		} else {
			row3[LeftWall] = '*'
		}

		rr, cr := r-lft[0], c-lft[1]
		if m.inBounds(rr, cr) {
			row3[RightWall] = m.grid[rr][cr]
		} else {
			row3[RightWall] = '*'
		}

		view = append(view, row3)
	}
	return view
}

// DefaultTemplate mirrors main.c's built-in default_maze, used when the
// server is started without -t.
var DefaultTemplate = []string{
	"******************************",
	"***** %%%%%%%%% &&&&&&&&&&& **",
	"***** %%%%%%%%%        $$$$  *",
	"*           $$$$$$ $$$$$$$$$ *",
	"*##########                  *",
	"*########## @@@@@@@@@@@@@@@@@*",
	"*           @@@@@@@@@@@@@@@@@*",
	"******************************",
}
