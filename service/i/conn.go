// Package i holds the small interfaces that decouple the per-connection
// service routine from the orchestration layer it calls into,
// continuing the teacher repo's own split between GameServer and
// GameSessionManager surfaces.
package i

import (
	"net"

	"github.com/google/uuid"

	"github.com/beka-birhanu/mazewar-server/maze"
	"github.com/beka-birhanu/mazewar-server/player"
)

// Game is the orchestration surface a connection's service loop calls
// into once a frame arrives, matching spec.md §4.5's dispatch table.
type Game interface {
	Login(avatar maze.Object, name string, conn net.Conn, connID uuid.UUID) (*player.Player, error)
	Logout(p *player.Player)
	Move(p *player.Player, sign int) error
	Rotate(p *player.Player, sign int) error
	RefreshView(p *player.Player) error
	FireLaser(p *player.Player) error
	CheckForHit(p *player.Player) error
	HandleHit(p *player.Player) error
	Reset(p *player.Player) error
	SendChat(p *player.Player, message []byte)
}
