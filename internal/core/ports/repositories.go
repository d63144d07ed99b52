package ports

import (
	"context"

	"sfucore/internal/core/domain"
)

// RoomDirectory is the interface of a registry mapping a RoomID to the
// address of the instance that owns the room. This module has no
// implementation of it and nothing calls it; rooms are found only through
// the scheduler's in-process table.
type RoomDirectory interface {
	// Put records that roomID is owned by this instance, reachable at
	// ownerAddr.
	Put(ctx context.Context, roomID domain.RoomID, ownerAddr string) error
	// Lookup returns the owning address for roomID, or false if unknown.
	Lookup(ctx context.Context, roomID domain.RoomID) (string, bool, error)
	Delete(ctx context.Context, roomID domain.RoomID) error
}
