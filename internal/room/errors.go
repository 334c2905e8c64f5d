package room

import "errors"

var (
	ErrRoomActive      = errors.New("room already active with a driver")
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotDriver       = errors.New("sender is not the room driver")
	ErrInvalidLocation = errors.New("invalid location")
	ErrInvalidName     = errors.New("invalid room name")
)
