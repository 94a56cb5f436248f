package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNoMarket       = errors.New("no accepting-orders market found")
	ErrNotConnected   = errors.New("feed not connected")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrPositionExists = errors.New("position already open on side")
	ErrMaxPositions   = errors.New("max concurrent positions reached")
)
