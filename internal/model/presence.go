package model

import "time"

// Presence is the advisory record the relay writes to the key-value store
// while a client is connected.
//
// The relay's in-memory connection table is the source of truth. A Presence
// entry can outlive its connection after an abnormal disconnect, so readers
// must treat "present but not reachable" as a normal state.
type Presence struct {
	Name        string    `json:"name"`
	ConnID      string    `json:"connId"`
	ConnectedAt time.Time `json:"connectedAt"`
	Reachable   bool      `json:"reachable"`
}
