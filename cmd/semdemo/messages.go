//go:build unix

package main

import "fmt"

// Handshake is the first and only message the primary sends a child.
type Handshake struct {
	Child      int    `msgpack:"child"`
	Shm        string `msgpack:"shm"`
	ShmSize    int    `msgpack:"shm_size"`
	Slot       int    `msgpack:"slot"`
	DataOffset int    `msgpack:"data_offset"`
	Release    string `msgpack:"release"`
}

// Stages a child reports, in order.
const (
	StageAttached  = "attached"
	StagePublished = "published"
	StageReleased  = "released"
	StageError     = "error"
)

// Report is sent by a child after each stage, or once on failure.
type Report struct {
	Child   int    `msgpack:"child"`
	Stage   string `msgpack:"stage"`
	Message string `msgpack:"message"`
}

func (r *Report) String() string {
	if r.Message == "" {
		return fmt.Sprintf("child %d: %s", r.Child, r.Stage)
	}
	return fmt.Sprintf("child %d: %s: %s", r.Child, r.Stage, r.Message)
}

// Err returns the failure carried by an error report, or nil.
func (r *Report) Err() error {
	if r.Stage != StageError {
		return nil
	}
	return fmt.Errorf("child %d failed: %s", r.Child, r.Message)
}

// stagesPerChild is the number of reports a child that succeeds sends.
const stagesPerChild = 3
