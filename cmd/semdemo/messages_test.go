//go:build unix

package main

import (
	"os"
	"strings"
	"testing"

	"github.com/richinsley/semguard/internal/ipc"
)

func TestReportErr(t *testing.T) {
	ok := &Report{Child: 2, Stage: StagePublished}
	if ok.Err() != nil {
		t.Errorf("Err() = %v for a %s report", ok.Err(), ok.Stage)
	}
	if got := ok.String(); got != "child 2: published" {
		t.Errorf("String() = %q", got)
	}

	failed := &Report{Child: 1, Stage: StageError, Message: "no shm"}
	err := failed.Err()
	if err == nil || !strings.Contains(err.Error(), "no shm") {
		t.Errorf("Err() = %v", err)
	}
}

func TestHandshakeOverPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	out := ipc.NewConn(ipc.NewMsgpackTransport(nil, w))
	in := ipc.NewConn(ipc.NewMsgpackTransport(r, nil))
	defer in.Close()

	want := Handshake{Child: 3, Shm: shmName(1), ShmSize: 4096, DataOffset: dataOffset, Release: releaseName(1)}
	if err := out.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out.Close()

	var got Handshake
	if err := in.Receive(&got); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
