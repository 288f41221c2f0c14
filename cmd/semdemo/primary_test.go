//go:build unix && cgo

package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/richinsley/semguard"
)

// TestMain lets the test binary stand in for the command: runPrimary starts
// children by re-executing os.Args[0] with childArg.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == childArg {
		os.Exit(runChild(os.Args[2:]))
	}
	os.Exit(m.Run())
}

func skipWithoutProcessShared(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		t.Skip("process-shared unnamed semaphores are not supported on " + runtime.GOOS)
	}
}

// testLogger writes through t.Log so output shows up with the test.
type testLogger struct{ t *testing.T }

func (w testLogger) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func TestPrimaryWithChildren(t *testing.T) {
	skipWithoutProcessShared(t)
	for _, n := range []int{1, 3} {
		t.Run(fmt.Sprintf("children=%d", n), func(t *testing.T) {
			logger := log.New(testLogger{t}, "[primary] ", 0)
			cfg := config{children: n, shmSize: 4096, verbose: true}
			if err := runPrimary(cfg, logger); err != nil {
				t.Fatalf("runPrimary: %v", err)
			}

			// Everything the primary created is gone afterwards.
			pid := os.Getpid()
			if _, err := semguard.OpenSharedMemory(shmName(pid), 4096); semguard.Classify(err) != semguard.ClassNotFound {
				t.Errorf("shared memory left behind: %v", err)
			}
			if _, err := semguard.Open(releaseName(pid), semguard.AccessOnly); semguard.Classify(err) != semguard.ClassNotFound {
				t.Errorf("release semaphore left behind: %v", err)
			}
		})
	}
}

func TestChildMissingSharedMemory(t *testing.T) {
	hs := Handshake{
		Shm:        fmt.Sprintf("/semdemo-%d-none", os.Getpid()),
		ShmSize:    4096,
		DataOffset: dataOffset,
		Release:    releaseName(os.Getpid()),
	}
	var stages []string
	err := child(hs, func(stage, msg string) { stages = append(stages, stage) })
	if semguard.Classify(err) != semguard.ClassNotFound {
		t.Fatalf("child: got %v, want not found", err)
	}
	if len(stages) != 0 {
		t.Errorf("child reported %v before failing", stages)
	}
}
