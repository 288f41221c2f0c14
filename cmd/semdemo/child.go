//go:build unix

package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/richinsley/semguard"
	"github.com/richinsley/semguard/internal/ipc"
)

const childArg = "child"

// readyBudget bounds how long a child polls for the shared semaphore. The
// primary initializes it before starting children, so it is normally ready
// at once.
const readyBudget = 1 << 20

// runChild is the entry point of a child process. args are the descriptor
// numbers of the control and report pipes.
func runChild(args []string) int {
	logger := log.New(os.Stderr, "[child] ", log.LstdFlags|log.Lmicroseconds)
	if len(args) != 2 {
		logger.Printf("Error: want 2 descriptor arguments, got %d", len(args))
		return 2
	}

	ctrlFile, err := ipc.FileFromFD(args[0], "control")
	if err != nil {
		logger.Printf("Error: %v", err)
		return 2
	}
	reportFile, err := ipc.FileFromFD(args[1], "report")
	if err != nil {
		logger.Printf("Error: %v", err)
		return 2
	}
	out := ipc.NewConn(ipc.NewMsgpackTransport(nil, reportFile))
	defer out.Close()

	in := ipc.NewConn(ipc.NewMsgpackTransport(ctrlFile, nil))
	var hs Handshake
	err = in.Receive(&hs)
	in.Close()
	if err != nil {
		logger.Printf("Error reading handshake: %v", err)
		return 1
	}
	logger.SetPrefix(fmt.Sprintf("[child %d] ", hs.Child))

	report := func(stage, msg string) {
		if err := out.Send(&Report{Child: hs.Child, Stage: stage, Message: msg}); err != nil {
			logger.Printf("Error sending report: %v", err)
		}
	}

	if err := child(hs, report); err != nil {
		logger.Printf("Error: %v", err)
		report(StageError, err.Error())
		return 1
	}
	return 0
}

func child(hs Handshake, report func(stage, msg string)) error {
	shm, err := semguard.OpenSharedMemory(hs.Shm, hs.ShmSize)
	if err != nil {
		return err
	}
	sem, err := semguard.NewSharedSemaphore(shm, hs.Slot)
	if err != nil {
		return err
	}
	published, ok := sem.TryReady(readyBudget)
	if !ok {
		return errors.New("shared semaphore did not become ready")
	}
	report(StageAttached, sem.String())

	data := semguard.GetTypedSlice[int64](shm, hs.DataOffset)
	if hs.Child >= len(data) {
		return fmt.Errorf("no room for child %d in shared memory", hs.Child)
	}
	data[hs.Child] = int64(hs.Child + 1)
	if err := published.Signal(); err != nil {
		return err
	}
	report(StagePublished, "")

	release, err := semguard.Open(hs.Release, semguard.AccessOnly)
	if err != nil {
		return err
	}
	defer release.Close()
	if err := waitRetry(release.Ref()); err != nil {
		return err
	}
	report(StageReleased, "")
	return nil
}
