//go:build unix

package ipc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// NotifySignals configures the channel to receive SIGINT and SIGTERM.
func NotifySignals(c chan os.Signal) {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
}

// ErrKilled is returned by WaitForExit when the child was ended by a signal.
var ErrKilled = errors.New("child process was killed")

// WaitForExit waits for a command to exit and returns an appropriate error.
func WaitForExit(cmd *exec.Cmd) error {
	err := cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
			return fmt.Errorf("%w: %s", ErrKilled, exitErr)
		}
		return err
	}
	return nil
}

// SetExtraFiles attaches extra files to the command and returns the FD
// numbers the child will see them under.
func SetExtraFiles(cmd *exec.Cmd, extraFiles []*os.File) []string {
	cmd.ExtraFiles = extraFiles
	retv := make([]string, len(extraFiles))

	// stdio file descriptors are 0, 1, 2
	// extra file descriptors are 3, 4, 5, ...
	for i := range extraFiles {
		retv[i] = fmt.Sprintf("%d", i+3)
	}
	return retv
}

// FileFromFD wraps an inherited descriptor number as passed on the command
// line by SetExtraFiles.
func FileFromFD(fd string, name string) (*os.File, error) {
	var n int
	if _, err := fmt.Sscanf(fd, "%d", &n); err != nil {
		return nil, fmt.Errorf("ipc: bad file descriptor %q: %w", fd, err)
	}
	f := os.NewFile(uintptr(n), name)
	if f == nil {
		return nil, fmt.Errorf("ipc: invalid file descriptor %d", n)
	}
	return f, nil
}
