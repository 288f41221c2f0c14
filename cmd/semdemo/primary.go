//go:build unix

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/richinsley/semguard"
	"github.com/richinsley/semguard/internal/ipc"
)

func runPrimary(cfg config, logger *log.Logger) error {
	pid := os.Getpid()
	name := shmName(pid)
	shm, err := semguard.CreateSharedMemory(name, cfg.shmSize)
	if err != nil {
		return err
	}
	// The mapping itself goes away with the process.
	defer func() {
		if err := semguard.RemoveSharedMemory(name); err != nil {
			logger.Printf("Error removing shared memory: %v", err)
		}
	}()

	sem, err := semguard.NewSharedSemaphore(shm, 0)
	if err != nil {
		return err
	}
	defer runtime.KeepAlive(sem)
	published, err := sem.Init(true, 0)
	if err != nil {
		return fmt.Errorf("initializing shared semaphore: %w", err)
	}

	var reg semguard.Registry
	rel := releaseName(pid)
	release, err := reg.Open(rel, semguard.Create(true, 0o600, 0))
	if err != nil {
		return err
	}
	defer release.Close()
	defer func() {
		if err := reg.Unlink(rel); err != nil {
			logger.Printf("Error unlinking %s: %v", rel, err)
		}
	}()

	// Counts the reports received from every child.
	var reports semguard.Semaphore
	received, err := reports.Init(false, 0)
	if err != nil {
		return fmt.Errorf("initializing report counter: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigc := make(chan os.Signal, 1)
	ipc.NotifySignals(sigc)
	defer signal.Stop(sigc)
	go func() {
		select {
		case s := <-sigc:
			logger.Printf("received %v, stopping children", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	fail := func(err error) error {
		cancel()
		g.Wait()
		return err
	}

	for i := 0; i < cfg.children; i++ {
		hs := Handshake{
			Child:      i,
			Shm:        name,
			ShmSize:    cfg.shmSize,
			Slot:       0,
			DataOffset: dataOffset,
			Release:    rel,
		}
		if err := startChild(ctx, g, hs, received, logger, cfg.verbose); err != nil {
			return fail(fmt.Errorf("starting child %d: %w", i, err))
		}
	}
	logger.Printf("started %d children, shared semaphore in %s, release semaphore %s", cfg.children, name, rel)

	if err := waitPublished(ctx, published, cfg.children); err != nil {
		return fail(fmt.Errorf("waiting for children to publish: %w", err))
	}

	data := semguard.GetTypedSlice[int64](shm, dataOffset)
	for i := 0; i < cfg.children; i++ {
		if data[i] != int64(i+1) {
			return fail(fmt.Errorf("child %d published %d, want %d", i, data[i], i+1))
		}
	}
	logger.Printf("saw every child's write: %v", data[:cfg.children])

	for i := 0; i < cfg.children; i++ {
		if err := release.Ref().Signal(); err != nil {
			return fail(fmt.Errorf("releasing children: %w", err))
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if cfg.verbose {
		logger.Printf("report counter %s", received)
	}
	n := 0
	for received.TryWait() == nil {
		n++
	}
	if want := stagesPerChild * cfg.children; n != want {
		return fmt.Errorf("received %d reports, want %d", n, want)
	}
	return nil
}

// startChild runs a copy of this program as child hs.Child, sends it the
// handshake and adds goroutines to g that read its reports and reap it.
func startChild(ctx context.Context, g *errgroup.Group, hs Handshake, received semguard.Ref, logger *log.Logger, verbose bool) error {
	ctrlR, ctrlW, err := os.Pipe()
	if err != nil {
		return err
	}
	reportR, reportW, err := os.Pipe()
	if err != nil {
		ctrlR.Close()
		ctrlW.Close()
		return err
	}

	cmd := exec.CommandContext(ctx, os.Args[0], childArg)
	fds := ipc.SetExtraFiles(cmd, []*os.File{ctrlR, reportW})
	cmd.Args = append(cmd.Args, fds...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Start()
	// The child has its own copies of these now.
	ctrlR.Close()
	reportW.Close()
	if err != nil {
		ctrlW.Close()
		reportR.Close()
		return err
	}

	g.Go(func() error {
		if err := ipc.WaitForExit(cmd); err != nil {
			return fmt.Errorf("child %d: %w", hs.Child, err)
		}
		return nil
	})

	reports := ipc.NewConn(ipc.NewMsgpackTransport(reportR, nil))
	ctrl := ipc.NewConn(ipc.NewMsgpackTransport(nil, ctrlW))
	err = ctrl.Send(hs)
	ctrl.Close()
	if err != nil {
		reports.Close()
		return fmt.Errorf("sending handshake: %w", err)
	}

	g.Go(func() error {
		return readReports(reports, hs.Child, received, logger, verbose)
	})
	return nil
}

// readReports signals received once per report until the child closes its
// end of the pipe.
func readReports(conn *ipc.Conn, child int, received semguard.Ref, logger *log.Logger, verbose bool) error {
	defer conn.Close()
	for {
		var r Report
		if err := conn.Receive(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading reports from child %d: %w", child, err)
		}
		if verbose {
			logger.Printf("%s", &r)
		}
		if err := r.Err(); err != nil {
			return err
		}
		if err := received.Signal(); err != nil {
			return err
		}
	}
}

// waitPublished takes n counts from r. It polls so that a failing child,
// which cancels ctx, cannot leave it blocked forever.
func waitPublished(ctx context.Context, r semguard.Ref, n int) error {
	for got := 0; got < n; {
		err := r.TryWait()
		switch {
		case err == nil:
			got++
		case semguard.Classify(err) == semguard.ClassWouldBlock:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		default:
			return err
		}
	}
	return nil
}
