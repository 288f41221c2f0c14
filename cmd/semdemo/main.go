//go:build unix

// Command semdemo coordinates several processes through semguard semaphores.
//
// The primary process creates a shared memory region holding a process-shared
// semaphore, plus a named semaphore, and starts copies of itself as children.
// Each child maps the region, writes its id into it and signals the shared
// semaphore; once the primary has seen every write it releases the children
// through the named semaphore. Control messages travel as MessagePack over
// pipes the children inherit.
//
//	semdemo -children 4 -v
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/richinsley/semguard"
)

type config struct {
	children int
	shmSize  int
	verbose  bool
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == childArg {
		os.Exit(runChild(os.Args[2:]))
	}

	var cfg config
	flag.IntVar(&cfg.children, "children", 3, "number of child processes to start")
	flag.IntVar(&cfg.shmSize, "shm-size", 4096, "size of the shared memory region in bytes")
	flag.BoolVar(&cfg.verbose, "v", false, "log every message exchanged with the children")
	flag.Parse()

	if cfg.children < 1 {
		log.Fatalf("-children must be at least 1, got %d", cfg.children)
	}
	if need := dataOffset + 8*cfg.children; cfg.shmSize < need {
		log.Fatalf("-shm-size %d is too small for %d children, need at least %d", cfg.shmSize, cfg.children, need)
	}

	logger := log.New(os.Stderr, "[primary] ", log.LstdFlags|log.Lmicroseconds)
	if err := runPrimary(cfg, logger); err != nil {
		logger.Fatalf("Error: %v", err)
	}
	logger.Printf("all %d children done", cfg.children)
}

// dataOffset is where the children's words start, right after slot 0.
const dataOffset = semguard.SlotSize

// waitRetry waits on r, retrying when a signal interrupts the wait.
func waitRetry(r semguard.Ref) error {
	for {
		err := r.Wait()
		if semguard.Classify(err) != semguard.ClassInterrupted {
			return err
		}
	}
}

func shmName(pid int) string     { return fmt.Sprintf("/semdemo-%d-shm", pid) }
func releaseName(pid int) string { return fmt.Sprintf("/semdemo-%d-rel", pid) }
