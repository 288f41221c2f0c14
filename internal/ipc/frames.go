package ipc

// frameSize is the largest frame, length prefix included, that goes through
// a pooled buffer. Bigger frames are allocated per message.
const frameSize = 8 << 10

type frame = [frameSize]byte

// framePool recycles frame buffers between the transports of a process.
// It is a buffered channel, so get and put never block and take no lock.
type framePool struct {
	free chan *frame
}

func newFramePool(n int) *framePool {
	return &framePool{free: make(chan *frame, n)}
}

// get returns a recycled frame, or a new one when none is free.
func (p *framePool) get() *frame {
	select {
	case f := <-p.free:
		return f
	default:
		return new(frame)
	}
}

// put recycles f; it is dropped when the pool is full.
func (p *framePool) put(f *frame) {
	select {
	case p.free <- f:
	default:
	}
}

// frames is shared by every MsgpackTransport.
var frames = newFramePool(16)
