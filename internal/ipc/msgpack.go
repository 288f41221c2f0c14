package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessage bounds a single frame so a corrupt length prefix cannot make
// Receive allocate without limit.
const maxMessage = 1 << 20

type MsgpackSerializer struct{}

func (ms MsgpackSerializer) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (ms MsgpackSerializer) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// MsgpackTransport frames messages with a 4-byte big-endian length prefix.
// Either side may be nil for a one-way pipe. A transport is not safe for
// concurrent Sends, nor for concurrent Receives.
type MsgpackTransport struct {
	reader io.ReadCloser
	writer io.WriteCloser

	// prefix buffers for frames that do not fit a pooled frame
	whdr, rhdr [4]byte
}

func NewMsgpackTransport(reader io.ReadCloser, writer io.WriteCloser) *MsgpackTransport {
	return &MsgpackTransport{
		reader: reader,
		writer: writer,
	}
}

func (mt *MsgpackTransport) Send(data []byte) error {
	if mt.writer == nil {
		return errors.New("ipc: transport has no writer")
	}
	if len(data) > maxMessage {
		return fmt.Errorf("ipc: message of %d bytes exceeds limit of %d", len(data), maxMessage)
	}

	// Small messages go out as one write, prefix included
	if n := 4 + len(data); n <= frameSize {
		f := frames.get()
		binary.BigEndian.PutUint32(f[:4], uint32(len(data)))
		copy(f[4:], data)
		_, err := mt.writer.Write(f[:n])
		frames.put(f)
		if err != nil {
			return err
		}
		return mt.Flush()
	}

	binary.BigEndian.PutUint32(mt.whdr[:], uint32(len(data)))
	if _, err := mt.writer.Write(mt.whdr[:]); err != nil {
		return err
	}
	if _, err := mt.writer.Write(data); err != nil {
		return err
	}
	return mt.Flush()
}

func (mt *MsgpackTransport) Receive() ([]byte, error) {
	if mt.reader == nil {
		return nil, errors.New("ipc: transport has no reader")
	}

	if _, err := io.ReadFull(mt.reader, mt.rhdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(mt.rhdr[:])
	if length > maxMessage {
		return nil, fmt.Errorf("ipc: message of %d bytes exceeds limit of %d", length, maxMessage)
	}

	if length <= frameSize {
		f := frames.get()
		defer frames.put(f)
		if _, err := io.ReadFull(mt.reader, f[:length]); err != nil {
			return nil, err
		}
		return append([]byte(nil), f[:length]...), nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(mt.reader, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (mt *MsgpackTransport) Close() error {
	var rerr, werr error
	if mt.reader != nil {
		rerr = mt.reader.Close()
	}
	if mt.writer != nil {
		werr = mt.writer.Close()
	}
	return errors.Join(rerr, werr)
}

func (mt *MsgpackTransport) Flush() error {
	if flusher, ok := mt.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}
