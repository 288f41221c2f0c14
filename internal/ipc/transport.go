// Package ipc carries small control messages between a process and the
// children it starts, over pipes the children inherit.
package ipc

// Serializer defines the interface for message encoding and decoding.
// The default implementation uses MessagePack.
type Serializer interface {
	// Marshal encodes a Go value to bytes.
	Marshal(v interface{}) ([]byte, error)

	// Unmarshal decodes bytes into a Go value.
	Unmarshal(data []byte, v interface{}) error
}

// Transport sends and receives whole byte messages.
// The default implementation uses length-prefixed frames over pipes.
type Transport interface {
	// Send transmits a message to the remote endpoint.
	Send(data []byte) error

	// Receive reads a complete message from the remote endpoint.
	Receive() ([]byte, error)

	// Close releases transport resources and closes underlying connections.
	Close() error

	// Flush ensures any buffered data is sent immediately.
	Flush() error
}

// Conn pairs a Transport with a Serializer to exchange typed messages.
type Conn struct {
	Transport  Transport
	Serializer Serializer
}

// NewConn returns a Conn using MessagePack over t.
func NewConn(t Transport) *Conn {
	return &Conn{Transport: t, Serializer: MsgpackSerializer{}}
}

// Send encodes v and sends it as one message.
func (c *Conn) Send(v interface{}) error {
	data, err := c.Serializer.Marshal(v)
	if err != nil {
		return err
	}
	return c.Transport.Send(data)
}

// Receive reads one message and decodes it into v.
func (c *Conn) Receive(v interface{}) error {
	data, err := c.Transport.Receive()
	if err != nil {
		return err
	}
	return c.Serializer.Unmarshal(data, v)
}

// Close closes the underlying transport.
func (c *Conn) Close() error {
	return c.Transport.Close()
}
