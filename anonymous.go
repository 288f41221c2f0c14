//go:build unix

package semguard

import (
	"encoding/base64"
	"fmt"
)

const (
	anonRandLen  = 16 // 128 bits of entropy
	anonAttempts = 10
)

// anonFallback is the name body used when no randomness is available. A
// collision with it is possible but only costs a retry.
var anonFallback = [anonRandLen]byte{
	0x3b, 0xd0, 0x71, 0x9e, 0xa4, 0x0f, 0xc2, 0x58,
	0xe6, 0x17, 0x8d, 0x2a, 0xf9, 0x64, 0xb3, 0x05,
}

// readRandom fills b with random bytes; replaced in tests.
var readRandom = getRandom

// anonName holds a generated name: '/' followed by the unpadded base64url
// encoding of anonRandLen bytes. URL-safe base64 keeps '/' out of the body.
type anonName [1 + (anonRandLen*8+5)/6]byte

func (b *anonName) generate() string {
	random := anonFallback
	if err := readRandom(random[:]); err != nil {
		random = anonFallback
	}
	b[0] = '/'
	base64.RawURLEncoding.Encode(b[1:], random[:])
	return string(b[:])
}

// Anonymous creates a named semaphore that nothing else can open, for
// platforms without unnamed semaphores (macOS).
//
// It creates the semaphore exclusively, with mode 0600 and the given count,
// under a random name and unlinks the name before returning, so the returned
// handle is the only access to it. Failed attempts are retried with a fresh
// name; after 10 failures the error wraps ErrExhausted and the last OS error.
//
// Closing the result is always safe in the sense of (*Named).Close, provided
// nothing is blocked on it.
func Anonymous(count uint32) (*Named, error) {
	flags := Create(true, 0o600, count)
	var name anonName
	var lastErr error
	for i := 0; i < anonAttempts; i++ {
		n, err := Open(name.generate(), flags)
		if err != nil {
			lastErr = err
			continue
		}
		if err := Unlink(n.name); err != nil {
			// A handle whose name stays visible is not anonymous.
			n.Close()
			lastErr = err
			continue
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
