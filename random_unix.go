//go:build unix && !linux

package semguard

import "crypto/rand"

func getRandom(b []byte) error {
	_, err := rand.Read(b)
	return err
}
