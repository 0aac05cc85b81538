package security

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// SessionIDLength is the length of a session id: hex of a 256-bit digest.
const SessionIDLength = 64

// NewSessionID returns an unguessable session id: 32 bytes from crypto/rand mixed with the current
// time and hashed with BLAKE2b-256.
func NewSessionID() (string, error) {
	var buf [40]byte
	if _, err := rand.Read(buf[:32]); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(buf[32:], uint64(time.Now().UnixNano()))
	sum := blake2b.Sum256(buf[:])
	return hex.EncodeToString(sum[:]), nil
}

// ValidSessionID reports whether id has the shape produced by NewSessionID. Malformed ids are rejected
// before any store round-trip.
func ValidSessionID(id string) bool {
	if len(id) != SessionIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
