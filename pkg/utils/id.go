package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// DefaultStreamIDLength is the length of generated stream ids.
const DefaultStreamIDLength = 8

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateStreamID returns a random alphanumeric token of the given length.
// Uniqueness is the caller's job.
func GenerateStreamID(length int) (string, error) {
	if length <= 0 {
		length = DefaultStreamIDLength
	}

	set := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, set)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		b[i] = alphanumeric[n.Int64()]
	}
	return string(b), nil
}

// GenerateConnID returns an id for a single transport connection.
func GenerateConnID() string {
	return uuid.NewString()
}
