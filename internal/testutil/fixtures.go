package testutil

import (
	"math/rand"

	"github.com/google/uuid"
)

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

// RandomEntityID returns a unique entity identifier.
func RandomEntityID() string {
	return "ent_" + uuid.NewString()
}

// RandomObserverID returns a unique observer identifier.
func RandomObserverID() string {
	return "obs_" + uuid.NewString()
}

// RandomSeed returns a world seed string.
func RandomSeed() string {
	return "seed_" + RandomString(12)
}
