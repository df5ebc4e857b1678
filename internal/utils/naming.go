package utils

import (
	"crypto/rand"
	"math/big"
)

const base62Charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandomSuffix returns an n-character random base62 string, used to
// build default machine names that will not collide.
func RandomSuffix(n int) (string, error) {
	var result string
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Charset))))
		if err != nil {
			return "", err
		}
		result += string(base62Charset[idx.Int64()])
	}
	return result, nil
}

// DefaultMachineName returns a fresh "spinup-XXXXXXX" name.
func DefaultMachineName() (string, error) {
	suffix, err := RandomSuffix(7)
	if err != nil {
		return "", err
	}
	return "spinup-" + suffix, nil
}
