package models

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet is Crockford base32: no I, L, O or U, so codes survive being
// read over the phone or scribbled on a desk log.
const codeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const codeLength = 6

// NewCode generates a short human-readable visit code such as "V-8F3KQ2".
// Codes are random, not sequential; uniqueness is enforced by the store.
func NewCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate visit code: %w", err)
	}
	out := make([]byte, 0, codeLength+2)
	out = append(out, 'V', '-')
	for _, b := range buf {
		out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return string(out), nil
}
