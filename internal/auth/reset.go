package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/zeebo/blake3"
)

const resetTokenBytes = 32

// NewResetToken returns an opaque reset token for the email link and the
// digest to store. Only the digest is persisted.
func NewResetToken() (token string, digest []byte, err error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate reset token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, DigestResetToken(token), nil
}

func DigestResetToken(token string) []byte {
	sum := blake3.Sum256([]byte(token))
	return sum[:]
}
