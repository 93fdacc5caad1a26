package commands

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	domainerrors "formbridge/contexts/intake-core/domain/errors"
)

// resumeTokenBytes gives at least 128 bits of CSPRNG entropy per token.
const resumeTokenBytes = 32

// generateResumeToken mints a fresh opaque capability token. Rotated on
// every state-mutating write.
func generateResumeToken() (string, error) {
	buf := make([]byte, resumeTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// verifyResumeToken performs a constant-time comparison to preclude timing
// attacks on token verification.
func verifyResumeToken(submissionToken, presented string) error {
	if subtle.ConstantTimeCompare([]byte(submissionToken), []byte(presented)) != 1 {
		return domainerrors.ErrInvalidResumeToken
	}
	return nil
}
