package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashVersion prefixes every fingerprint so a future algorithm change
// re-keys cleanly instead of colliding with old values.
const HashVersion = "sha256/v1"

// Fingerprint hashes the canonical serialization of v.
func Fingerprint(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", HashVersion, hex.EncodeToString(sum[:])), nil
}

// MustFingerprint is Fingerprint for values that are known to serialize,
// such as the engine's own artifact types. It panics on serialization
// failure, which would indicate a bug rather than bad input.
func MustFingerprint(v any) string {
	fp, err := Fingerprint(v)
	if err != nil {
		panic(err)
	}
	return fp
}
