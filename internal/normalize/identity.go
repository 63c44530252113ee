package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"EditaisScanner/internal/domain"
)

const hashSeparator = "\x1f"

// IdentityHash derives the stable notice fingerprint.
// The platform tag always leads the input; the native id wins over the composite parts.
func IdentityHash(platform, nativeID string, composite ...string) (string, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return "", fmt.Errorf("%w: empty platform tag", domain.ErrMalformedRecord)
	}

	parts := []string{platform}
	if id := strings.TrimSpace(nativeID); id != "" {
		parts = append(parts, "id", id)
	} else {
		usable := false
		parts = append(parts, "composite")
		for _, c := range composite {
			c = strings.TrimSpace(c)
			if c != "" {
				usable = true
			}
			parts = append(parts, c)
		}
		if !usable {
			return "", fmt.Errorf("%w: no native id or composite key for %s", domain.ErrMalformedRecord, platform)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, hashSeparator)))
	return hex.EncodeToString(sum[:]), nil
}
