package common

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	semanticRe = regexp.MustCompile(`^v\d+\.\d+\.\d+$`)
	hexRe      = regexp.MustCompile(`^[a-fA-F0-9]+$`)
)

// IsSemantic reports whether the tag is a semantic version prefixed with a
// lowercase v, e.g. v1.2.3. Tagged builds of such versions are immutable.
func IsSemantic(tag string) bool {
	return semanticRe.MatchString(tag)
}

func isHexString(value string, length int) bool {
	return len(value) == length && hexRe.MatchString(value)
}

// IsGitHash validates a full 40 character git commit sha.
func IsGitHash(value string) bool {
	return isHexString(value, 40)
}

// IsDockerID validates a 64 character docker image/container id.
func IsDockerID(value string) bool {
	return isHexString(strings.TrimPrefix(value, "sha256:"), 64)
}

// ValidSignature checks an HMAC-SHA1 hex signature over body against the
// shared secret. The header value may carry a "sha1=" prefix (GitHub style).
func ValidSignature(secret string, body []byte, header string) bool {
	signature := header
	if parts := strings.SplitN(header, "=", 2); len(parts) == 2 {
		if !strings.EqualFold(parts[0], "sha1") {
			return false
		}
		signature = parts[1]
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(strings.ToLower(signature)))
}

// GetAuthorizationToken extracts a bearer token from an Authorization header.
func GetAuthorizationToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if !(len(parts) == 2 && parts[0] == "Bearer") {
		return "", NewErrNo(TokenInvalid)
	}
	return parts[1], nil
}

// HashPassword digests a password for storage and comparison.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// BytesHumanReadable renders a byte count with decimal unit prefixes.
func BytesHumanReadable(num int64) string {
	value := float64(num)
	for _, unit := range []string{"", "K", "M", "G", "T", "P", "E", "Z"} {
		if value < 1000.0 && value > -1000.0 {
			return fmt.Sprintf("%.1f%s%s", value, unit, "B")
		}
		value /= 1000.0
	}
	return fmt.Sprintf("%.1fYB", value)
}
