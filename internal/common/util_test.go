package common

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSemantic(t *testing.T) {
	assert.True(t, IsSemantic("v1.2.3"))
	assert.True(t, IsSemantic("v0.0.1"))
	assert.False(t, IsSemantic("1.2.3"))
	assert.False(t, IsSemantic("v1.2"))
	assert.False(t, IsSemantic("latest-main"))
	assert.False(t, IsSemantic("v1.2.3-rc1"))
	assert.False(t, IsSemantic(""))
}

func TestIsGitHash(t *testing.T) {
	assert.True(t, IsGitHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.False(t, IsGitHash("aaaa"))
	assert.False(t, IsGitHash("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"))
}

func TestIsDockerID(t *testing.T) {
	id := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	assert.True(t, IsDockerID(id))
	assert.True(t, IsDockerID("sha256:"+id))
	assert.False(t, IsDockerID("cafebabe1234"))
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"after":"abc"}`)

	assert.True(t, ValidSignature("secret", body, sign("secret", body)))
	assert.True(t, ValidSignature("secret", body, "sha1="+sign("secret", body)))
	assert.False(t, ValidSignature("secret", body, sign("other", body)))
	assert.False(t, ValidSignature("secret", body, "sha256="+sign("secret", body)))
	assert.False(t, ValidSignature("secret", body, ""))
	assert.False(t, ValidSignature("secret", body, "not-hex-at-all"))
}

func TestGetAuthorizationToken(t *testing.T) {
	token, err := GetAuthorizationToken("Bearer abc.def.ghi")
	assert.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = GetAuthorizationToken("abc.def.ghi")
	assert.Error(t, err)
	_, err = GetAuthorizationToken("")
	assert.Error(t, err)
}

func TestBytesHumanReadable(t *testing.T) {
	assert.Equal(t, "512.0B", BytesHumanReadable(512))
	assert.Equal(t, "1.5KB", BytesHumanReadable(1500))
	assert.Equal(t, "2.0MB", BytesHumanReadable(2_000_000))
}
