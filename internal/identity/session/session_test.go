package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voteboard/internal/identity/models"
)

const testKey = "test-signing-key-0123456789"

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestCodecDecode(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := NewCodec(testKey, "voteboard", time.Hour, WithClock(fixedClock(now)))

	t.Run("issued session decodes to candidate", func(t *testing.T) {
		token, err := codec.Issue(models.Candidate{
			UserID:      "123",
			DisplayName: "alice",
			ServerIDs:   []string{"guild-1"},
			AccessToken: "provider-token",
		})
		require.NoError(t, err)

		candidate, err := codec.Decode(token)
		require.NoError(t, err)
		assert.Equal(t, "123", candidate.UserID)
		assert.Equal(t, "alice", candidate.DisplayName)
		assert.True(t, candidate.HasServer("guild-1"))
		assert.Equal(t, "provider-token", candidate.AccessToken)
		assert.Equal(t, now.Add(time.Hour), candidate.ExpiresAt)
	})

	t.Run("empty server list is present and decodes", func(t *testing.T) {
		token, err := codec.Issue(models.Candidate{UserID: "123", DisplayName: "alice"})
		require.NoError(t, err)
		candidate, err := codec.Decode(token)
		require.NoError(t, err)
		assert.Empty(t, candidate.ServerIDs)
	})

	t.Run("expired session", func(t *testing.T) {
		token, err := codec.Issue(models.Candidate{UserID: "123", DisplayName: "alice", ServerIDs: []string{}})
		require.NoError(t, err)
		later := NewCodec(testKey, "voteboard", time.Hour, WithClock(fixedClock(now.Add(2*time.Hour))))
		_, err = later.Decode(token)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewCodec("another-signing-key-987654", "voteboard", time.Hour, WithClock(fixedClock(now)))
		token, err := other.Issue(models.Candidate{UserID: "123", DisplayName: "alice", ServerIDs: []string{}})
		require.NoError(t, err)
		_, err = codec.Decode(token)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewCodec(testKey, "someone-else", time.Hour, WithClock(fixedClock(now)))
		token, err := other.Issue(models.Candidate{UserID: "123", DisplayName: "alice", ServerIDs: []string{}})
		require.NoError(t, err)
		_, err = codec.Decode(token)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			DisplayName: "alice",
			ServerIDs:   []string{"guild-1"},
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "123",
				Issuer:    "voteboard",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = codec.Decode(signed)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("missing fields", func(t *testing.T) {
		cases := map[string]jwt.MapClaims{
			"no subject":      {"iss": "voteboard", "exp": now.Add(time.Hour).Unix(), "name": "alice", "servers": []string{}},
			"no display name": {"iss": "voteboard", "exp": now.Add(time.Hour).Unix(), "sub": "123", "servers": []string{}},
			"no server list":  {"iss": "voteboard", "exp": now.Add(time.Hour).Unix(), "sub": "123", "name": "alice"},
			"no expiry":       {"iss": "voteboard", "sub": "123", "name": "alice", "servers": []string{}},
		}
		for name, claims := range cases {
			t.Run(name, func(t *testing.T) {
				signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
				require.NoError(t, err)
				_, err = codec.Decode(signed)
				assert.ErrorIs(t, err, ErrMalformed)
			})
		}
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := codec.Decode("not-a-jwt")
		assert.ErrorIs(t, err, ErrMalformed)
		_, err = codec.Decode("   ")
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestFromHeader(t *testing.T) {
	assert.Equal(t, "abc", FromHeader("Bearer abc", ""))
	assert.Equal(t, "abc", FromHeader("bearer  abc ", "cookie"))
	assert.Equal(t, "", FromHeader("Basic abc", "cookie"), "non-bearer header is not replaced by the cookie")
	assert.Equal(t, "cookie", FromHeader("", "cookie"))
	assert.Equal(t, "", FromHeader("", ""))
}
