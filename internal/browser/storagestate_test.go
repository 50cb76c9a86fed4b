package browser

import (
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testCookies() []*proto.NetworkCookie {
	return []*proto.NetworkCookie{
		{Name: "sid", Value: "abc", Domain: ".shop.example", Path: "/", HTTPOnly: true, Secure: true},
		{Name: "lang", Value: "de", Domain: "shop.example", Path: "/"},
	}
}

func TestCookieEncryption(t *testing.T) {
	sealed, err := EncryptCookies(testKey, testCookies())
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sid")

	opened, err := DecryptCookies(testKey, sealed)
	require.NoError(t, err)
	assert.Equal(t, testCookies(), opened)
}

func TestCookieEncryptionUsesFreshNonce(t *testing.T) {
	a, err := EncryptCookies(testKey, testCookies())
	require.NoError(t, err)
	b, err := EncryptCookies(testKey, testCookies())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptCookiesFailures(t *testing.T) {
	sealed, err := EncryptCookies(testKey, testCookies())
	require.NoError(t, err)

	_, err = DecryptCookies([]byte("fedcba9876543210fedcba9876543210"), sealed)
	assert.Error(t, err, "wrong key")

	_, err = DecryptCookies(testKey, "zz")
	assert.Error(t, err, "not hex")

	_, err = DecryptCookies(testKey, "00ff")
	assert.Error(t, err, "too short")

	_, err = EncryptCookies([]byte("short"), testCookies())
	assert.Error(t, err, "bad key size")
}

func TestStorageStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, SaveStorageState(path, &StorageState{Cookies: testCookies()}))

	state, err := LoadStorageState(path)
	require.NoError(t, err)
	assert.Equal(t, testCookies(), state.Cookies)

	params := state.cookieParams()
	require.Len(t, params, 2)
	assert.Equal(t, "sid", params[0].Name)
	assert.True(t, params[0].HTTPOnly)
}

func TestStorageStateFromSpec(t *testing.T) {
	state, err := SessionSpec{}.storageState()
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Nil(t, state.cookieParams())

	inline := &StorageState{Cookies: testCookies()}
	state, err = SessionSpec{StorageState: inline, StorageStatePath: "/does/not/exist"}.storageState()
	require.NoError(t, err)
	assert.Same(t, inline, state)

	_, err = SessionSpec{StorageStatePath: filepath.Join(t.TempDir(), "missing.json")}.storageState()
	assert.Error(t, err)
}
