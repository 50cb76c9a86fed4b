package browser

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-rod/rod/lib/proto"
)

// StorageState is the persisted login state of a context.
type StorageState struct {
	Cookies []*proto.NetworkCookie `json:"cookies"`
}

func LoadStorageState(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}

	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse storage state %s: %w", path, err)
	}
	return &state, nil
}

func SaveStorageState(path string, state *StorageState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write storage state: %w", err)
	}
	return nil
}

func (s *StorageState) cookieParams() []*proto.NetworkCookieParam {
	if s == nil || len(s.Cookies) == 0 {
		return nil
	}
	return proto.CookiesToParams(s.Cookies)
}

// EncryptCookies seals cookies with AES-GCM under key, which must be 16, 24
// or 32 bytes. The result is hex encoded with the nonce prepended.
func EncryptCookies(key []byte, cookies []*proto.NetworkCookie) (string, error) {
	data, err := json.Marshal(cookies)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return hex.EncodeToString(ciphertext), nil
}

func DecryptCookies(key []byte, encrypted string) ([]*proto.NetworkCookie, error) {
	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(plaintext, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie key: %w", err)
	}
	return cipher.NewGCM(block)
}
