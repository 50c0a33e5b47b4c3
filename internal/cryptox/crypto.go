// Package cryptox implements the encryption boundary for credential
// material: an argon2id key derivation and AES-GCM sealing of small JSON
// payloads. Plaintext never leaves the calling function.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"

	"golang.org/x/crypto/argon2"

	"github.com/andrejs2008/evomint/internal/common"
)

// DeriveMasterKey stretches a passphrase into a 32-byte AES-256 key using
// argon2id. The salt must stay stable across restarts or previously stored
// blobs become undecryptable.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// EncryptEntry serializes the given value to JSON and encrypts it with
// AES-GCM under the provided key.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A fresh
// random 12-byte nonce is generated per call and returned alongside the
// ciphertext; both are needed to decrypt.
//
// Example:
//
//	tokens := TokenPair{Access: "a", Refresh: "r"}
//	ciphertext, nonce, err := cryptox.EncryptEntry(tokens, key)
func EncryptEntry(entry any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	common.WipeByteArray(plaintext)

	return ciphertext, nonce, nil
}

// DecryptEntry reverses EncryptEntry: it opens the AES-GCM ciphertext with
// the same key and nonce, then unmarshals the JSON plaintext into v.
//
// Example:
//
//	var tokens TokenPair
//	err := cryptox.DecryptEntry(ciphertext, nonce, key, &tokens)
func DecryptEntry(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}
