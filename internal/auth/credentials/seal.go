package credentials

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for deriving the file key from a passphrase.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	saltSize   = 16
)

var errOpen = errors.New("credentials: cannot decrypt stored tokens")

// sealer encrypts the credential file payload with XChaCha20-Poly1305.
// The derived key is cached per salt so reads do not rerun the KDF.
type sealer struct {
	passphrase []byte
	salt       []byte
	key        []byte
}

func newSealer(passphrase string) *sealer {
	return &sealer{passphrase: []byte(passphrase)}
}

func (s *sealer) keyFor(salt []byte) []byte {
	if s.key != nil && string(s.salt) == string(salt) {
		return s.key
	}
	s.salt = append([]byte(nil), salt...)
	s.key = argon2.IDKey(s.passphrase, salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	return s.key
}

// seal returns salt, nonce and ciphertext for plaintext. The salt of the
// previous seal or open is reused when one is known.
func (s *sealer) seal(plaintext []byte) (salt, nonce, ciphertext []byte, err error) {
	salt = s.salt
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, nil, fmt.Errorf("generate salt: %w", err)
		}
	}
	aead, err := chacha20poly1305.NewX(s.keyFor(salt))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return salt, nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

func (s *sealer) open(salt, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.keyFor(salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errOpen
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errOpen
	}
	return plaintext, nil
}
