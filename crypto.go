package chunkcache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations is the PBKDF2 iteration count used to derive the
// encryption key from the cache key.
const DefaultKDFIterations = 100_000

const (
	keySize   = 32
	nonceSize = 12
)

// Namespace returns the storage namespace of a cache key: the hex SHA-256
// digest of the key, so cache keys never appear in blob names.
func Namespace(cacheKey string) string {
	sum := sha256.Sum256([]byte("chunkcache/namespace\x00" + cacheKey))
	return hex.EncodeToString(sum[:])
}

// keyring holds the keys derived from a cache key.
type keyring struct {
	aead cipher.AEAD
	mac  []byte
}

// deriveKeys stretches cacheKey with PBKDF2-SHA256 salted by the namespace
// into an AES-256-GCM key and an HMAC key for item ids.
func deriveKeys(cacheKey, namespace string, iterations int) (*keyring, error) {
	if iterations < 1 {
		iterations = 1
	}

	material := pbkdf2.Key([]byte(cacheKey), []byte(namespace), iterations, 2*keySize, sha256.New)

	block, err := aes.NewCipher(material[:keySize])
	if err != nil {
		return nil, fmt.Errorf("chunkcache: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("chunkcache: gcm: %w", err)
	}

	return &keyring{aead: aead, mac: material[keySize:]}, nil
}

// itemID maps an item key to the hex digest used in blob names.
func (k *keyring) itemID(key string) string {
	m := hmac.New(sha256.New, k.mac)
	m.Write([]byte(key))
	return hex.EncodeToString(m.Sum(nil))
}

// seal encrypts payload. The nonce must already be part of header, which is
// authenticated as additional data.
func (k *keyring) seal(header *chunkHeader, payload []byte) []byte {
	hdr := header.marshal()
	out := make([]byte, 0, len(hdr)+len(payload)+k.aead.Overhead())
	out = append(out, hdr...)
	return k.aead.Seal(out, header.Nonce[:], payload, hdr)
}

// open authenticates and decrypts a chunk blob.
func (k *keyring) open(data []byte) (*chunkHeader, []byte, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	plain, err := k.aead.Open(nil, h.Nonce[:], data[headerSize:], data[:headerSize])
	if err != nil {
		return nil, nil, err
	}
	return h, plain, nil
}

func newNonce() ([nonceSize]byte, error) {
	var n [nonceSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("chunkcache: nonce: %w", err)
	}
	return n, nil
}
