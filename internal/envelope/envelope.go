package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// gcmTagSize mirrors crypto/cipher's default GCM tag length. The tag is
// stored separately so envelopes stay interoperable with stores that keep
// ciphertext and tag in distinct fields.
const gcmTagSize = 16

// Envelope is the authenticated-encryption output for a private payload.
// All byte fields are hex encoded for portability across the document store,
// IPFS and ledger anchors.
type Envelope struct {
	Ciphertext   string `json:"ciphertext"`
	Nonce        string `json:"nonce"`
	AuthTag      string `json:"auth_tag"`
	KeyReference string `json:"key_reference"`
}

// Codec seals and opens envelopes under a single AES-256-GCM key. The key
// reference recorded on sealed envelopes identifies that key; custody of the
// key itself lives with the caller.
type Codec struct {
	key    []byte
	keyRef string
}

// NewCodec validates the key length and returns a codec.
func NewCodec(key []byte, keyReference string) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("envelope codec requires a %d-byte key, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Codec{key: k, keyRef: keyReference}, nil
}

// KeyReference returns the opaque reference recorded on sealed envelopes.
func (c *Codec) KeyReference() string {
	return c.keyRef
}

// Encrypt seals the payload under a fresh random nonce. The nonce is always
// drawn internally; accepting a caller-supplied nonce would make reuse under
// the same key possible, which breaks GCM.
func (c *Codec) Encrypt(payload []byte) (Envelope, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return Envelope{}, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, fmt.Errorf("draw nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, payload, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return Envelope{
		Ciphertext:   hex.EncodeToString(ciphertext),
		Nonce:        hex.EncodeToString(nonce),
		AuthTag:      hex.EncodeToString(tag),
		KeyReference: c.keyRef,
	}, nil
}

// Decrypt opens an envelope. It fails closed: a structural defect yields a
// malformed-envelope error and a tag mismatch yields an integrity error;
// partial plaintext is never returned.
func (c *Codec) Decrypt(env Envelope) ([]byte, error) {
	if env.Ciphertext == "" || env.Nonce == "" || env.AuthTag == "" {
		return nil, malformed(fmt.Errorf("missing envelope fields"))
	}

	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, malformed(fmt.Errorf("decode ciphertext: %w", err))
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil {
		return nil, malformed(fmt.Errorf("decode nonce: %w", err))
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return nil, malformed(fmt.Errorf("decode auth tag: %w", err))
	}
	if len(tag) != gcmTagSize {
		return nil, malformed(fmt.Errorf("auth tag must be %d bytes, got %d", gcmTagSize, len(tag)))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, malformed(fmt.Errorf("nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce)))
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "envelope authentication failed")
	}
	return plaintext, nil
}

func malformed(err error) error {
	return appErrors.Wrap(err, "MALFORMED_ENVELOPE", appErrors.ErrIntegrity.Status, "envelope is structurally invalid")
}
