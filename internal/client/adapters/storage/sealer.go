package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	keySize   = 32
	sealInfo  = "authkeeper session snapshot"
)

// Ошибки шифрования снимка.
var (
	ErrEmptySealSecret = errors.New("seal secret must not be empty")
	ErrSealBroken      = errors.New("sealed snapshot cannot be opened")
)

// Sealer шифрует снимок сессии перед записью в durable-раздел.
type Sealer struct {
	key [keySize]byte
}

// NewSealer выводит ключ secretbox из секрета конфигурации через HKDF-SHA256.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptySealSecret
	}

	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealInfo))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("deriving seal key: %w", err)
	}
	return s, nil
}

// Seal шифрует plaintext; nonce записывается перед шифротекстом.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open расшифровывает данные, полученные от Seal.
func (s *Sealer) Open(box []byte) ([]byte, error) {
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrSealBroken
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plaintext, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealBroken
	}
	return plaintext, nil
}
