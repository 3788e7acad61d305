package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

var (
	// ErrInvalidKeySize is returned when the key is not 32 bytes (AES-256).
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")
	// ErrInvalidCiphertext is returned when ciphertext, IV or padding is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// EncryptData encrypts plaintext with AES-256-CBC under key using a fresh random IV.
// PKCS#7 padding is applied. The IV must be stored alongside the ciphertext.
func EncryptData(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	if len(key) != EncryptionKeySize {
		return nil, nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	iv, err = RandomBytes(aes.BlockSize)
	if err != nil {
		return nil, nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, iv, nil
}

// DecryptData reverses EncryptData. A wrong key almost always surfaces as ErrInvalidCiphertext.
func DecryptData(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != EncryptionKeySize {
		return nil, ErrInvalidKeySize
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrInvalidCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrInvalidCiphertext
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrInvalidCiphertext
		}
	}
	return b[:len(b)-n], nil
}
