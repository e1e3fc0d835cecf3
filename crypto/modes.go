package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// ecbCipher implements the 1.0 format: AES-128-ECB with PKCS#7 padding.
type ecbCipher struct{}

func (ecbCipher) Encrypt(plain, key []byte, hdr Header) ([]byte, error) {
	block, err := aes.NewCipher(sessionKey(key, hdr.Timestamp))
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += block.BlockSize() {
		block.Encrypt(out[i:], padded[i:])
	}
	return out, nil
}

func (ecbCipher) Decrypt(body, key []byte, hdr Header) ([]byte, error) {
	block, err := aes.NewCipher(sessionKey(key, hdr.Timestamp))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || len(body)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d is not block aligned", len(body))
	}
	out := make([]byte, len(body))
	for i := 0; i < len(body); i += block.BlockSize() {
		block.Decrypt(out[i:], body[i:])
	}
	return pkcs7Unpad(out, block.BlockSize())
}

// cbcCipher implements the A01/B01 formats: AES-128-CBC with PKCS#7 padding
// and an IV derived from the frame header.
type cbcCipher struct{}

func (cbcCipher) Encrypt(plain, key []byte, hdr Header) ([]byte, error) {
	block, err := aes.NewCipher(sessionKey(key, hdr.Timestamp))
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, headerDigest(hdr, false)).CryptBlocks(out, padded)
	return out, nil
}

func (cbcCipher) Decrypt(body, key []byte, hdr Header) ([]byte, error) {
	block, err := aes.NewCipher(sessionKey(key, hdr.Timestamp))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || len(body)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d is not block aligned", len(body))
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, headerDigest(hdr, false)).CryptBlocks(out, body)
	return pkcs7Unpad(out, block.BlockSize())
}

// gcmCipher implements the L01 format: AES-128-GCM with a 12-byte nonce
// derived from the frame header. The GCM tag doubles as the payload checksum.
type gcmCipher struct{}

func (gcmCipher) Encrypt(plain, key []byte, hdr Header) ([]byte, error) {
	aead, err := newGCM(key, hdr)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, headerDigest(hdr, true)[:aead.NonceSize()], plain, nil), nil
}

func (gcmCipher) Decrypt(body, key []byte, hdr Header) ([]byte, error) {
	aead, err := newGCM(key, hdr)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, headerDigest(hdr, true)[:aead.NonceSize()], body, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm open: %w", err)
	}
	return plain, nil
}

func newGCM(key []byte, hdr Header) (cipher.AEAD, error) {
	block, err := aes.NewCipher(sessionKey(key, hdr.Timestamp))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// pkcs7Pad always appends padding, even on aligned input.
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// pkcs7Unpad validates every padding byte, not just the count, so a wrong
// key is reported as an error rather than returning mangled plaintext.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("crypto: empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("crypto: invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("crypto: invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
