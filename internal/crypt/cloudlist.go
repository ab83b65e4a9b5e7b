package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const cloudKeySize = 32

// CloudList decrypts entries of cloud hosted host lists. Each entry is a
// token "base64(iv):base64(ciphertext)" produced with AES-256-CBC under a key
// zero padded to 32 bytes.
type CloudList struct {
	block cipher.Block
}

func NewCloudList(key string) (*CloudList, error) {
	if key == "" || len(key) > cloudKeySize {
		return nil, fmt.Errorf("cloud list: key must be 1..%d bytes, got %d", cloudKeySize, len(key))
	}
	padded := make([]byte, cloudKeySize)
	copy(padded, key)
	block, err := newBlock(padded)
	if err != nil {
		return nil, fmt.Errorf("cloud list: %w", err)
	}
	return &CloudList{block: block}, nil
}

// Encrypt produces a token with a random iv.
func (c *CloudList) Encrypt(plain string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to read iv: %w", err)
	}
	ct := cbcEncrypt(c.block, iv, []byte(plain))
	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt returns the plaintext of token, or "" if the token is malformed
// or does not decrypt.
func (c *CloudList) Decrypt(token string) string {
	ivB64, ctB64, ok := strings.Cut(token, ":")
	if !ok || ivB64 == "" || ctB64 == "" {
		return ""
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil || checkIV(iv) != nil {
		return ""
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return ""
	}
	plain, err := cbcDecrypt(c.block, iv, ct)
	if err != nil {
		return ""
	}
	return string(plain)
}
