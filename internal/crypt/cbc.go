// Package crypt holds the three cipher contexts used by lineup. Each one owns
// its own key material:
//
//   - Envelope wraps API request bodies and opens API responses.
//   - CloudList decrypts the "iv:ciphertext" tokens of cloud host lists.
//   - AssetCipher decrypts binary advertisement images.
//
// Decrypt helpers never return an error: anything unusable comes back empty
// and the caller falls through to its next option.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	errBadPadding = errors.New("bad pkcs7 padding")
	errBadLength  = errors.New("ciphertext is not a multiple of the block size")
)

func newBlock(key []byte) (cipher.Block, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid aes key (%d bytes): %w", len(key), err)
	}
	return block, nil
}

func checkIV(iv []byte) error {
	if len(iv) != aes.BlockSize {
		return fmt.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errBadLength
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errBadPadding
		}
	}
	return b[:len(b)-n], nil
}

func cbcEncrypt(block cipher.Block, iv, plain []byte) []byte {
	padded := pkcs7Pad(append([]byte(nil), plain...), block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func cbcDecrypt(block cipher.Block, iv, ct []byte) ([]byte, error) {
	if len(ct) == 0 || len(ct)%block.BlockSize() != 0 {
		return nil, errBadLength
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	return pkcs7Unpad(out, block.BlockSize())
}
