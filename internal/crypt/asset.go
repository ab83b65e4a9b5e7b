package crypt

import (
	"crypto/cipher"
	"fmt"
)

// AssetCipher decrypts binary image payloads (AES-CBC, fixed key and iv).
type AssetCipher struct {
	block cipher.Block
	iv    []byte
}

func NewAssetCipher(key, iv string) (*AssetCipher, error) {
	block, err := newBlock([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("asset: %w", err)
	}
	if err := checkIV([]byte(iv)); err != nil {
		return nil, fmt.Errorf("asset: %w", err)
	}
	return &AssetCipher{block: block, iv: []byte(iv)}, nil
}

func (a *AssetCipher) Encrypt(plain []byte) []byte {
	return cbcEncrypt(a.block, a.iv, plain)
}

// Decrypt returns nil when ct is truncated or badly padded.
func (a *AssetCipher) Decrypt(ct []byte) []byte {
	plain, err := cbcDecrypt(a.block, a.iv, ct)
	if err != nil {
		return nil
	}
	return plain
}
