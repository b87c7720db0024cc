package hls

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnpad is returned when PKCS#7 padding removal fails after a CBC
// decrypt, indicating a wrong key/IV or corrupted ciphertext. Per spec.md
// §4.4 this is a hard error for the segment, not a silent pass-through.
var ErrUnpad = errors.New("hls: invalid PKCS#7 padding")

// deriveIV builds the 16-byte IV spec.md §4.4 prescribes for segments whose
// #EXT-X-KEY omitted an explicit IV: eight zero bytes followed by the
// segment's playlist-order index as a big-endian 64-bit integer.
func deriveIV(index int) []byte {
	iv := make([]byte, 16)
	binary.BigEndian.PutUint64(iv[8:], uint64(index))
	return iv
}

// Decrypt applies AES-128-CBC decryption with PKCS#7 unpadding to body,
// using info.IV when present or the index-derived IV otherwise.
func Decrypt(body []byte, info *EncryptionInfo, index int) ([]byte, error) {
	if len(info.Key) != 16 {
		return nil, fmt.Errorf("hls: encryption key must be 16 bytes, got %d", len(info.Key))
	}
	iv := info.IV
	if iv == nil {
		iv = deriveIV(index)
	}

	block, err := aes.NewCipher(info.Key)
	if err != nil {
		return nil, fmt.Errorf("hls: %w", err)
	}
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("hls: ciphertext length %d is not a multiple of the block size", len(body))
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	return unpad(plain)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrUnpad
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, ErrUnpad
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, ErrUnpad
		}
	}
	return data[:len(data)-padding], nil
}
