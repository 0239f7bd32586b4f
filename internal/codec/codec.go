package codec

import (
	"bytes"
	"errors"
	"fmt"
)

// BlockSize — фиксированный размер зашифрованного блока в байтах.
// Кодек не принимает шифртекст другой длины: дополнение и обрезка —
// единственные механизмы подгонки размера.
const BlockSize = 64

var (
	// ErrContentTooLong возвращается, когда открытый текст не помещается в блок.
	ErrContentTooLong = errors.New("content exceeds block size")

	// ErrInvalidBlockSize возвращается при попытке декодировать блок неверной длины.
	ErrInvalidBlockSize = errors.New("invalid ciphertext block size")
)

// Codec кодирует и декодирует блоки фиксированного размера с заданным шифром.
type Codec struct {
	cipher Cipher
}

// New создает кодек с указанным шифром.
func New(cipher Cipher) *Codec {
	return &Codec{cipher: cipher}
}

// NewDefault создает кодек с референсным шифром хранимого формата.
func NewDefault() *Codec {
	return New(NonceCipher{})
}

// Encode дополняет открытый текст нулями до BlockSize и накладывает
// ключевой поток. Открытый текст не должен легитимно заканчиваться
// нулевым байтом: Decode обрезает хвостовые нули дополнения.
func (c *Codec) Encode(plaintext []byte, nonce uint64) ([]byte, error) {
	if len(plaintext) > BlockSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrContentTooLong, len(plaintext))
	}

	ks, err := c.cipher.Keystream(nonce, BlockSize)
	if err != nil {
		return nil, fmt.Errorf("keystream: %w", err)
	}

	block := make([]byte, BlockSize)
	copy(block, plaintext)
	for i := range block {
		block[i] ^= ks[i]
	}
	return block, nil
}

// Decode снимает ключевой поток и обрезает хвостовые нулевые байты
// дополнения. Точная инверсия Encode при том же nonce.
func (c *Codec) Decode(block []byte, nonce uint64) ([]byte, error) {
	if len(block) != BlockSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidBlockSize, len(block), BlockSize)
	}

	ks, err := c.cipher.Keystream(nonce, BlockSize)
	if err != nil {
		return nil, fmt.Errorf("keystream: %w", err)
	}

	plain := make([]byte, BlockSize)
	for i := range plain {
		plain[i] = block[i] ^ ks[i]
	}
	return bytes.TrimRight(plain, "\x00"), nil
}
