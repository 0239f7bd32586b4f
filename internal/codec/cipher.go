package codec

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// Cipher порождает ключевой поток заданной длины из nonce блока.
// Реализация подменяема: инварианты кодека (размер, дополнение, обрезка)
// не зависят от стойкости шифра.
type Cipher interface {
	Keystream(nonce uint64, n int) ([]byte, error)
}

// NonceCipher — референсная схема хранимого формата: каждый байт потока
// равен младшему байту nonce. Поток зависит только от byte(nonce), то есть
// nonce, совпадающие по младшему байту, дают одинаковый шифртекст.
// Конфиденциальности не обеспечивает; для реальных развёртываний
// используется ChaChaCipher.
type NonceCipher struct{}

// Keystream возвращает n повторений младшего байта nonce.
func (NonceCipher) Keystream(nonce uint64, n int) ([]byte, error) {
	ks := make([]byte, n)
	b := byte(nonce)
	for i := range ks {
		ks[i] = b
	}
	return ks, nil
}

// ChaChaCipher — криптографически стойкий потоковый шифр (ChaCha20).
// Nonce блока укладывается в первые 8 байт 12-байтового nonce ChaCha (LE).
type ChaChaCipher struct {
	key [chacha20.KeySize]byte
}

// NewChaChaCipher создает шифр из 32-байтового ключа.
func NewChaChaCipher(key []byte) (*ChaChaCipher, error) {
	if len(key) != chacha20.KeySize {
		return nil, fmt.Errorf("chacha20 key must be %d bytes, got %d", chacha20.KeySize, len(key))
	}
	c := &ChaChaCipher{}
	copy(c.key[:], key)
	return c, nil
}

// Keystream возвращает n байт потока ChaCha20 для данного nonce.
func (c *ChaChaCipher) Keystream(nonce uint64, n int) ([]byte, error) {
	var iv [chacha20.NonceSize]byte
	binary.LittleEndian.PutUint64(iv[:8], nonce)

	stream, err := chacha20.NewUnauthenticatedCipher(c.key[:], iv[:])
	if err != nil {
		return nil, fmt.Errorf("chacha20 init: %w", err)
	}

	ks := make([]byte, n)
	stream.XORKeyStream(ks, ks)
	return ks, nil
}
