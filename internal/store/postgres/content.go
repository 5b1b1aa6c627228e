package postgres

import (
	"github.com/chirino/memory-mcp/internal/memerr"
	"github.com/chirino/memory-mcp/internal/store"
)

// DecodedContent returns a memory's plaintext content, decrypting it first
// if the memory is marked encrypted. A memory marked encrypted with no
// sealer configured, or whose ciphertext fails to authenticate under the
// configured key, yields memerr.ErrDecryptionFailure.
func (s *Store) DecodedContent(m *store.Memory) (string, error) {
	if !m.Enc {
		return string(m.Content), nil
	}
	if s.sealer == nil || !s.sealer.Enabled() {
		return "", memerr.ErrDecryptionFailure
	}
	plain, err := s.sealer.Open(m.Content)
	if err != nil {
		return "", memerr.ErrDecryptionFailure
	}
	return string(plain), nil
}

// EncryptionEnabled reports whether the store was configured with an active
// content sealer.
func (s *Store) EncryptionEnabled() bool {
	return s.sealer != nil && s.sealer.Enabled()
}
