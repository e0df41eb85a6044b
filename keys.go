package bundle

import (
	"github.com/meigma/bundle/internal/keyderiv"
	"github.com/meigma/bundle/internal/stream"
)

// keyConfig holds the cipher settings shared by builders and readers.
type keyConfig struct {
	password    string
	passwordSet bool
	ivSeed      string
	cipher      CipherProvider
}

// streamConfig derives key material once and returns the codec config.
// Without a password the cipher layer is disabled.
func (k *keyConfig) streamConfig() (stream.Config, error) {
	cfg := stream.Config{Cipher: k.cipher}
	if !k.passwordSet {
		return cfg, nil
	}
	m, err := keyderiv.Derive(k.password, k.ivSeed)
	if err != nil {
		return stream.Config{}, err
	}
	cfg.Key = m.Key[:]
	cfg.IV = m.IV[:]
	return cfg, nil
}
