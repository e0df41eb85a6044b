package bundle

import "log/slog"

// ReaderOption configures a Reader.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	keys             keyConfig
	maxDecoderMemory uint64
	lowMemory        bool
	logger           *slog.Logger
	progress         ProgressFunc
}

// ReadWithPassword enables the cipher layer with key material derived from
// password. A blank password makes NewReader fail with ErrEmptyPassword.
func ReadWithPassword(password string) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.keys.password = password
		cfg.keys.passwordSet = true
	}
}

// ReadWithIVSeed derives the IV from seed instead of the password.
// It must match the seed the container was built with.
func ReadWithIVSeed(seed string) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.keys.ivSeed = seed
	}
}

// ReadWithCipher replaces the AES-256-CBC cipher provider.
func ReadWithCipher(p CipherProvider) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.keys.cipher = p
	}
}

// ReadWithMaxDecoderMemory limits the memory the zstd decoder may allocate.
// Zero uses the default limit.
func ReadWithMaxDecoderMemory(limit uint64) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.maxDecoderMemory = limit
	}
}

// ReadWithLowMemory makes the zstd decoder use smaller buffers at some cost
// in speed.
func ReadWithLowMemory(enabled bool) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.lowMemory = enabled
	}
}

// ReadWithLogger sets the logger for read operations.
// If not set, logging is disabled.
func ReadWithLogger(logger *slog.Logger) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.logger = logger
	}
}

// ReadWithProgress sets a callback to receive progress updates.
func ReadWithProgress(fn ProgressFunc) ReaderOption {
	return func(cfg *readerConfig) {
		cfg.progress = fn
	}
}
