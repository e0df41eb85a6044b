package bundle

import "log/slog"

// BuilderOption configures a Builder.
type BuilderOption func(*builderConfig)

type builderConfig struct {
	keys        keyConfig
	compression Compression
	level       Level
	inMemory    bool
	logger      *slog.Logger
	progress    ProgressFunc
}

// BuildWithPassword enables the cipher layer with key material derived from
// password. A blank password makes NewBuilder fail with ErrEmptyPassword.
func BuildWithPassword(password string) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.keys.password = password
		cfg.keys.passwordSet = true
	}
}

// BuildWithIVSeed derives the IV from seed instead of the password.
// It has no effect without BuildWithPassword.
func BuildWithIVSeed(seed string) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.keys.ivSeed = seed
	}
}

// BuildWithCipher replaces the AES-256-CBC cipher provider.
func BuildWithCipher(p CipherProvider) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.keys.cipher = p
	}
}

// BuildWithCompression sets the compressor. The default is CompressionZstd.
func BuildWithCompression(c Compression) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.compression = c
	}
}

// BuildWithLevel sets the compression level. The default is LevelDefault.
func BuildWithLevel(l Level) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.level = l
	}
}

// BuildWithInMemory stages the whole container in memory during Commit and
// writes it to the destination in one call. By default entries stream
// straight to the destination file.
func BuildWithInMemory(enabled bool) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.inMemory = enabled
	}
}

// BuildWithLogger sets the logger for build operations.
// If not set, logging is disabled.
func BuildWithLogger(logger *slog.Logger) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.logger = logger
	}
}

// BuildWithProgress sets a callback to receive progress updates.
func BuildWithProgress(fn ProgressFunc) BuilderOption {
	return func(cfg *builderConfig) {
		cfg.progress = fn
	}
}
