// Package password derives and verifies stored password digests.
//
// Every digest except the legacy one is self-describing, so the scheme used
// for new accounts can change without invalidating hashes already stored.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Scheme names a digest format for new hashes
type Scheme string

const (
	SchemeArgon2id    Scheme = "argon2id"
	SchemeBcrypt      Scheme = "bcrypt"
	SchemeSHA512Crypt Scheme = "sha512-crypt"

	// SchemeSHA256 is the unsalted hex digest written by the first version
	// of the service. Only use it when old clients must compare hashes.
	SchemeSHA256 Scheme = "sha256"
)

// bcrypt ignores everything past this many bytes
const bcryptMaxBytes = 72

var (
	ErrUnknownScheme   = errors.New("unknown password scheme")
	ErrUnsupportedHash = errors.New("unsupported password hash")
	// ErrPasswordTooLong is returned by Hash when the scheme cannot take the
	// whole password.
	ErrPasswordTooLong = errors.New("password too long for hash scheme")
)

// Argon2Params tunes argon2id key derivation
type Argon2Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen int
	KeyLen  uint32
}

// DefaultArgon2Params follows the RFC 9106 second recommended option.
var DefaultArgon2Params = Argon2Params{
	Memory:  64 * 1024,
	Time:    3,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Hasher produces digests in one scheme and verifies digests in any known one
type Hasher struct {
	scheme     Scheme
	argon      Argon2Params
	bcryptCost int
}

// Option configures a Hasher
type Option func(*Hasher)

// WithArgon2Params overrides the argon2id parameters used for new hashes
func WithArgon2Params(p Argon2Params) Option {
	return func(h *Hasher) { h.argon = p }
}

// WithBcryptCost overrides the bcrypt cost used for new hashes
func WithBcryptCost(cost int) Option {
	return func(h *Hasher) { h.bcryptCost = cost }
}

// ParseScheme converts a configuration value to a Scheme
func ParseScheme(s string) (Scheme, error) {
	switch sc := Scheme(strings.ToLower(strings.TrimSpace(s))); sc {
	case SchemeArgon2id, SchemeBcrypt, SchemeSHA512Crypt, SchemeSHA256:
		return sc, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScheme, s)
}

// NewHasher creates a Hasher writing new digests in scheme
func NewHasher(scheme Scheme, opts ...Option) (*Hasher, error) {
	if _, err := ParseScheme(string(scheme)); err != nil {
		return nil, err
	}
	h := &Hasher{
		scheme:     scheme,
		argon:      DefaultArgon2Params,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Scheme reports the scheme used for new digests
func (h *Hasher) Scheme() Scheme {
	return h.scheme
}

// Digest returns the hex-encoded SHA-256 of the UTF-8 password bytes.
// Deterministic and unsalted.
func Digest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Hash derives a new digest for password in the configured scheme
func (h *Hasher) Hash(password string) (string, error) {
	switch h.scheme {
	case SchemeArgon2id:
		return h.hashArgon2id(password)
	case SchemeBcrypt:
		if len(password) > bcryptMaxBytes {
			return "", fmt.Errorf("%w: bcrypt takes at most %d bytes", ErrPasswordTooLong, bcryptMaxBytes)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		return string(hashed), nil
	case SchemeSHA512Crypt:
		hashed, err := sha512_crypt.New().Generate([]byte(password), nil)
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		return hashed, nil
	case SchemeSHA256:
		return Digest(password), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScheme, h.scheme)
}

// Verify reports whether password matches the stored digest.
// The format is detected from the digest itself.
func (h *Hasher) Verify(hashed, password string) (bool, error) {
	switch {
	case strings.HasPrefix(hashed, "$argon2id$"):
		return verifyArgon2id(hashed, password)
	case strings.HasPrefix(hashed, "$2a$"), strings.HasPrefix(hashed, "$2b$"), strings.HasPrefix(hashed, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to verify bcrypt hash: %w", err)
		}
		return true, nil
	case strings.HasPrefix(hashed, "$6$"):
		err := sha512_crypt.New().Verify(hashed, []byte(password))
		if errors.Is(err, crypt.ErrKeyMismatch) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to verify sha512-crypt hash: %w", err)
		}
		return true, nil
	case isLegacyDigest(hashed):
		return subtle.ConstantTimeCompare([]byte(hashed), []byte(Digest(password))) == 1, nil
	}
	return false, ErrUnsupportedHash
}

func isLegacyDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func (h *Hasher) hashArgon2id(password string) (string, error) {
	salt := make([]byte, h.argon.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.argon.Time, h.argon.Memory, h.argon.Threads, h.argon.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.argon.Memory, h.argon.Time, h.argon.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
func verifyArgon2id(hashed, password string) (bool, error) {
	parts := strings.Split(hashed, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("%w: malformed argon2id hash", ErrUnsupportedHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, fmt.Errorf("%w: argon2 version %q", ErrUnsupportedHash, parts[2])
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil || p.Time == 0 || p.Threads == 0 {
		return false, fmt.Errorf("%w: argon2 parameters %q", ErrUnsupportedHash, parts[3])
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: argon2 salt: %v", ErrUnsupportedHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, fmt.Errorf("%w: argon2 key", ErrUnsupportedHash)
	}

	got := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
