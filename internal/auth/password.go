package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/authvault/authvault/internal/config"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	saltBytes = 16
	keyLength = 32
)

// argon2Params holds the tunable Argon2id cost parameters.
type argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// Hasher is the password hashing service. Argon2id is the primary algorithm;
// bcrypt is the fallback. Every hash gets a fresh per-account salt that is
// concatenated into the hashed input in addition to the algorithm's own
// internal salt. Stored hashes are self-describing: the verifying algorithm
// is picked from the hash prefix, never from exception-driven control flow.
type Hasher struct {
	params     argon2Params
	bcryptCost int
}

// NewHasher creates a Hasher from the configured cost parameters.
func NewHasher(cfg config.PasswordConfig) *Hasher {
	params := argon2Params{
		Memory:      cfg.Argon2Memory,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
		KeyLength:   keyLength,
	}
	if params.Memory == 0 {
		params.Memory = 64 * 1024
	}
	if params.Iterations == 0 {
		params.Iterations = 3
	}
	if params.Parallelism == 0 {
		params.Parallelism = 1
	}

	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}

	return &Hasher{params: params, bcryptCost: cost}
}

// Hash hashes the password with a fresh random salt and returns the encoded
// hash and the salt. The salt must be persisted alongside the hash. If the
// primary algorithm fails unexpectedly the fallback is used; fallback hashes
// verify normally and are reported by NeedsRehash so they are upgraded on
// the next successful login.
func (h *Hasher) Hash(password string) (string, string, error) {
	salt, err := generateSalt()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	encoded, err := h.hashArgon2(password + salt)
	if err == nil {
		return encoded, salt, nil
	}

	// Fallback to bcrypt
	hashed, bErr := bcrypt.GenerateFromPassword([]byte(password+salt), h.bcryptCost)
	if bErr != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", bErr)
	}
	return string(hashed), salt, nil
}

// Verify reports whether the password matches the stored hash. The verifying
// algorithm is chosen from the hash's prefix tag. Malformed hashes and
// verification errors of any kind report false, never an error.
func (h *Hasher) Verify(password, encodedHash, salt string) bool {
	salted := password + salt

	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		params, argonSalt, hash, err := decodeArgon2Hash(encodedHash)
		if err != nil {
			return false
		}
		other := argon2.IDKey([]byte(salted), argonSalt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
		return subtle.ConstantTimeCompare(hash, other) == 1
	case strings.HasPrefix(encodedHash, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(salted)) == nil
	default:
		return false
	}
}

// NeedsRehash reports whether the stored hash should be regenerated: any
// fallback bcrypt hash, any hash that cannot be decoded, and any Argon2id
// hash whose encoded cost parameters fall below the configured ones.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	if !strings.HasPrefix(encodedHash, "$argon2id$") {
		return true
	}
	params, _, _, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return true
	}
	return params.Memory < h.params.Memory ||
		params.Iterations < h.params.Iterations ||
		params.Parallelism < h.params.Parallelism
}

// hashArgon2 encodes the salted password in the standard Argon2 string format.
func (h *Hasher) hashArgon2(salted string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate argon2 salt: %w", err)
	}

	hash := argon2.IDKey([]byte(salted), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism, b64Salt, b64Hash), nil
}

func generateSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// decodeArgon2Hash extracts the parameters, salt, and hash from an encoded
// Argon2id hash string.
func decodeArgon2Hash(encodedHash string) (*argon2Params, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, nil, fmt.Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("unsupported version: %d", version)
	}

	var params argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decode hash: %w", err)
	}
	params.KeyLength = uint32(len(hash))

	return &params, salt, hash, nil
}
