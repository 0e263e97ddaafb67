package security

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Params controls new password records. Stored records carry their own
// parameters, so changing these never invalidates existing passwords.
type PBKDF2Params struct {
	Iterations int
	KeyLen     int
	SaltLen    int
	Digest     string
}

var DefaultPBKDF2Params = PBKDF2Params{
	Iterations: 10000,
	KeyLen:     64,
	SaltLen:    16,
	Digest:     "sha512",
}

const (
	maxIterations = 10_000_000
	maxKeyLen     = 1024
	recordFields  = 5
)

var digests = map[string]func() hash.Hash{
	"sha512": sha512.New,
	"sha256": sha256.New,
	"sha1":   sha1.New,
}

type PasswordHasher struct {
	params PBKDF2Params
}

func NewPasswordHasher(params PBKDF2Params) (*PasswordHasher, error) {
	if _, ok := digests[params.Digest]; !ok {
		return nil, fmt.Errorf("unsupported digest %q", params.Digest)
	}
	if params.Iterations <= 0 || params.Iterations > maxIterations {
		return nil, fmt.Errorf("iterations out of range: %d", params.Iterations)
	}
	if params.KeyLen <= 0 || params.KeyLen > maxKeyLen || params.SaltLen <= 0 {
		return nil, fmt.Errorf("invalid key or salt length")
	}
	return &PasswordHasher{params: params}, nil
}

// Hash returns a record of the form salt:iterations:keylen:digest:key with
// salt and key hex encoded.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, h.params.Iterations, h.params.KeyLen, digests[h.params.Digest])

	return strings.Join([]string{
		hex.EncodeToString(salt),
		strconv.Itoa(h.params.Iterations),
		strconv.Itoa(h.params.KeyLen),
		h.params.Digest,
		hex.EncodeToString(key),
	}, ":"), nil
}

// Verify reports whether password matches record. Malformed records never
// match.
func (h *PasswordHasher) Verify(password, record string) bool {
	return VerifyPassword(password, record)
}

func VerifyPassword(password, record string) bool {
	parts := strings.Split(record, ":")
	if len(parts) != recordFields {
		return false
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil || len(salt) == 0 {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 || iterations > maxIterations {
		return false
	}
	keyLen, err := strconv.Atoi(parts[2])
	if err != nil || keyLen <= 0 || keyLen > maxKeyLen {
		return false
	}
	digest, ok := digests[parts[3]]
	if !ok {
		return false
	}
	stored, err := hex.DecodeString(parts[4])
	if err != nil || len(stored) != keyLen {
		return false
	}

	computed := pbkdf2.Key([]byte(password), salt, iterations, keyLen, digest)
	return subtle.ConstantTimeCompare(stored, computed) == 1
}
