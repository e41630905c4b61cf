package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2Params pin the Argon2id cost parameters used for new hashes. Stored
// hashes carry their own parameters, so these can be raised without breaking
// verification of existing passwords.
type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

var defaultArgon2 = argon2Params{
	time:    1,
	memory:  64 * 1024,
	threads: 4,
	keyLen:  32,
	saltLen: 16,
}

// HashPassword derives an Argon2id hash from the plaintext password.
// The encoded form carries algorithm, version, costs, salt, and digest.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	p := defaultArgon2

	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)

	return fmt.Sprintf("argon2id$v=%d$t=%d$m=%d$p=%d$%s$%s",
		argon2.Version,
		p.time,
		p.memory,
		p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// VerifyPassword compares a plaintext password against a stored Argon2id hash
// in constant time. A malformed stored hash is an error; a mismatched password
// is (false, nil).
func VerifyPassword(password, encodedHash string) (bool, error) {
	p, salt, digest, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}
	actual := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(digest)))
	return subtle.ConstantTimeCompare(actual, digest) == 1, nil
}

func decodeArgon2Hash(encoded string) (argon2Params, []byte, []byte, error) {
	var p argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 7 {
		return p, nil, nil, errors.New("parse argon hash: unexpected format")
	}
	if parts[0] != "argon2id" {
		return p, nil, nil, errors.New("parse argon hash: unsupported algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[1], "v="))
	if err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("parse argon hash: unsupported version %q", parts[1])
	}

	timeCost, err := strconv.ParseUint(strings.TrimPrefix(parts[2], "t="), 10, 32)
	if err != nil {
		return p, nil, nil, fmt.Errorf("parse argon hash time: %w", err)
	}
	memCost, err := strconv.ParseUint(strings.TrimPrefix(parts[3], "m="), 10, 32)
	if err != nil {
		return p, nil, nil, fmt.Errorf("parse argon hash memory: %w", err)
	}
	threads, err := strconv.ParseUint(strings.TrimPrefix(parts[4], "p="), 10, 8)
	if err != nil {
		return p, nil, nil, fmt.Errorf("parse argon hash threads: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[6])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decode digest: %w", err)
	}

	p.time = uint32(timeCost)
	p.memory = uint32(memCost)
	p.threads = uint8(threads)
	return p, salt, digest, nil
}
