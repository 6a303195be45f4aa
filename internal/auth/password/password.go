// Package password provides one-way adaptive hashing for stored credentials.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params tune the Argon2id cost. DefaultParams match interactive login
// latency budgets on current hardware.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

var DefaultParams = Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

type Hasher struct {
	params Params
}

func NewHasher(params Params) *Hasher {
	if params.Time == 0 {
		params = DefaultParams
	}
	return &Hasher{params: params}
}

// Hash returns a PHC-encoded Argon2id hash of the password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify reports whether password matches the encoded hash. Cost parameters
// come from the encoded string, so older hashes keep verifying after a
// params change.
func (h *Hasher) Verify(password, encoded string) bool {
	params, salt, sum, ok := decode(encoded)
	if !ok {
		return false
	}
	check := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(sum)))
	return subtle.ConstantTimeCompare(sum, check) == 1
}

func decode(encoded string) (Params, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Params{}, nil, nil, false
	}

	fields := strings.Split(parts[3], ",")
	if len(fields) != 3 {
		return Params{}, nil, nil, false
	}
	memory, ok1 := parseUint32Field(fields[0], "m=")
	timeCost, ok2 := parseUint32Field(fields[1], "t=")
	threads, ok3 := parseUint8Field(fields[2], "p=")
	if !ok1 || !ok2 || !ok3 {
		return Params{}, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, false
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, false
	}

	return Params{Time: timeCost, Memory: memory, Threads: threads}, salt, sum, true
}

func parseUint32Field(raw, prefix string) (uint32, bool) {
	value, ok := strings.CutPrefix(raw, prefix)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(parsed), true
}

func parseUint8Field(raw, prefix string) (uint8, bool) {
	value, ok := strings.CutPrefix(raw, prefix)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(parsed), true
}
