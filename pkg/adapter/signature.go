package adapter

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/tuckview/tuckview/pkg/errors"
)

// hashSizeLimit bounds content hashing to small files; beyond it the
// size and modification time alone form the fingerprint.
const hashSizeLimit = 1 << 20

// Signature is a cheap fingerprint of a file's content state, used to
// detect external modification between a read and a subsequent write.
type Signature struct {
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time"`
	Hash    uint64 `json:"hash"`
}

// FileSignature computes the signature of the file at path.
func FileSignature(path string) (Signature, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Signature{}, errors.Wrap(err, errors.ErrorTypeIO, "failed to stat file").
			WithDetail("path", path)
	}

	sig := Signature{
		Size:    fi.Size(),
		ModTime: fi.ModTime().UnixNano(),
	}

	if fi.Size() <= hashSizeLimit {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path was validated at open
		if err != nil {
			return Signature{}, errors.Wrap(err, errors.ErrorTypeIO, "failed to hash file").
				WithDetail("path", path)
		}
		sig.Hash = xxhash.Sum64(data)
	}

	return sig, nil
}

// Equal reports whether two signatures describe the same content state.
func (s Signature) Equal(o Signature) bool {
	return s == o
}

// Token encodes the signature as an opaque version token for callers.
func (s Signature) Token() string {
	return fmt.Sprintf("%x.%x.%x", s.Size, s.ModTime, s.Hash)
}

// ParseToken decodes a version token produced by Token.
func ParseToken(token string) (Signature, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Signature{}, errors.New(errors.ErrorTypeValidation, "malformed version token")
	}

	size, err1 := strconv.ParseInt(parts[0], 16, 64)
	mod, err2 := strconv.ParseInt(parts[1], 16, 64)
	hash, err3 := strconv.ParseUint(parts[2], 16, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Signature{}, errors.New(errors.ErrorTypeValidation, "malformed version token")
	}

	return Signature{Size: size, ModTime: mod, Hash: hash}, nil
}
