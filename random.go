package auth

import (
	"crypto/rand"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// ActivationHashLength is the number of symbols in an activation secret
	ActivationHashLength = 128
)

// ActivationHashSource is the alphabet activation secrets are drawn from
var ActivationHashSource = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789")

// GenerateRandomHash returns length symbols, each drawn independently and
// uniformly from source.
func GenerateRandomHash(source []byte, length int) (string, error) {
	if len(source) == 0 {
		return "", goerrors.New("random hash source must not be empty", goerrors.CategoryBadInput)
	}
	if length <= 0 {
		return "", goerrors.New("random hash length must be positive", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"length": length})
	}

	upper := big.NewInt(int64(len(source)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, upper)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random source")
		}
		b[i] = source[n.Int64()]
	}
	return string(b), nil
}

// SecretGenerator produces activation secrets. Swappable in tests.
type SecretGenerator func() (string, error)

// DefaultSecretGenerator draws ActivationHashLength symbols from ActivationHashSource
func DefaultSecretGenerator() (string, error) {
	return GenerateRandomHash(ActivationHashSource, ActivationHashLength)
}
