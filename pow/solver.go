// Package pow implements the hash puzzle some faucet deployments gate
// funding requests behind. The server hands out a challenge string and a
// difficulty in bits; the client burns CPU finding a nonce whose candidate
// digest starts with that many zero bits and trades the nonce for a bearer
// token.
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"strconv"
	"time"

	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/settings"
)

const (
	// maxDifficultyBits is the most leading zero bits a sha256 digest can
	// carry.
	maxDifficultyBits = sha256.Size * 8

	// maxNonceDigits is the decimal width of the largest uint64 nonce,
	// sized so the candidate buffer never reallocates inside the search
	// loop.
	maxNonceDigits = 20
)

// Challenge is a server-issued hash puzzle: find a nonce such that
// sha256(challenge + ":" + nonce) has at least Difficulty leading zero bits.
type Challenge struct {
	Challenge  string    `json:"challenge"`
	Difficulty uint32    `json:"difficulty"`
	Algorithm  string    `json:"algo,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the challenge carries an expiry in the past.
// Challenges without an expiry never expire.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Solution pairs a challenge with the nonce that satisfies it.
type Solution struct {
	Challenge string `json:"challenge"`
	Nonce     uint64 `json:"nonce"`
}

// Solve searches nonces from zero for one whose candidate digest clears the
// challenge difficulty.
//
// The search is bounded by pow_maxIterations; running past the bound means
// the difficulty is unreasonable for this client and the error is not worth
// retrying. Every pow_yieldInterval attempts the loop checks ctx and yields
// the processor, so a solve sharing a scheduler with the event pumps stays
// polite without paying for a select on every hash.
//
// Parameters:
//   - ctx: context for cancellation, checked at yield boundaries
//   - tSettings: settings providing the iteration bound and yield interval
//   - challenge: the puzzle to solve
//
// Returns:
//   - *Solution: the satisfying nonce
//   - error: invalid challenge, cancellation, or search exhaustion
func Solve(ctx context.Context, tSettings *settings.Settings, challenge *Challenge) (*Solution, error) {
	if challenge == nil || challenge.Challenge == "" {
		return nil, errors.NewInvalidArgumentError("pow solve requires a challenge")
	}

	if challenge.Difficulty > maxDifficultyBits {
		return nil, errors.NewPowInvalidError("difficulty %d exceeds the %d bits in a sha256 digest",
			challenge.Difficulty, maxDifficultyBits)
	}

	maxIterations := tSettings.PoW.MaxIterations
	if maxIterations == 0 {
		maxIterations = 1
	}

	yieldInterval := tSettings.PoW.YieldInterval

	prefix := challenge.Challenge + ":"
	buf := make([]byte, len(prefix), len(prefix)+maxNonceDigits)
	copy(buf, prefix)

	for nonce := uint64(0); nonce < maxIterations; nonce++ {
		if yieldInterval > 0 && nonce > 0 && nonce%yieldInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.NewContextCanceledError("pow solve interrupted after %d attempts", nonce, err)
			}

			runtime.Gosched()
		}

		candidate := strconv.AppendUint(buf[:len(prefix)], nonce, 10)

		digest := sha256.Sum256(candidate)
		if meetsDifficulty(digest, challenge.Difficulty) {
			return &Solution{Challenge: challenge.Challenge, Nonce: nonce}, nil
		}
	}

	return nil, errors.NewPowExhaustedError("no nonce clears difficulty %d within %d attempts",
		challenge.Difficulty, maxIterations)
}

// Verify re-checks a solution locally without trusting the solver.
func Verify(challenge *Challenge, nonce uint64) bool {
	if challenge == nil || challenge.Difficulty > maxDifficultyBits {
		return false
	}

	digest := Digest(challenge.Challenge, nonce)

	return meetsDifficulty(digest, challenge.Difficulty)
}

// Digest hashes one candidate, the challenge text and the decimal nonce
// joined by a colon.
func Digest(challenge string, nonce uint64) [sha256.Size]byte {
	return sha256.Sum256([]byte(challenge + ":" + strconv.FormatUint(nonce, 10)))
}

// DigestHex is Digest rendered for display and logs.
func DigestHex(challenge string, nonce uint64) string {
	digest := Digest(challenge, nonce)
	return hex.EncodeToString(digest[:])
}

// meetsDifficulty reports whether the digest starts with at least bits zero
// bits: whole zero bytes first, then the high bits of the byte after them
// when the difficulty is not byte aligned.
func meetsDifficulty(digest [sha256.Size]byte, bits uint32) bool {
	zeroBytes := int(bits / 8)

	for i := 0; i < zeroBytes; i++ {
		if digest[i] != 0 {
			return false
		}
	}

	rem := bits % 8
	if rem == 0 {
		return true
	}

	mask := byte(0xff) << (8 - rem)

	return digest[zeroBytes]&mask == 0
}
