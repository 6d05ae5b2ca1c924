package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	// AliasAlphabet leaves out 0, O, 1 and I. Its 32 symbols let a random
	// byte be reduced with a mask and no bias.
	AliasAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	AliasLength   = 6
	// MaxAliasAttempts bounds retries after id collisions
	MaxAliasAttempts = 10
)

// AliasGenerator produces candidate wager ids
type AliasGenerator interface {
	NewAlias() (string, error)
}

// RandomAliasGenerator draws aliases from a random source
type RandomAliasGenerator struct {
	source io.Reader
}

// NewRandomAliasGenerator uses crypto/rand when source is nil
func NewRandomAliasGenerator(source io.Reader) *RandomAliasGenerator {
	if source == nil {
		source = rand.Reader
	}
	return &RandomAliasGenerator{source: source}
}

func (g *RandomAliasGenerator) NewAlias() (string, error) {
	buf := make([]byte, AliasLength)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = AliasAlphabet[b&31]
	}
	return string(buf), nil
}

// NormalizeAlias upper-cases and trims a user supplied wager id
func NormalizeAlias(alias string) string {
	return strings.ToUpper(strings.TrimSpace(alias))
}

// IsValidAlias checks length and alphabet
func IsValidAlias(alias string) bool {
	if len(alias) != AliasLength {
		return false
	}
	for _, r := range alias {
		if !strings.ContainsRune(AliasAlphabet, r) {
			return false
		}
	}
	return true
}
