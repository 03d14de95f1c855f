package lobby

import (
	crand "crypto/rand"
	"fmt"
	"strings"
)

// codeAlphabet is the 36-character alphabet used for private lobby codes.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of a private lobby code.
const CodeLength = 6

// RandSource interface for dependency injection of randomness.
type RandSource interface {
	IntN(n int) int
}

// CodeGenerator produces lobby codes with configurable randomness.
type CodeGenerator struct {
	randSource RandSource
}

// NewCodeGenerator creates a generator; a nil RandSource uses crypto/rand.
func NewCodeGenerator(randSource RandSource) *CodeGenerator {
	return &CodeGenerator{randSource: randSource}
}

// Generate creates a 6-character code drawn uniformly from A-Z0-9.
func (g *CodeGenerator) Generate() string {
	var sb strings.Builder
	sb.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		sb.WriteByte(codeAlphabet[g.intN(len(codeAlphabet))])
	}
	return sb.String()
}

func (g *CodeGenerator) intN(n int) int {
	if g.randSource != nil {
		return g.randSource.IntN(n)
	}
	// Rejection sampling over crypto/rand to stay uniform.
	max := 256 - (256 % n)
	var b [1]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			panic("failed to generate random code byte: " + err.Error())
		}
		if int(b[0]) < max {
			return int(b[0]) % n
		}
	}
}

// ValidateCode checks that a code is a well-formed private lobby code.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return fmt.Errorf("lobby code must be exactly %d characters, got %d", CodeLength, len(code))
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return fmt.Errorf("invalid character %c at position %d", code[i], i)
		}
	}
	return nil
}
