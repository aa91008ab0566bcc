package referral

import (
	"math/rand"
	"strings"
	"sync"
)

const (
	// CodePrefix is the fixed prefix every referral code carries.
	CodePrefix = "FRK"

	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeSuffixLen = 5
)

// Generator produces referral codes from an injected random source so tests
// can run deterministically.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

// Code returns a fresh candidate code. Uniqueness is the caller's problem:
// candidates must be checked against existing codes and regenerated on
// collision.
func (g *Generator) Code() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(len(CodePrefix) + codeSuffixLen)
	b.WriteString(CodePrefix)
	for i := 0; i < codeSuffixLen; i++ {
		b.WriteByte(codeAlphabet[g.rnd.Intn(len(codeAlphabet))])
	}
	return b.String()
}

// ValidFormat reports whether code has the expected prefix and length with an
// alphanumeric suffix.
func ValidFormat(code string) bool {
	if len(code) != len(CodePrefix)+codeSuffixLen {
		return false
	}
	if !strings.HasPrefix(code, CodePrefix) {
		return false
	}
	for i := len(CodePrefix); i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
