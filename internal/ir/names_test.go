package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName_NFC(t *testing.T) {
	// "é" as e + combining acute accent vs the precomposed rune.
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"
	assert.Equal(t, composed, NormalizeName(decomposed))
	assert.Equal(t, NormalizeName(composed), NormalizeName("  "+decomposed+"\n"))
}

func TestQualifyName(t *testing.T) {
	tests := []struct {
		base, name, want string
	}{
		{"http://ex.org/onto", "Pizza", "http://ex.org/onto#Pizza"},
		{"http://ex.org/onto#", "Pizza", "http://ex.org/onto#Pizza"},
		{"http://ex.org/onto/", "Pizza", "http://ex.org/onto/Pizza"},
		{"http://ex.org/onto", "http://other.org/x#Y", "http://other.org/x#Y"},
		{"", "Pizza", "Pizza"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualifyName(tt.base, tt.name))
	}
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "Pizza", LocalName("http://ex.org/onto#Pizza"))
	assert.Equal(t, "Pizza", LocalName("http://ex.org/onto/Pizza"))
	assert.Equal(t, "plain", LocalName("plain"))
}

func TestRuleSetHash(t *testing.T) {
	a := RuleSetHash([]byte("STAGE \"main\"\n"))
	b := RuleSetHash([]byte("STAGE \"main\"\n"))
	c := RuleSetHash([]byte("STAGE \"other\"\n"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
