package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainRuleSet separates rule-set fingerprints from any other hash.
const DomainRuleSet = "subsume/ruleset/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RuleSetHash fingerprints rule source text. Sources that differ only in
// Unicode normalization hash identically.
func RuleSetHash(source []byte) string {
	return hashWithDomain(DomainRuleSet, []byte(NormalizeName(string(source))))
}
