package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName puts an IRI or entity name in the form used as its store key.
// Names are NFC normalized and trimmed, so visually identical spellings from
// different sources abbreviate to the same term.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// QualifyName expands a bare entity name against base. Names that already
// look like IRIs are returned normalized but otherwise untouched.
func QualifyName(base, name string) string {
	name = NormalizeName(name)
	if base == "" || strings.Contains(name, "://") || strings.HasPrefix(name, "urn:") {
		return name
	}
	if strings.HasSuffix(base, "#") || strings.HasSuffix(base, "/") {
		return NormalizeName(base) + name
	}
	return NormalizeName(base) + "#" + name
}

// LocalName returns the fragment or last path segment of an IRI.
func LocalName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/:"); i >= 0 && i < len(iri)-1 {
		return iri[i+1:]
	}
	return iri
}
