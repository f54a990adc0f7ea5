// Package ident provides identifier quoting and deterministic name hashing
// for mapping logical domain/table names onto Cassandra keyspace identifiers.
package ident

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
)

// Quote wraps a CQL identifier in double quotes, doubling any internal quote.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// HashName reduces a name to a short, URL/identifier-safe hash: SHA-1,
// base64, with '+'/'/' swapped for '_' and '=' padding stripped.
func HashName(name string) string {
	sum := sha1.Sum([]byte(name))
	enc := base64.StdEncoding.EncodeToString(sum[:])
	enc = strings.NewReplacer("+", "_", "/", "_").Replace(enc)
	return strings.TrimRight(enc, "=")
}

// ValidPrefix returns the longest leading run of [A-Za-z0-9_] in s.
func ValidPrefix(s string) string {
	for i, r := range s {
		if !isWordByte(byte(r)) {
			return s[:i]
		}
	}
	return s
}

func isWordByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_':
		return true
	}
	return false
}

func isValidKeyWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return true
}

// MakeValidKey produces an identifier of at most n characters that is safe to
// embed in a keyspace name. name is first escaped ('_' becomes "__", '.'
// becomes '_'); if the escaped form is [A-Za-z0-9_]+ and at most n long it is
// returned as is; otherwise a truncated valid-prefix is padded out
// to length n with characters from HashName so that distinct long or
// non-alphanumeric names still map to distinct, bounded identifiers.
func MakeValidKey(name string, n int) string {
	escaped := strings.ReplaceAll(name, "_", "__")
	escaped = strings.ReplaceAll(escaped, ".", "_")

	if isValidKeyWord(escaped) && len(escaped) <= n {
		return escaped
	}

	prefixLen := (2 * n) / 3
	prefix := ValidPrefix(escaped)
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}

	need := n - len(prefix)
	if need <= 0 {
		return prefix[:n]
	}
	h := HashName(name)
	for len(h) < need {
		h += HashName(h)
	}
	return prefix + h[:need]
}

// KeyspaceName derives the physical keyspace name for a reverse-domain
// prefix and logical table name. The result is at most 48 characters,
// starts with a letter, and contains the literal separator "_T_".
func KeyspaceName(reverseDomain, table string) string {
	const maxLen = 48
	const sepLen = 3 // len("_T_")

	domainBudget := maxLen - len(table) - sepLen
	if domainBudget < 26 {
		domainBudget = 26
	}
	domainPart := MakeValidKey(reverseDomain, domainBudget)

	tableBudget := maxLen - len(domainPart) - sepLen
	tablePart := MakeValidKey(table, tableBudget)

	return domainPart + "_T_" + tablePart
}

// ReverseDomain reverses a dot-separated domain ("a.b.c" -> "c.b.a"),
// lower-casing it, for use as a keyspace-naming prefix.
func ReverseDomain(domain string) string {
	domain = strings.ToLower(domain)
	parts := strings.Split(domain, ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}
