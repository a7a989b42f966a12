package utils

import (
	"strings"
)

// ParsedAddress is the result of parsing a From header value.
type ParsedAddress struct {
	Name    string
	Address string
}

// ParseAddress accepts either "local@host" or `Name <local@host>` and returns
// the display name (outer quotes stripped) and the bare address.
func ParseAddress(raw string) ParsedAddress {
	raw = strings.TrimSpace(raw)

	start := strings.LastIndex(raw, "<")
	end := strings.LastIndex(raw, ">")
	if start >= 0 && end > start {
		name := strings.TrimSpace(raw[:start])
		name = strings.Trim(name, `"'`)
		return ParsedAddress{
			Name:    name,
			Address: strings.TrimSpace(raw[start+1 : end]),
		}
	}
	return ParsedAddress{Address: raw}
}

// ExtractDomainFromEmail returns the lowercased right-hand side of an address,
// tolerating a "Name <addr>" wrapper. Empty string when the input has no
// single @.
func ExtractDomainFromEmail(email string) string {
	addr := ParseAddress(email).Address
	parts := strings.Split(addr, "@")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// NormalizeEmail lower-trims an address for suppression and comparison use.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeMessageID strips the angle brackets from an RFC Message-Id.
func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	return strings.TrimSuffix(messageID, ">")
}

// UniqueEmails preserves order while dropping duplicates.
func UniqueEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	unique := make([]string, 0, len(emails))
	for _, email := range emails {
		if _, exists := seen[email]; !exists {
			seen[email] = struct{}{}
			unique = append(unique, email)
		}
	}
	return unique
}
