package models

import "strings"

const keyPrefix = "rl"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
//
// Example: An identifier "user:admin" would become "user_admin", preventing
// it from being interpreted as a separate key segment.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NewRateLimitKey builds the bucket key for a subject within a scope,
// e.g. "rl:user:1234".
func NewRateLimitKey(scope Scope, identifier string) string {
	return keyPrefix + ":" + string(scope) + ":" + SanitizeKeySegment(identifier)
}
