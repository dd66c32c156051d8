// Package token derives short deterministic access tokens binding a
// (campaign, recipient) pair. Tokens are never stored; verification
// re-derives and compares, so it survives process restarts.
package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// tokenLength is the truncated token width. 16 URL-safe characters trade
// collision resistance for compact links; the token's job is
// unguessability for a single campaign+recipient scope, not signing.
// Widen it if campaign×recipient cardinality gets very large.
const tokenLength = 16

// Generator derives and verifies access tokens with a process-wide salt.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	salt string
}

// NewGenerator creates a Generator. The salt should be a deployment
// secret; an empty or well-known salt makes tokens guessable and is
// suitable only for non-production use.
func NewGenerator(salt string) *Generator {
	return &Generator{salt: salt}
}

// Generate derives the token for a (campaignID, recipientID) pair.
// Identical inputs always yield the identical token.
func (g *Generator) Generate(campaignID, recipientID string) string {
	sum := sha256.Sum256([]byte(campaignID + ":" + recipientID + ":" + g.salt))
	encoded := base64.RawURLEncoding.EncodeToString(sum[:])
	return encoded[:tokenLength]
}

// Verify re-derives the token for the pair and compares in constant time.
func (g *Generator) Verify(tok, campaignID, recipientID string) bool {
	expected := g.Generate(campaignID, recipientID)
	return subtle.ConstantTimeCompare([]byte(tok), []byte(expected)) == 1
}

// Link builds the recipient access link:
// <baseURL>/<resource>/<campaignID>?token=<token>
// The path segment and query parameter name are a stable external
// contract consumed by the link-landing page.
func (g *Generator) Link(baseURL, resource, campaignID, recipientID string) string {
	tok := g.Generate(campaignID, recipientID)
	return fmt.Sprintf("%s/%s/%s?token=%s",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(resource),
		url.PathEscape(campaignID),
		url.QueryEscape(tok),
	)
}
