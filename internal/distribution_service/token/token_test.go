package token_test

import (
	"strings"
	"testing"

	"github.com/eduon/notify-gateway/internal/distribution_service/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Deterministic(t *testing.T) {
	gen := token.NewGenerator("test-salt")

	first := gen.Generate("a1", "s1")
	second := gen.Generate("a1", "s1")

	assert.Equal(t, first, second)
	assert.Len(t, first, 16)
}

func TestGenerator_URLSafe(t *testing.T) {
	gen := token.NewGenerator("test-salt")

	for _, pair := range [][2]string{
		{"a1", "s1"},
		{"assignment-42", "student-9"},
		{"캠페인", "학생"},
	} {
		tok := gen.Generate(pair[0], pair[1])
		assert.Len(t, tok, 16)
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, "=")
	}
}

func TestGenerator_Verify(t *testing.T) {
	gen := token.NewGenerator("test-salt")
	tok := gen.Generate("a1", "s1")

	assert.True(t, gen.Verify(tok, "a1", "s1"))
	assert.False(t, gen.Verify(tok, "a2", "s1"), "different campaign must not verify")
	assert.False(t, gen.Verify(tok, "a1", "s2"), "different recipient must not verify")
	assert.False(t, gen.Verify("", "a1", "s1"))
}

func TestGenerator_SaltChangesToken(t *testing.T) {
	tok1 := token.NewGenerator("salt-one").Generate("a1", "s1")
	tok2 := token.NewGenerator("salt-two").Generate("a1", "s1")

	assert.NotEqual(t, tok1, tok2)
}

func TestGenerator_PairsDoNotCollide(t *testing.T) {
	gen := token.NewGenerator("test-salt")

	seen := make(map[string]string)
	for _, c := range []string{"a1", "a2", "a3"} {
		for _, r := range []string{"s1", "s2", "s3", "s4"} {
			tok := gen.Generate(c, r)
			prev, dup := seen[tok]
			require.False(t, dup, "token collision between %s and %s:%s", prev, c, r)
			seen[tok] = c + ":" + r
		}
	}
}

func TestGenerator_Link(t *testing.T) {
	gen := token.NewGenerator("test-salt")

	link := gen.Link("http://localhost:3000/", "solve", "a1", "s1")

	require.True(t, strings.HasPrefix(link, "http://localhost:3000/solve/a1?token="))
	assert.Equal(t, gen.Generate("a1", "s1"), link[strings.Index(link, "token=")+len("token="):])
}
