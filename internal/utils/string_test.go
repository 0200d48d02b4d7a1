package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailSubject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Re: Login broken", "Login broken"},
		{"RE: re: Fwd: Login broken", "Login broken"},
		{"FW[2]: quarterly report", "quarterly report"},
		{"  Login broken  ", "Login broken"},
		{"Reminder: standup", "Reminder: standup"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeEmailSubject(tc.in), tc.in)
	}
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "m1@example.com", NormalizeMessageID("<m1@example.com>"))
	assert.Equal(t, "m1@example.com", NormalizeMessageID("  m1@example.com "))
	assert.Equal(t, "", NormalizeMessageID(""))
}

func TestSyntheticMessageID_IsStableAndPrefixed(t *testing.T) {
	at := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)

	first := SyntheticMessageID("alice@example.com", "hello", at)
	second := SyntheticMessageID("alice@example.com", "hello", at)
	other := SyntheticMessageID("bob@example.com", "hello", at)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.True(t, strings.HasPrefix(first, "synthetic-"))
}

func TestGenerateMessageID(t *testing.T) {
	id := GenerateMessageID("taskwell.io", "")

	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@taskwell.io>"))
	assert.NotEqual(t, id, GenerateMessageID("taskwell.io", ""))
}

func TestUnionStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, UnionStrings([]string{"a", "b"}, []string{"b", "c"}))
	assert.Equal(t, []string{"a"}, UnionStrings(nil, []string{"a"}))
	assert.Equal(t, []string{}, UnionStrings(nil, nil))
}
