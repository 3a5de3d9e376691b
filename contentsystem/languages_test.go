package contentsystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLanguage(t *testing.T) {
	l, ok := getLanguage("en-US")
	require.True(t, ok)
	assert.Equal(t, "English", l.Name)

	l, ok = getLanguage("en")
	require.True(t, ok)
	assert.Equal(t, "en-US", l.Code)

	l, ok = getLanguage("ZH")
	require.True(t, ok)
	assert.Equal(t, "zh-Hans", l.Code)

	_, ok = getLanguage("not-a-real-code")
	assert.False(t, ok)
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"neutral", "*"},
		{"Neutral", "*"},
		{"en", "en-US"},
		{"en-US", "en-US"},
		{"cn", "zh-Hans"},
		{"zz-ZZ", "zz-ZZ"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeLanguage(tt.in))
		})
	}
}
