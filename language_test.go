package s2s_test

import (
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s2s "github.com/goliatone/go-s2s"
)

func TestLanguageResolver_Resolve(t *testing.T) {
	r := s2s.NewLanguageResolver("en", "ua")

	cases := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"*", "en"},
		{"en", "en"},
		{"en-US,en;q=0.9", "en"},
		{"ua", "ua"},
		{"uk-UA", "ua"},
		{"fr;q=0.9,ua;q=0.8", "ua"},
	}

	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			got, err := r.Resolve(tc.header)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLanguageResolver_Unsupported(t *testing.T) {
	r := s2s.NewLanguageResolver("en", "ua")

	_, err := r.Resolve("fr")
	require.Error(t, err)
	assert.True(t, errors.Is(err, s2s.ErrInvalidLanguage))

	_, err = r.Resolve(";;;")
	assert.Error(t, err)
}

func TestLanguageResolver_Defaults(t *testing.T) {
	r := s2s.NewLanguageResolver()
	assert.Equal(t, "en", r.Default())
	assert.Equal(t, []string{"en", "ua"}, r.Supported())
	assert.True(t, r.IsSupported("UA"))
	assert.False(t, r.IsSupported("de"))
}
