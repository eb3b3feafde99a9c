package matching

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRegex(t *testing.T) {
	assert.True(t, CheckRegex(`^\d{3}$`, "123"))
	assert.False(t, CheckRegex(`^\d{3}$`, "12a"))
	assert.False(t, CheckRegex(`(`, "("))
}

func TestGenerateRegexValue(t *testing.T) {
	patterns := []string{
		`^\d{3}-[A-Z]{2}$`,
		`[a-f0-9]{8}-[a-f0-9]{4}`,
		`^(GET|POST|PUT)$`,
		`\w+@example\.com`,
		`^/users/\d+$`,
		`^[^x]+$`,
	}

	for _, pattern := range patterns {
		t.Run(pattern, func(t *testing.T) {
			value, err := GenerateRegexValue(pattern)
			require.NoError(t, err)
			assert.Regexp(t, regexp.MustCompile(pattern), value)
		})
	}
}

func TestGenerateRegexValueInvalidRegex(t *testing.T) {
	_, err := GenerateRegexValue(`[a-`)

	assert.ErrorIs(t, err, ErrInvalidRegex)
}

func TestJavaToGoLayout(t *testing.T) {
	tests := map[string]string{
		"yyyy-MM-dd":                   "2006-01-02",
		"HH:mm:ss":                     "15:04:05",
		"yyyy-MM-dd'T'HH:mm:ss.SSSXXX": "2006-01-02T15:04:05.000Z07:00",
		"EEE, dd MMM yyyy HH:mm:ss z":  "Mon, 02 Jan 2006 15:04:05 MST",
		"dd/MM/yy hh:mm a":             "02/01/06 03:04 PM",
		"'at' HH''mm":                  "at 15'04",
	}
	for pattern, want := range tests {
		layout, err := JavaToGoLayout(pattern)
		require.NoError(t, err, pattern)
		assert.Equal(t, want, layout, pattern)
	}

	_, err := JavaToGoLayout("yyyy-ww")
	assert.Error(t, err)
}

func TestFormatDatetime(t *testing.T) {
	at := time.Date(2021, time.March, 4, 5, 6, 7, 0, time.UTC)

	formatted, err := formatDatetime("yyyy-MM-dd'T'HH:mm:ss", at)

	require.NoError(t, err)
	assert.Equal(t, "2021-03-04T05:06:07", formatted)
}
