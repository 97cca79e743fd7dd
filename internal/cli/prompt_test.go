package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PromptConfirmer(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"  Y \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}

	for _, test := range tests {
		t.Run(strings.TrimSpace(test.input), func(t *testing.T) {
			out := &bytes.Buffer{}
			confirmer := &promptConfirmer{in: strings.NewReader(test.input), out: out}

			ok, err := confirmer.Confirm("Remove video?")
			require.NoError(t, err)
			assert.Equal(t, test.expected, ok)
			assert.Contains(t, out.String(), "Remove video? [y/N]")
		})
	}
}

func Test_ShortID(t *testing.T) {
	assert.Equal(t, "abcdef01", shortID("abcdef0123456789"))
	assert.Equal(t, "abc", shortID("abc"))
}
