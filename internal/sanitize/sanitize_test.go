package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int
		want    string
		wantErr error
	}{
		{name: "plain", input: "hello", want: "hello"},
		{name: "keeps whitespace", input: "a\tb\r\nc", want: "a\tb\r\nc"},
		{name: "strips control", input: "he\x00ll\x1bo", want: "hello"},
		{name: "unicode", input: "olá ☀️", want: "olá ☀️"},
		{name: "too large", input: strings.Repeat("x", 11), limit: 10, wantErr: ErrInputTooLarge},
		{name: "invalid utf8", input: "bad\xff", wantErr: ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Input(tt.input, tt.limit)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
