package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithConfigRequiresConnString(t *testing.T) {
	s, err := NewWithConfig(StoreConfig{})
	assert.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "connection string")
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "clean ascii", input: "hello world", want: "hello world"},
		{name: "clean multibyte", input: "héllo wörld", want: "héllo wörld"},
		{name: "invalid byte dropped", input: "bad\xffbyte", want: "badbyte"},
		{name: "truncated rune dropped", input: "trunc\xc3", want: "trunc"},
		{name: "real replacement char kept", input: "keep�me", want: "keep�me"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeUTF8(tt.input))
		})
	}
}
