package idempotency

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", ""},
		{"trimmed", "  k-1 ", "k-1"},
		{"at limit", strings.Repeat("a", MaxLen), strings.Repeat("a", MaxLen)},
		{"too long", strings.Repeat("a", MaxLen+1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/checkout", nil)
			if tt.header != "" {
				r.Header.Set(Header, tt.header)
			}
			assert.Equal(t, tt.want, Key(r))
		})
	}
}

func TestEnsure(t *testing.T) {
	assert.Equal(t, "k-1", Ensure(" k-1 "))

	fresh := Ensure("  ")
	_, err := uuid.Parse(fresh)
	require.NoError(t, err)
	assert.NotEqual(t, fresh, Ensure(""))
}
