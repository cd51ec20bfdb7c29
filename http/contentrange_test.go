package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContentRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in                  string
		first, last, length int64
		ok                  bool
	}{
		{in: "bytes 42-1233/1234", first: 42, last: 1233, length: 1234, ok: true},
		{in: "bytes 42-1233/*", first: 42, last: 1233, length: -1, ok: true},
		{in: "bytes */1234", first: -1, last: -1, length: 1234, ok: true},
		{in: "bytes 0-0/1", first: 0, last: 0, length: 1, ok: true},
		{in: "bytes */*"},
		{in: "bytes 5-4/10"},
		{in: "items 0-1/2"},
		{in: "bytes 0-1"},
		{in: "bytes a-b/10"},
		{in: ""},
	}
	for _, tt := range tests {
		first, last, length, err := parseContentRange(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		if assert.NoError(t, err, tt.in) {
			assert.Equal(t, tt.first, first, tt.in)
			assert.Equal(t, tt.last, last, tt.in)
			assert.Equal(t, tt.length, length, tt.in)
		}
	}
}
