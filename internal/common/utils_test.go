package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsAnyFold(t *testing.T) {
	tests := []struct {
		s    string
		subs []string
		want bool
	}{
		{"file is not a database", []string{"FILE IS NOT A DATABASE"}, true},
		{"database disk image is malformed", []string{"locked", "image is malformed"}, true},
		{"database is locked", []string{"malformed"}, false},
		{"anything", nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsAnyFold(tt.s, tt.subs...), tt.s)
	}
}
