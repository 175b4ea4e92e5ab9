package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name string
		args []string
		in   string
	}{
		{"from argument", []string{"Sup3r-secret"}, ""},
		{"from stdin", nil, "Sup3r-secret\n"},
		{"from stdin without newline", nil, "Sup3r-secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			require.NoError(t, hashPassword(tt.args, strings.NewReader(tt.in), &out))

			hash := strings.TrimSpace(out.String())
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Sup3r-secret")))
		})
	}
}

func TestHashPassword_RejectsWeakPassword(t *testing.T) {
	var out bytes.Buffer

	err := hashPassword([]string{"short"}, strings.NewReader(""), &out)

	assert.Error(t, err)
	assert.Empty(t, out.String())
}
