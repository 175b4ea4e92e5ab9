package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSourceReference(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"object urn", "urn:adsk.objects:os.object:bucket/model.rvt", false},
		{"short urn", "urn:abc", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"bare prefix", "urn:", true},
		{"no prefix", "adsk.objects:os.object:bucket/model.rvt", true},
		{"surrounding space", " urn:abc", true},
		{"inner newline", "urn:a\nb", true},
		{"too long", "urn:" + strings.Repeat("a", 1100), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceReference(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				var vErr *ValidationError
				assert.True(t, errors.As(err, &vErr))
				assert.Equal(t, "sourceReference", vErr.Field)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOutputs(t *testing.T) {
	tests := []struct {
		name    string
		outputs []OutputFormat
		wantErr string
	}{
		{"single svf2", []OutputFormat{{Format: "svf2", Views: []string{"2d", "3d"}}}, ""},
		{"mixed case", []OutputFormat{{Format: "SVF2", Views: []string{"3D"}}, {Format: "obj"}}, ""},
		{"empty", nil, "must not be empty"},
		{"unknown format", []OutputFormat{{Format: "pdf"}}, "unsupported format"},
		{"duplicate", []OutputFormat{{Format: "svf2"}, {Format: "SVF2"}}, "duplicate format"},
		{"bad view", []OutputFormat{{Format: "svf"}, {Format: "obj", Views: []string{"4d"}}}, "unsupported view"},
		{"too many", make([]OutputFormat, MaxRequestedOutputs+1), "too many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputs(tt.outputs)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizeOutputs(t *testing.T) {
	got := NormalizeOutputs([]OutputFormat{{Format: "SVF2", Views: []string{"3D", "2d"}}, {Format: "Obj"}})
	assert.Equal(t, []OutputFormat{{Format: "svf2", Views: []string{"3d", "2d"}}, {Format: "obj"}}, got)
}
