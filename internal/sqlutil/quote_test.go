package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoting(t *testing.T) {
	tests := []struct {
		in       string
		backtick string
		ansi     string
	}{
		{"Position", "`Position`", `"Position"`},
		{"last_direction", "`last_direction`", `"last_direction"`},
		{"select", "`select`", `"select"`},
		{"first name", "`first name`", `"first name"`},
		{"a`b`c", "`a``b``c`", "\"a`b`c\""},
		{`odd"name`, "`odd\"name`", `"odd""name"`},
		{"", "``", `""`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.backtick, QuoteIdentifier(tt.in))
			assert.Equal(t, tt.ansi, QuoteANSIIdentifier(tt.in))
		})
	}
}
