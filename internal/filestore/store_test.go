package filestore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"report.pdf", true},
		{"Q1 2024 report.pdf", true},
		{"a-b_c.d.pdf", true},
		{"_hidden.pdf", true},
		{"../secret.pdf", false},
		{"dir/report.pdf", false},
		{`dir\report.pdf`, false},
		{"report..pdf", false},
		{".report.pdf", false},
		{" report.pdf", false},
		{"report.PDF", false},
		{"report.txt", false},
		{"report.pdf\n", false},
		{"rep%20ort.pdf", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.valid {
				assert.NoError(t, err)

				return
			}

			var invalid *InvalidNameError
			assert.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.name, invalid.Name)
		})
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("a.pdf"))
	assert.True(t, IsPDF("A.PDF"))
	assert.False(t, IsPDF("a.pdf.txt"))
	assert.False(t, IsPDF("pdf"))
}

func TestSortNames(t *testing.T) {
	assert.Equal(t, []string{}, SortNames(nil))
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, SortNames([]string{"c.pdf", "a.pdf", "b.pdf"}))
}
