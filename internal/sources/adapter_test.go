package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"$24,500", 24500},
		{"24,500 miles", 24500},
		{"  $1,299  ", 1299},
		{"Call for price", 0},
		{"", 0},
		{"45000", 45000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseNumeric(tt.input), "input %q", tt.input)
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "toyota", slugify("Toyota", "-"))
	assert.Equal(t, "land-cruiser", slugify("Land Cruiser", "-"))
	assert.Equal(t, "land%20cruiser", slugify(" Land  Cruiser ", "%20"))
	assert.Equal(t, "", slugify("", "-"))
}

func TestZipOrDefault(t *testing.T) {
	assert.Equal(t, "90210", zipOrDefault("90210", "10001"))
	assert.Equal(t, "10001", zipOrDefault("", "10001"))
}
