package sym

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlyphsAreUnique(t *testing.T) {
	seen := make(map[string]string)
	for name, glyph := range All() {
		if other, ok := seen[glyph]; ok {
			t.Fatalf("glyph %q used by both %s and %s", glyph, name, other)
		}
		seen[glyph] = name
		assert.NotEmpty(t, glyph, name)
	}
}
