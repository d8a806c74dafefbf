package pacscript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_ASCII(t *testing.T) {
	assert.Equal(t, -1, Compare("a.com", "b.com"))
	assert.Equal(t, 0, Compare("a.com", "a.com"))
	assert.Equal(t, 1, Compare("b.com", "a.com"))
	assert.Equal(t, -1, Compare("A.com", "a.com"), "uppercase sorts first")
	assert.Equal(t, -1, Compare("a.co", "a.com"))
}

func TestCompare_UTF16Order(t *testing.T) {
	// U+FF21 is a single code unit, U+1F600 is a surrogate pair starting at
	// 0xD83D. Code point order and UTF-16 order disagree here.
	bmp := "Ａ.com"
	astral := "\U0001F600.com"
	assert.Equal(t, 1, Compare(bmp, astral))
	assert.Equal(t, -1, Compare(astral, bmp))
}

func TestSort(t *testing.T) {
	d := []string{"c.com", "a.com", "b.com", "a.com"}
	Sort(d)
	assert.Equal(t, []string{"a.com", "a.com", "b.com", "c.com"}, d)
	assert.True(t, IsSorted(d))
	assert.False(t, IsSorted([]string{"b.com", "a.com"}))
	assert.True(t, IsSorted(nil))
}
