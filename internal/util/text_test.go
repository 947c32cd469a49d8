package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeSpace("  a \n\t b   c "))
	assert.Equal(t, "", NormalizeSpace(" \n "))
}

func TestHangulRatio(t *testing.T) {
	assert.Equal(t, 0.0, HangulRatio(""))
	assert.Equal(t, 1.0, HangulRatio("한국어"))
	assert.InDelta(t, 0.5, HangulRatio("한국ab"), 1e-9)
	assert.Equal(t, 0.0, HangulRatio("English only"))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "정부는 오늘 발표했다.", CleanText("  정부는   오늘 ★발표했다. "))
	// full-width forms fold to ASCII
	assert.Equal(t, "ABC 123", CleanText("ＡＢＣ　１２３"))
	assert.Equal(t, "price: (10) - \"ok\"", CleanText("price: (10) - \"ok\" ©"))
	assert.Equal(t, "", CleanText(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "한국", Truncate("한국어", 2))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}
