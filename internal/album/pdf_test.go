package album

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBuild(t *testing.T) {
	pages := []Page{
		{Title: "A friendly dragon", ImagePNG: testPNG(t, 64, 96)},
		{Title: "A castle", ImagePNG: testPNG(t, 64, 96)},
		{ImagePNG: testPNG(t, 64, 96)}, // untitled pages are fine
	}

	var buf bytes.Buffer
	err := Build(&buf, pages, Options{Title: "My Coloring Book", Ratio: "1024x1536"})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")), "output starts with a PDF header")
	assert.Greater(t, buf.Len(), 500)
}

func TestBuild_LandscapeRatio(t *testing.T) {
	var buf bytes.Buffer
	err := Build(&buf, []Page{{ImagePNG: testPNG(t, 96, 64)}}, Options{Ratio: "1536x1024"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestBuild_RejectsEmptyInput(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Build(&buf, nil, Options{}))
	assert.Error(t, Build(&buf, []Page{{Title: "blank"}}, Options{}))
}
