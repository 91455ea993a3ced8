package storage

import (
	"bytes"
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, image.Transparent.C)
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestBuildPreviewShrinksLargeImages(t *testing.T) {
	preview, err := BuildPreview(encodePNG(t, 2048, 1024))
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(preview))
	require.NoError(t, err)
	assert.Equal(t, PreviewMaxSize, img.Bounds().Dx())
	assert.Equal(t, PreviewMaxSize/2, img.Bounds().Dy())
}

func TestBuildPreviewKeepsSmallImages(t *testing.T) {
	preview, err := BuildPreview(encodePNG(t, 300, 200))
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(preview))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestBuildPreviewRejectsGarbage(t *testing.T) {
	_, err := BuildPreview([]byte("definitely not an image"))
	assert.Error(t, err)
}
