package offline

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/imageprocessor"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestClassifier(seed int64) *Classifier {
	return NewClassifier(rand.New(rand.NewSource(seed)), zap.NewNop())
}

func TestClassifyAllGreenIsCompost(t *testing.T) {
	c := newTestClassifier(1)
	result := c.Classify(solidPNG(t, 100, 100, color.RGBA{R: 20, G: 200, B: 20, A: 255}))

	assert.Equal(t, classification.CategoryCompost, result.Category)
	assert.Equal(t, 80, result.Confidence)
	assert.GreaterOrEqual(t, result.BudsReward, 15)
	assert.LessOrEqual(t, result.BudsReward, 18)
	assert.True(t, result.OfflineMode)
	assert.Contains(t, result.Details, "offline")
	assert.True(t, result.Valid())
}

func TestClassifyColorRules(t *testing.T) {
	cases := []struct {
		name       string
		color      color.RGBA
		category   classification.Category
		confidence int
		minReward  int
		maxReward  int
	}{
		{"blue is recycle", color.RGBA{R: 20, G: 20, B: 200, A: 255}, classification.CategoryRecycle, 75, 10, 15},
		{"red is landfill", color.RGBA{R: 200, G: 20, B: 20, A: 255}, classification.CategoryLandfill, 70, 5, 10},
		{"black is recycle", color.RGBA{A: 255}, classification.CategoryRecycle, 40, 10, 15},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := newTestClassifier(7).Classify(solidPNG(t, 120, 80, tc.color))
			assert.Equal(t, tc.category, result.Category)
			assert.Equal(t, tc.confidence, result.Confidence)
			assert.GreaterOrEqual(t, result.BudsReward, tc.minReward)
			assert.LessOrEqual(t, result.BudsReward, tc.maxReward)
			assert.Len(t, result.Tips, 3)
		})
	}
}

func TestDecideThresholdsAreStrict(t *testing.T) {
	category, _ := Decide(Ratios{R: 0.31, G: 0.38, B: 0.31})
	assert.Equal(t, classification.CategoryLandfill, category)

	category, _ = Decide(Ratios{R: 0.30, G: 0.35, B: 0.35})
	assert.Equal(t, classification.CategoryLandfill, category)

	category, confidence := Decide(Ratios{R: 0.30, G: 0.381, B: 0.319})
	assert.Equal(t, classification.CategoryCompost, category)
	assert.Equal(t, 80, confidence)

	category, confidence = Decide(Ratios{R: 0.25, G: 0.25, B: 0.36})
	assert.Equal(t, classification.CategoryRecycle, category)
	assert.Equal(t, 75, confidence)
}

func TestMeasureRatiosGuardsZeroSum(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	assert.Equal(t, Ratios{}, MeasureRatios(img))
}

func TestClassifyIsStableForSameInput(t *testing.T) {
	input := solidPNG(t, 64, 64, color.RGBA{R: 90, G: 140, B: 60, A: 255})
	c := newTestClassifier(3)

	first := c.Classify(input)
	second := c.Classify(input)
	assert.Equal(t, first.Category, second.Category)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestClassifySeededRewardIsDeterministic(t *testing.T) {
	input := solidPNG(t, 32, 32, color.RGBA{R: 20, G: 200, B: 20, A: 255})
	a := newTestClassifier(42).Classify(input)
	b := newTestClassifier(42).Classify(input)
	assert.Equal(t, a.BudsReward, b.BudsReward)
}

func TestClassifyUnreadableImageDegrades(t *testing.T) {
	c := newTestClassifier(1)

	_, err := c.Analyze([]byte("nope"))
	assert.True(t, errors.Is(err, classification.ErrOfflineAnalysis))

	result := c.Classify([]byte("nope"))
	assert.Equal(t, classification.CategoryUnknown, result.Category)
	assert.Equal(t, 30, result.Confidence)
	assert.Equal(t, 5, result.BudsReward)
	assert.True(t, result.OfflineMode)
	assert.NotEmpty(t, result.Tips)
}

// oversizedPNG returns a valid PNG header declaring w x h pixels with a
// single tiny compressed row, so decoding it fully would need w*h bytes.
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale
	writeChunk(&buf, "IHDR", ihdr)

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	_, err := zw.Write(make([]byte, 1+w))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	writeChunk(&buf, "IDAT", idat.Bytes())
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, kind string, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	crc := crc32.NewIEEE()
	crc.Write([]byte(kind))
	crc.Write(data)
	buf.WriteString(kind)
	buf.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])
}

func TestClassifyOversizedImageDegrades(t *testing.T) {
	c := newTestClassifier(1)
	data := oversizedPNG(t, 8000, 8000)

	_, err := c.Analyze(data)
	assert.True(t, errors.Is(err, classification.ErrOfflineAnalysis), "got %v", err)
	assert.True(t, errors.Is(err, imageprocessor.ErrImageTooLarge), "got %v", err)

	result := c.Classify(data)
	assert.Equal(t, classification.CategoryUnknown, result.Category)
	assert.Equal(t, 30, result.Confidence)
	assert.Equal(t, 5, result.BudsReward)
	assert.True(t, result.OfflineMode)
}
