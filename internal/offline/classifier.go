package offline

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/imageprocessor"
)

// SampleSize is the edge length of the thumbnail the statistics run on.
const SampleSize = 100

const caveat = " This result was produced offline from simple color analysis and is less accurate than the AI classifier; please double-check your local guidelines."

var rewardBands = map[classification.Category]classification.RewardBand{
	classification.CategoryCompost:  {Min: 15, Max: 18},
	classification.CategoryRecycle:  {Min: 10, Max: 15},
	classification.CategoryLandfill: {Min: 5, Max: 10},
}

// Ratios are the mean channel intensities divided by their sum.
type Ratios struct {
	R float64
	G float64
	B float64
}

// Decide applies the color heuristic. Thresholds are strict.
func Decide(r Ratios) (classification.Category, int) {
	switch {
	case r.G > 0.38:
		return classification.CategoryCompost, int(math.Min(r.G*100+50, 80))
	case r.B > 0.35 || (r.R < 0.30 && r.G < 0.30 && r.B < 0.30):
		return classification.CategoryRecycle, int(math.Min(r.B*100+40, 75))
	default:
		return classification.CategoryLandfill, int(math.Min(r.R*100+30, 70))
	}
}

// MeasureRatios shrinks img to SampleSize x SampleSize and returns its
// channel ratios.
func MeasureRatios(img image.Image) Ratios {
	thumb := resize.Resize(SampleSize, SampleSize, img, resize.Bilinear)
	b := thumb.Bounds()

	var sumR, sumG, sumB float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := thumb.At(x, y).RGBA()
			sumR += float64(r >> 8)
			sumG += float64(g >> 8)
			sumB += float64(bl >> 8)
		}
	}

	pixels := float64(b.Dx() * b.Dy())
	if pixels == 0 {
		pixels = 1
	}
	meanR, meanG, meanB := sumR/pixels, sumG/pixels, sumB/pixels

	total := meanR + meanG + meanB
	if total == 0 {
		total = 1
	}
	return Ratios{R: meanR / total, G: meanG / total, B: meanB / total}
}

// Classifier is the network-free fallback. Reward sampling uses the injected
// random source, guarded for concurrent callers.
type Classifier struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

// NewClassifier constructs a Classifier. A nil rng is seeded from the clock.
func NewClassifier(rng *rand.Rand, logger *zap.Logger) *Classifier {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Classifier{rng: rng, logger: logger.Named("offline_classifier")}
}

// Classify always returns a well-formed result. Internal failures degrade
// to an unknown result instead of propagating.
func (c *Classifier) Classify(data []byte) classification.Result {
	result, err := c.Analyze(data)
	if err != nil {
		c.logger.Error("offline analysis failed", zap.Error(err))
		return Unavailable()
	}
	return *result
}

// Analyze runs the heuristic and reports failures as
// classification.ErrOfflineAnalysis.
func (c *Classifier) Analyze(data []byte) (result *classification.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", classification.ErrOfflineAnalysis, r)
		}
	}()

	if _, err := imageprocessor.CheckDimensions(data, imageprocessor.MaxPixels); err != nil {
		return nil, fmt.Errorf("%w: %w", classification.ErrOfflineAnalysis, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", classification.ErrOfflineAnalysis, err)
	}

	category, confidence := Decide(MeasureRatios(img))
	g := classification.GuidanceFor(category)
	return &classification.Result{
		Category:            category,
		Confidence:          confidence,
		Details:             g.Details + caveat,
		EnvironmentalImpact: g.EnvironmentalImpact,
		Tips:                g.Tips,
		BudsReward:          c.reward(category),
		OfflineMode:         true,
	}, nil
}

func (c *Classifier) reward(category classification.Category) int {
	band := rewardBands[category]
	c.mu.Lock()
	defer c.mu.Unlock()
	return band.Min + c.rng.Intn(band.Max-band.Min+1)
}

// Unavailable is the fixed result returned when even offline analysis fails.
func Unavailable() classification.Result {
	g := classification.GuidanceFor(classification.CategoryUnknown)
	return classification.Result{
		Category:            classification.CategoryUnknown,
		Confidence:          30,
		Details:             g.Details + caveat,
		EnvironmentalImpact: g.EnvironmentalImpact,
		Tips:                g.Tips,
		BudsReward:          5,
		OfflineMode:         true,
	}
}
