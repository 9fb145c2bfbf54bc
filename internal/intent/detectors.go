package intent

import "context"

// DefaultDetectorThreshold is the confidence a detector must reach to
// override the classifier.
const DefaultDetectorThreshold = 0.7

// DetectionResult is one detector verdict.
type DetectionResult struct {
	Matched    bool
	Confidence float64
	Method     string
}

// Detector recognizes one domain from raw text. Keyword detectors ship by
// default; a model-backed detector can replace them without touching the
// router.
type Detector interface {
	Detect(ctx context.Context, text string) (DetectionResult, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, text string) (DetectionResult, error)

func (f DetectorFunc) Detect(ctx context.Context, text string) (DetectionResult, error) {
	return f(ctx, text)
}

// KeywordDetector scores text by strong and weak keyword hits.
// One strong hit is enough to match; weak hits only add confidence.
type KeywordDetector struct {
	Name   string
	Strong []string
	Weak   []string
}

func (d *KeywordDetector) Detect(_ context.Context, text string) (DetectionResult, error) {
	t := normalizeText(text)
	strong, weak := 0, 0
	for _, w := range d.Strong {
		if containsWord(t, w) {
			strong++
		}
	}
	for _, w := range d.Weak {
		if containsWord(t, w) {
			weak++
		}
	}
	if strong == 0 {
		if weak >= 2 {
			return DetectionResult{Matched: true, Confidence: 0.6, Method: d.Name + ":weak"}, nil
		}
		return DetectionResult{Method: d.Name}, nil
	}
	conf := 0.8 + 0.05*float64(strong-1) + 0.03*float64(weak)
	if conf > 0.95 {
		conf = 0.95
	}
	return DetectionResult{Matched: true, Confidence: conf, Method: d.Name + ":keyword"}, nil
}

var parcelStrong = []string{
	"parcel", "courier", "package", "pickup", "pick up", "pick-up", "send a package",
	"drop off", "dropoff", "deliver this", "deliver my", "documents", "shipment",
	"saaman bhejna", "saman bhejna", "paarsal", "kuriyar",
}

var parcelWeak = []string{
	"send", "deliver", "drop", "from", "to", "address", "bhejna", "bhejo", "pathva", "pohochana",
}

var foodStrong = []string{
	"food", "hungry", "pizza", "burger", "biryani", "dosa", "idli", "vada pav", "pav bhaji",
	"paneer", "thali", "noodles", "momos", "sandwich", "pasta", "rolls", "shawarma", "dal",
	"roti", "naan", "curry", "chicken", "misal", "poha", "samosa", "khana", "jevan", "bhook",
	"restaurant", "lunch", "dinner", "breakfast", "dessert", "ice cream", "cake", "coffee", "chai",
}

var foodWeak = []string{"eat", "order", "menu", "spicy", "veg", "non veg", "khana hai", "khaycha"}

// NewParcelDetector returns the default keyword parcel detector.
func NewParcelDetector() Detector {
	return &KeywordDetector{Name: "parcel", Strong: parcelStrong, Weak: parcelWeak}
}

// NewFoodDetector returns the default keyword food detector.
func NewFoodDetector() Detector {
	return &KeywordDetector{Name: "food", Strong: foodStrong, Weak: foodWeak}
}

// Static last-resort lists used when a detector is absent, errors, or is
// unsure. Deliberately narrower than the detectors.
var (
	staticParcelKeywords = []string{"parcel", "courier", "pickup", "pick up"}
	staticFoodKeywords   = []string{"pizza", "burger", "biryani", "dosa", "food", "hungry", "khana", "thali"}
)
