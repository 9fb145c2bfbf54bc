package providers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/router"
)

// NLUClassifier calls the primary intent model: POST {base}/classify {text}.
type NLUClassifier struct {
	httpClient
}

func NewNLUClassifier(apiBase, apiKey string) *NLUClassifier {
	return &NLUClassifier{httpClient: newHTTPClient("nlu", apiBase, apiKey)}
}

func (c *NLUClassifier) Classify(ctx context.Context, text string) (router.Classification, error) {
	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := c.postJSON(ctx, "/classify", map[string]string{"text": text}, &out, true); err != nil {
		return router.Classification{}, err
	}
	return router.Classification{
		Intent:     strings.ToLower(strings.TrimSpace(out.Intent)),
		Confidence: clamp01(out.Confidence),
		Provider:   "nlu",
	}, nil
}

// ErrNoClassifier is returned by an empty chain.
var ErrNoClassifier = errors.New("no classifier configured")

// ClassifierChain tries each classifier in order and returns the first
// verdict that is not "unknown". When every classifier fails or abstains the
// result is unknown with confidence 0.
type ClassifierChain struct {
	chain []router.Classifier
}

// NewClassifierChain builds a chain, skipping nil entries.
func NewClassifierChain(classifiers ...router.Classifier) *ClassifierChain {
	c := &ClassifierChain{}
	for _, cl := range classifiers {
		if cl != nil {
			c.chain = append(c.chain, cl)
		}
	}
	return c
}

// Len returns the number of classifiers in the chain.
func (c *ClassifierChain) Len() int { return len(c.chain) }

func (c *ClassifierChain) Classify(ctx context.Context, text string) (router.Classification, error) {
	unknown := router.Classification{Intent: "unknown", Confidence: 0, Provider: "default"}
	if len(c.chain) == 0 {
		return unknown, nil
	}
	var lastErr error
	for i, cl := range c.chain {
		res, err := cl.Classify(ctx, text)
		if err != nil {
			lastErr = err
			slog.Warn("classifier failed, trying next", "position", i, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if res.Intent != "" && res.Intent != "unknown" {
			return res, nil
		}
	}
	if lastErr != nil {
		slog.Debug("classifier chain fell through to unknown", "error", lastErr)
	}
	return unknown, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

var (
	_ router.Classifier = (*NLUClassifier)(nil)
	_ router.Classifier = (*ClassifierChain)(nil)
)
