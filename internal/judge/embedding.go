package judge

import (
	"context"
	"fmt"
	"math"
)

// Embedder is the embedding capability the similarity layer depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// DefaultSimilarityThreshold accepts explanations that clearly restate the
// question while tolerating paraphrase. Ties count as valid.
const DefaultSimilarityThreshold = 0.75

// SimilarityScorer computes a normalized similarity in [0,1] between the
// original question and the round-trip explanation. Advisory by default:
// a low score is recorded but does not alone reject the iteration.
type SimilarityScorer struct {
	emb       Embedder
	threshold float64
}

// NewSimilarityScorer creates a scorer with the given threshold.
// A non-positive threshold selects DefaultSimilarityThreshold.
func NewSimilarityScorer(emb Embedder, threshold float64) *SimilarityScorer {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &SimilarityScorer{emb: emb, threshold: threshold}
}

// Score embeds both texts and compares them. An empty explanation fails the
// layer without any model call; embedding transport failures are returned as
// errors (fatal for the request).
func (s *SimilarityScorer) Score(ctx context.Context, question, explanation string) (LayerResult, error) {
	res := LayerResult{
		Layer:   LayerEmbedding,
		Metrics: map[string]float64{"threshold": s.threshold},
	}

	if explanation == "" {
		res.Metrics["score"] = 0
		res.Reason = "no round-trip explanation to compare against"
		res.FixSuggestion = "candidate diverges from question intent"
		return res, nil
	}

	qv, err := s.emb.Embed(ctx, question)
	if err != nil {
		return LayerResult{}, err
	}
	ev, err := s.emb.Embed(ctx, explanation)
	if err != nil {
		return LayerResult{}, err
	}

	score := cosine(qv, ev)
	res.Metrics["score"] = score
	res.Valid = score >= s.threshold
	if res.Valid {
		res.Reason = fmt.Sprintf("explanation matches question intent (%.3f >= %.3f)", score, s.threshold)
	} else {
		res.Reason = fmt.Sprintf("similarity %.3f below threshold %.3f", score, s.threshold)
		// similarity alone carries no structural diagnosis
		res.FixSuggestion = "candidate diverges from question intent"
	}
	return res, nil
}

// cosine returns the cosine similarity of a and b clamped to [0,1].
// Mismatched dimensions or a zero vector score 0.
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Min(1, math.Max(0, sim))
}
