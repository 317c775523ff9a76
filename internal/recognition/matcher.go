package recognition

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Match is an accepted comparison between a detected face and a stored encoding.
type Match struct {
	Encoding database.StoredEncoding
	Distance float64
}

// Matcher compares detected encodings against the enrolled ones.
type Matcher struct {
	store     database.EncodingReader
	strategy  string
	tolerance float64

	mu        sync.RWMutex
	threshold float64 // cosine strategy accepts distance <= 1 - threshold
}

// NewMatcher creates a matcher using the strategy and limits of cfg.
func NewMatcher(store database.EncodingReader, cfg config.FaceConfig) *Matcher {
	strategy := cfg.MatchStrategy
	if strategy == "" {
		strategy = config.StrategyEuclidean
	}
	return &Matcher{
		store:     store,
		strategy:  strategy,
		tolerance: cfg.Tolerance,
		threshold: cfg.ConfidenceThreshold,
	}
}

// Strategy returns the active strategy name.
func (m *Matcher) Strategy() string {
	return m.strategy
}

// Threshold returns the confidence threshold bounding cosine matches.
func (m *Matcher) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// SetThreshold changes the confidence threshold bounding cosine matches.
func (m *Matcher) SetThreshold(threshold float64) {
	m.mu.Lock()
	m.threshold = threshold
	m.mu.Unlock()
}

// Match returns the best stored encoding for enc, nil when nothing is close enough.
// Equal distances resolve to the earlier enrolled encoding.
func (m *Matcher) Match(ctx context.Context, enc []float32) (*Match, error) {
	switch m.strategy {
	case config.StrategyEuclidean:
		return m.matchNearest(ctx, enc)
	case config.StrategyCosine:
		return m.matchScan(ctx, enc, database.CosineDistance, 1-m.Threshold())
	case config.StrategyExact:
		return m.matchExact(ctx, enc)
	default:
		return nil, fmt.Errorf("unknown match strategy %q", m.strategy)
	}
}

func (m *Matcher) matchNearest(ctx context.Context, enc []float32) (*Match, error) {
	encs, dists, err := m.store.FindNearest(ctx, enc, constants.NearestCandidates)
	if err != nil {
		return nil, fmt.Errorf("find nearest encodings: %w", err)
	}
	if len(encs) == 0 || dists[0] > m.tolerance {
		return nil, nil
	}
	return &Match{Encoding: encs[0], Distance: dists[0]}, nil
}

func (m *Matcher) matchScan(ctx context.Context, enc []float32, distance func(a, b []float32) float64, maxDistance float64) (*Match, error) {
	encs, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list encodings: %w", err)
	}

	var best *Match
	bestDist := math.Inf(1)
	for _, e := range encs {
		if len(e.Encoding) != len(enc) {
			continue
		}
		d := distance(enc, e.Encoding)
		if d > maxDistance || d >= bestDist {
			continue
		}
		best = &Match{Encoding: e, Distance: d}
		bestDist = d
	}
	return best, nil
}

func (m *Matcher) matchExact(ctx context.Context, enc []float32) (*Match, error) {
	encs, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list encodings: %w", err)
	}
	for _, e := range encs {
		if database.Equal(enc, e.Encoding) {
			return &Match{Encoding: e}, nil
		}
	}
	return nil, nil
}
