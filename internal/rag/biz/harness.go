package biz

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/scholar-x/internal/pkg/rag/textutil"
)

const (
	// DefaultTolerance bounds score drift and content divergence in
	// fixture comparisons.
	DefaultTolerance = 0.05

	// validityRatio is the minimum per-position match ratio for a
	// comparison with matching counts to stay valid.
	validityRatio = 0.8

	// determinismTolerance bounds the score drift allowed between two
	// runs of the same query.
	determinismTolerance = 0.01

	// comparableLength is the rune prefix compared between expected
	// and actual content.
	comparableLength = 100
)

// ExpectedResult is one anticipated retrieval hit in a fixture. An
// empty ID skips the identity check for that position.
type ExpectedResult struct {
	ID        string  `json:"id,omitempty"`
	Content   string  `json:"content"`
	SourceURL string  `json:"source_url"`
	Section   string  `json:"section,omitempty"`
	Score     float64 `json:"score"`
}

// ComparisonDetails carries the per-position counters of a comparison.
type ComparisonDetails struct {
	ExpectedCount int      `json:"expected_count"`
	ActualCount   int      `json:"actual_count"`
	Matches       int      `json:"matches"`
	Mismatches    int      `json:"mismatches"`
	Errors        []string `json:"errors"`
}

// ComparisonResult is the verdict of comparing actual retrieval
// results against an expectation.
type ComparisonResult struct {
	Query      string            `json:"query"`
	Valid      bool              `json:"is_valid"`
	Confidence float64           `json:"confidence"`
	Details    ComparisonDetails `json:"details"`
}

// Compare checks actual results against the expectation position by
// position. A count mismatch invalidates the comparison outright with
// zero confidence. Otherwise each position runs through identity,
// content, and score checks; the first failing check counts the
// position as a mismatch. Confidence is the match ratio, and the
// comparison stays valid only while that ratio holds above the
// validity floor. A conflicting ID invalidates the whole comparison
// regardless of the ratio.
func Compare(query string, expected []ExpectedResult, actual []*RetrievedContext, tolerance float64) *ComparisonResult {
	result := &ComparisonResult{
		Query:      query,
		Valid:      true,
		Confidence: 1.0,
		Details: ComparisonDetails{
			ExpectedCount: len(expected),
			ActualCount:   len(actual),
			Errors:        []string{},
		},
	}

	if len(expected) != len(actual) {
		result.Valid = false
		result.Confidence = 0.0
		result.Details.Errors = append(result.Details.Errors,
			fmt.Sprintf("Expected %d results but got %d", len(expected), len(actual)))
		return result
	}

	for i := range expected {
		want, got := expected[i], actual[i]

		if want.ID != "" && got.ID != "" && want.ID != got.ID {
			result.Valid = false
			result.Details.Mismatches++
			continue
		}

		wantContent := comparableContent(want.Content)
		gotContent := comparableContent(got.Content)
		if wantContent != gotContent &&
			textutil.SimilarityRatio(wantContent, gotContent) < 1-tolerance {
			result.Details.Mismatches++
			continue
		}

		if math.Abs(want.Score-got.Score) > tolerance {
			result.Details.Mismatches++
			continue
		}

		result.Details.Matches++
	}

	ratio := 1.0
	if total := len(expected); total > 0 {
		ratio = float64(result.Details.Matches) / float64(total)
	}
	result.Confidence = ratio
	if ratio < validityRatio {
		result.Valid = false
	}
	return result
}

// comparableContent normalizes content for comparison: the first
// comparableLength runes, lowercased and trimmed.
func comparableContent(content string) string {
	runes := []rune(content)
	if len(runes) > comparableLength {
		runes = runes[:comparableLength]
	}
	return strings.TrimSpace(strings.ToLower(string(runes)))
}

// CheckDeterminism reports whether two runs of the same query returned
// the same results: equal length, identical IDs in order, and scores
// within the determinism tolerance.
func CheckDeterminism(first, second []*RetrievedContext) bool {
	if len(first) != len(second) {
		return false
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			return false
		}
		if math.Abs(first[i].Score-second[i].Score) > determinismTolerance {
			return false
		}
	}
	return true
}

// Fixture pairs a canonical query with the retrieval results it must
// produce against a seeded collection.
type Fixture struct {
	Query    string           `json:"query"`
	Expected []ExpectedResult `json:"expected_results"`
}

// Fixtures returns the built-in validation fixtures. Each call returns
// a fresh slice so callers can mutate their copy freely.
func Fixtures() []Fixture {
	return []Fixture{
		{
			Query: "What is ROS 2?",
			Expected: []ExpectedResult{
				{
					ID:        "test-ros-intro-1",
					Content:   "ROS 2 (Robot Operating System 2) is a set of libraries and tools for building robotic applications.",
					SourceURL: "https://example.com/ros2-basics",
					Section:   "Introduction to ROS 2",
					Score:     0.95,
				},
				{
					ID:        "test-ros-intro-2",
					Content:   "ROS 2 provides a framework for developing robot applications with support for multiple programming languages.",
					SourceURL: "https://example.com/ros2-architecture",
					Section:   "ROS 2 Architecture",
					Score:     0.92,
				},
			},
		},
		{
			Query: "Explain URDF fundamentals",
			Expected: []ExpectedResult{
				{
					ID:        "test-urdf-fund-1",
					Content:   "URDF (Unified Robot Description Format) is an XML format used to describe robot models in ROS.",
					SourceURL: "https://example.com/urdf-intro",
					Section:   "URDF Fundamentals",
					Score:     0.90,
				},
			},
		},
		{
			Query: "How to connect AI to robots?",
			Expected: []ExpectedResult{
				{
					ID:        "test-ai-robot-1",
					Content:   "Connecting AI systems to robots typically involves creating interfaces between the AI application and the robot's control system.",
					SourceURL: "https://example.com/ai-robot-connection",
					Section:   "AI-Robot Interface",
					Score:     0.93,
				},
			},
		},
	}
}

// SuiteReport aggregates one full run of the fixture suite.
type SuiteReport struct {
	PipelineStatus    string              `json:"pipeline_status"`
	TestResults       []*ComparisonResult `json:"test_results"`
	ValidationPassed  bool                `json:"validation_passed"`
	AverageConfidence float64             `json:"average_confidence"`
	TotalTests        int                 `json:"total_tests"`
}

// Harness replays the fixture queries through live retrieval and
// compares the outcome deterministically.
type Harness struct {
	retriever *Retriever
	tolerance float64
}

// NewHarness returns a Harness. A non-positive tolerance falls back to
// DefaultTolerance.
func NewHarness(retriever *Retriever, tolerance float64) *Harness {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Harness{retriever: retriever, tolerance: tolerance}
}

// RunFixtureSuite retrieves every fixture query without a score filter
// and compares the results against the expectation. Retrieval errors
// abort the run; comparison failures only mark the suite as failed.
func (h *Harness) RunFixtureSuite(ctx context.Context) (*SuiteReport, error) {
	fixtures := Fixtures()

	results := make([]*ComparisonResult, 0, len(fixtures))
	allValid := true
	var confidenceSum float64

	for _, fixture := range fixtures {
		contexts, err := h.retriever.Retrieve(ctx, fixture.Query, len(fixture.Expected), 0)
		if err != nil {
			return nil, fmt.Errorf("fixture query %q failed: %w", fixture.Query, err)
		}

		result := Compare(fixture.Query, fixture.Expected, contexts, h.tolerance)
		if !result.Valid {
			allValid = false
			logger.Warnw("fixture comparison failed",
				"query", fixture.Query,
				"confidence", result.Confidence,
				"mismatches", result.Details.Mismatches,
			)
		}
		confidenceSum += result.Confidence
		results = append(results, result)
	}

	var avg float64
	if len(results) > 0 {
		avg = confidenceSum / float64(len(results))
	}

	status := "working"
	if !allValid {
		status = "issues_found"
	}

	return &SuiteReport{
		PipelineStatus:    status,
		TestResults:       results,
		ValidationPassed:  allValid,
		AverageConfidence: avg,
		TotalTests:        len(results),
	}, nil
}
