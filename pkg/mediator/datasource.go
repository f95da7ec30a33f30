package mediator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Data quality scores.
const (
	HighQualityScore = 0.9
	LowQualityScore  = 0.3

	// DefaultQualityThreshold is the minimum acceptable quality score.
	DefaultQualityThreshold = 0.8

	// minQualityContentLength is the content length a message must exceed.
	minQualityContentLength = 10
)

// DefaultSupportedSources are the data sources trusted by default.
var DefaultSupportedSources = []string{"database", "api", "file", "agent"}

// DataQualityResult is the response to a DataQualityRequest.
type DataQualityResult struct {
	Score          float64  `json:"score"`
	MeetsThreshold bool     `json:"meets_threshold"`
	Threshold      float64  `json:"threshold"`
	DataSource     string   `json:"data_source"`
	Issues         []string `json:"issues,omitempty"`
}

// Kind implements Response.
func (*DataQualityResult) Kind() RequestKind { return KindDataQuality }

// DataSourceColleague scores content quality by length and source.
type DataSourceColleague struct {
	base
	supported map[string]bool
	threshold float64
}

// NewDataSourceColleague creates a data-quality colleague. Empty sources use
// DefaultSupportedSources and a zero threshold uses DefaultQualityThreshold.
func NewDataSourceColleague(id string, sources []string, threshold float64) *DataSourceColleague {
	if len(sources) == 0 {
		sources = DefaultSupportedSources
	}
	if threshold == 0 {
		threshold = DefaultQualityThreshold
	}
	supported := make(map[string]bool, len(sources))
	for _, s := range sources {
		supported[strings.ToLower(s)] = true
	}
	return &DataSourceColleague{
		base:      base{id: id},
		supported: supported,
		threshold: threshold,
	}
}

// Capabilities implements Colleague.
func (c *DataSourceColleague) Capabilities() []RequestKind {
	return []RequestKind{KindDataQuality}
}

// Handle implements Colleague.
func (c *DataSourceColleague) Handle(ctx context.Context, req Request) (Response, error) {
	r, ok := req.(DataQualityRequest)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, req)
	}
	return c.Validate(r), nil
}

// Validate scores content: HighQualityScore when it is longer than ten
// characters and comes from a supported source, LowQualityScore otherwise.
func (c *DataSourceColleague) Validate(r DataQualityRequest) *DataQualityResult {
	var issues []string
	if utf8.RuneCountInString(r.Content) <= minQualityContentLength {
		issues = append(issues, "content too short")
	}
	if !c.supported[strings.ToLower(r.DataSource)] {
		issues = append(issues, fmt.Sprintf("unsupported data source %q", r.DataSource))
	}

	score := HighQualityScore
	if len(issues) > 0 {
		score = LowQualityScore
	}
	return &DataQualityResult{
		Score:          score,
		MeetsThreshold: score >= c.threshold,
		Threshold:      c.threshold,
		DataSource:     r.DataSource,
		Issues:         issues,
	}
}
