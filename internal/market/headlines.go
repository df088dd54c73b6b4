package market

import "context"

// cannedHeadlines is the static headline pool served until a real news
// feed is wired in.
var cannedHeadlines = []string{
	"Bitcoin holds steady above $95,000 as institutional interest grows",
	"Major banks announce blockchain integration plans",
	"Regulatory clarity expected in Q1 2024",
	"Bitcoin network hash rate reaches all-time high",
	"Analysts predict continued volatility in crypto markets",
}

// HeadlinesSource provides recent market headlines
type HeadlinesSource interface {
	FetchHeadlines(ctx context.Context, n int) (*Headlines, error)
}

// StaticHeadlines serves the canned headline pool
type StaticHeadlines struct{}

// NewStaticHeadlines creates the static headline source
func NewStaticHeadlines() *StaticHeadlines {
	return &StaticHeadlines{}
}

// FetchHeadlines returns up to n canned headlines
func (s *StaticHeadlines) FetchHeadlines(_ context.Context, n int) (*Headlines, error) {
	items := cannedHeadlines
	if n > 0 && n < len(items) {
		items = items[:n]
	}
	out := make([]string, len(items))
	copy(out, items)
	return &Headlines{Items: out, Source: SourceStatic}, nil
}
