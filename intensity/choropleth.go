package intensity

import (
	"strings"

	"github.com/samber/lo"
)

// CountryCount is one row of the location endpoint.
type CountryCount struct {
	CountryCode  string `json:"countryCode"`
	VisitorCount int    `json:"visitorCount"`
}

// CountryStyle is a country's count with its fill.
type CountryStyle struct {
	CountryCode  string `json:"country_code"`
	VisitorCount int    `json:"visitor_count"`
	Style        Style  `json:"style"`
}

// Choropleth styles every country relative to the busiest one. Rows with an
// empty code are skipped and duplicate codes are merged; input order is kept.
func Choropleth(counts []CountryCount, p Palette) []CountryStyle {
	merged := make(map[string]int, len(counts))
	order := make([]string, 0, len(counts))
	for _, c := range counts {
		code := strings.ToUpper(strings.TrimSpace(c.CountryCode))
		if code == "" {
			continue
		}
		if _, seen := merged[code]; !seen {
			order = append(order, code)
		}
		merged[code] += max(c.VisitorCount, 0)
	}

	maxCount := max(lo.Max(lo.Values(merged)), 1)
	return lo.Map(order, func(code string, _ int) CountryStyle {
		n := merged[code]
		return CountryStyle{
			CountryCode:  code,
			VisitorCount: n,
			Style:        p.Map(float64(n), float64(maxCount)),
		}
	})
}
