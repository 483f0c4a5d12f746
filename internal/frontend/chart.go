package frontend

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jo-hoe/opticderm/internal/descriptor"
)

var classificationColors = map[descriptor.Classification]string{
	descriptor.Normal:   "#2e7d32",
	descriptor.Elevated: "#c62828",
	descriptor.Reduced:  "#1565c0",
}

// renderRangeChart draws every measurement as a bar showing where the value sits in its
// reference range: 0 is the lower bound, 100 the upper bound
func renderRangeChart(result *descriptor.Result) (string, error) {
	names := make([]string, 0, len(result.Measurements))
	data := make([]opts.BarData, 0, len(result.Measurements))
	for _, m := range result.Measurements {
		names = append(names, m.Descriptor.Name)
		data = append(data, opts.BarData{
			Name:  fmt.Sprintf("%s (%s)", m.Value.String(), m.Classification),
			Value: math.Round(m.Deviation*1000) / 10,
			ItemStyle: &opts.ItemStyle{
				Color: classificationColors[m.Classification],
			},
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "100%",
			Height: "320px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Position within reference range",
			Subtitle: fmt.Sprintf("%s, %s region", result.Biopsy.Tissue, result.ROI.ID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show: opts.Bool(true),
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "% of normal range",
		}),
	)

	bar.SetXAxis(names).
		AddSeries("position", data).
		SetSeriesOptions(func(s *charts.SingleSeries) {
			s.MarkLines = &opts.MarkLines{
				Data: []interface{}{
					opts.MarkLineNameYAxisItem{Name: "Range low", YAxis: 0},
					opts.MarkLineNameYAxisItem{Name: "Range high", YAxis: 100},
				},
				MarkLineStyle: opts.MarkLineStyle{
					Symbol: []string{"none", "none"},
					LineStyle: &opts.LineStyle{
						Color: "rgba(128, 128, 128, 0.6)",
						Type:  "dashed",
						Width: 1.5,
					},
				},
			}
		})

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
