package descriptor

import (
	"fmt"
	"strings"

	"github.com/jo-hoe/opticderm/internal/catalog"
)

type meaningKey struct {
	descriptor     string
	classification Classification
}

var meanings = map[meaningKey]string{
	{"keratin dominance", Elevated}: "May indicate hyperkeratosis or thickened cornified layers.",
	{"keratin dominance", Reduced}:  "May indicate altered differentiation or reduced barrier function.",
	{"keratin dominance", Normal}:   "Keratin signal is consistent with healthy reference tissue.",

	{"metabolic state", Elevated}: "May indicate increased glycolytic activity, as seen in proliferating cells.",
	{"metabolic state", Reduced}:  "May indicate reduced metabolic activity or quiescent tissue.",
	{"metabolic state", Normal}:   "Metabolic activity is consistent with healthy reference tissue.",

	{"organization index", Elevated}: "Tissue architecture appears unusually regular.",
	{"organization index", Reduced}:  "May indicate architectural disorder, such as disrupted layering.",
	{"organization index", Normal}:   "Tissue architecture is consistent with healthy reference tissue.",
}

var fallbackMeanings = map[Classification]string{
	Elevated: "May indicate hyperkeratosis or altered metabolic activity.",
	Reduced:  "May indicate altered differentiation or reduced barrier function.",
	Normal:   "Consistent with healthy reference tissue.",
}

// Explain assembles the plain-language explanation for one measurement
func Explain(roi catalog.ROIOption, tissue string, d catalog.Descriptor, value catalog.Value, r catalog.ReferenceRange, c Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "In the %s region, %s is %s", roi.ID, d.Name, value.String())
	if d.Unit != "" {
		fmt.Fprintf(&b, " %s", d.Unit)
	}
	fmt.Fprintf(&b, " (%s; reference for %s: %s). ", c.Phrase(), tissue, FormatRange(d, r))

	meaning, ok := meanings[meaningKey{descriptor: d.Name, classification: c}]
	if !ok {
		meaning = fallbackMeanings[c]
	}
	b.WriteString(meaning)
	return b.String()
}

// FormatRange renders a reference range for display
func FormatRange(d catalog.Descriptor, r catalog.ReferenceRange) string {
	if d.Kind == catalog.KindCategorical {
		return strings.Join(r.Normal, ", ")
	}
	return fmt.Sprintf("%.2f–%.2f", r.Low, r.High)
}
