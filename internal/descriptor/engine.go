package descriptor

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/jo-hoe/opticderm/internal/catalog"
)

// ErrInvalidROI is returned when the ROI is not selectable for the biopsy
var ErrInvalidROI = errors.New("invalid ROI for biopsy")

// Catalog is the read-only view of the catalog the engine depends on
type Catalog interface {
	Biopsy(id string) (catalog.Biopsy, error)
	ROIOption(id string) (catalog.ROIOption, error)
	Descriptors() []catalog.Descriptor
	ReferenceRange(tissue, descriptor string) (catalog.ReferenceRange, error)
	Rule(tissue, roiID string) (catalog.Rule, bool)
}

type Measurement struct {
	Descriptor     catalog.Descriptor     `json:"descriptor"`
	Value          catalog.Value          `json:"value"`
	Range          catalog.ReferenceRange `json:"referenceRange"`
	Classification Classification         `json:"classification"`
	Position       float64                `json:"position"`
	Deviation      float64                `json:"deviation"`
	Explanation    string                 `json:"explanation"`
}

type Result struct {
	Biopsy       catalog.Biopsy    `json:"biopsy"`
	ROI          catalog.ROIOption `json:"roi"`
	Measurements []Measurement     `json:"measurements"`
}

// Values maps descriptor name to computed value
func (r *Result) Values() map[string]catalog.Value {
	values := make(map[string]catalog.Value, len(r.Measurements))
	for _, m := range r.Measurements {
		values[m.Descriptor.Name] = m.Value
	}
	return values
}

// Classifications maps descriptor name to classification
func (r *Result) Classifications() map[string]Classification {
	classes := make(map[string]Classification, len(r.Measurements))
	for _, m := range r.Measurements {
		classes[m.Descriptor.Name] = m.Classification
	}
	return classes
}

// Engine derives mock descriptors for a biopsy region. It keeps no state between calls.
type Engine struct {
	catalog Catalog
}

func NewEngine(c Catalog) *Engine {
	return &Engine{catalog: c}
}

// Describe computes every catalog descriptor for the biopsy and ROI and classifies it
// against the reference range of the biopsy's tissue
func (e *Engine) Describe(biopsyID, roiID string) (*Result, error) {
	biopsy, err := e.catalog.Biopsy(biopsyID)
	if err != nil {
		return nil, err
	}
	if !biopsy.AllowsROI(roiID) {
		if _, lookupErr := e.catalog.ROIOption(roiID); lookupErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidROI, lookupErr)
		}
		return nil, fmt.Errorf("%w: roi %q is not one of %v for biopsy %s", ErrInvalidROI, roiID, biopsy.ROIs, biopsy.ID)
	}
	roi, err := e.catalog.ROIOption(roiID)
	if err != nil {
		return nil, err
	}

	rule, hasRule := e.catalog.Rule(biopsy.Tissue, roi.ID)
	descriptors := e.catalog.Descriptors()
	result := &Result{
		Biopsy:       biopsy,
		ROI:          roi,
		Measurements: make([]Measurement, 0, len(descriptors)),
	}

	for _, d := range descriptors {
		value, ok := rule.Values[d.Name]
		if !hasRule || !ok {
			value = mockValue(d, biopsy.ID, roi.ID)
		}

		ref, err := e.catalog.ReferenceRange(biopsy.Tissue, d.Name)
		if err != nil {
			return nil, fmt.Errorf("cannot classify %q for biopsy %s: %w", d.Name, biopsy.ID, err)
		}
		class, err := Classify(d, value, ref)
		if err != nil {
			return nil, fmt.Errorf("cannot classify %q for biopsy %s: %w", d.Name, biopsy.ID, err)
		}

		result.Measurements = append(result.Measurements, Measurement{
			Descriptor:     d,
			Value:          value,
			Range:          ref,
			Classification: class,
			Position:       Position(d, value, ref),
			Deviation:      Deviation(d, value, ref),
			Explanation:    Explain(roi, biopsy.Tissue, d, value, ref, class),
		})
	}

	return result, nil
}

// mockValue derives a stable stand-in value from the biopsy, ROI and descriptor names
func mockValue(d catalog.Descriptor, biopsyID, roiID string) catalog.Value {
	h := fnv.New64a()
	_, _ = h.Write([]byte(biopsyID + "/" + roiID + "/" + d.Name))
	sum := h.Sum64()

	if d.Kind == catalog.KindCategorical {
		return catalog.LevelValue(d.Levels[sum%uint64(len(d.Levels))])
	}
	fraction := float64(sum>>11) / float64(1<<53)
	v := d.Mock.Min + fraction*(d.Mock.Max-d.Mock.Min)
	return catalog.NumberValue(math.Round(v*100) / 100)
}
