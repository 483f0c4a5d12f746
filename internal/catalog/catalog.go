package catalog

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

type rangeKey struct {
	tissue     string
	descriptor string
}

type ruleKey struct {
	tissue string
	roi    string
}

// Catalog holds the static reference data of the explorer. It is immutable after New
// and safe for concurrent use.
type Catalog struct {
	patients    []Patient
	modalities  []Modality
	roiOptions  []ROIOption
	biopsies    []Biopsy
	descriptors []Descriptor

	patientByID    map[string]int
	modalityByID   map[string]int
	roiByID        map[string]int
	biopsyByID     map[string]int
	descriptorByID map[string]int
	biopsyIndex    map[string][]int
	ranges         map[rangeKey]ReferenceRange
	rules          map[ruleKey]Rule
}

// New indexes def and checks that it is structurally sound. It does not check
// reference range coverage, see Validate.
func New(def Definition) (*Catalog, error) {
	c := &Catalog{
		patients:       slices.Clone(def.Patients),
		modalities:     slices.Clone(def.Modalities),
		roiOptions:     slices.Clone(def.ROIOptions),
		descriptors:    make([]Descriptor, 0, len(def.Descriptors)),
		patientByID:    make(map[string]int),
		modalityByID:   make(map[string]int),
		roiByID:        make(map[string]int),
		biopsyByID:     make(map[string]int),
		descriptorByID: make(map[string]int),
		biopsyIndex:    make(map[string][]int),
		ranges:         make(map[rangeKey]ReferenceRange),
		rules:          make(map[ruleKey]Rule),
	}

	if err := indexUnique(c.patientByID, len(c.patients), func(i int) string { return c.patients[i].ID }, "patient"); err != nil {
		return nil, err
	}
	if err := indexUnique(c.modalityByID, len(c.modalities), func(i int) string { return c.modalities[i].ID }, "modality"); err != nil {
		return nil, err
	}
	if err := indexUnique(c.roiByID, len(c.roiOptions), func(i int) string { return c.roiOptions[i].ID }, "roi option"); err != nil {
		return nil, err
	}
	for _, roi := range c.roiOptions {
		if !roi.Region.valid() {
			return nil, fmt.Errorf("roi option %s has an invalid region %+v", roi.ID, roi.Region)
		}
	}

	for _, d := range def.Descriptors {
		if d.Kind == "" {
			d.Kind = KindNumeric
		}
		switch d.Kind {
		case KindNumeric:
			if d.Mock.Min > d.Mock.Max {
				return nil, fmt.Errorf("descriptor %q has mock min %.2f above max %.2f", d.Name, d.Mock.Min, d.Mock.Max)
			}
		case KindCategorical:
			if len(d.Levels) == 0 {
				return nil, fmt.Errorf("categorical descriptor %q has no levels", d.Name)
			}
		default:
			return nil, fmt.Errorf("descriptor %q has unsupported kind %q", d.Name, d.Kind)
		}
		d.Levels = slices.Clone(d.Levels)
		c.descriptors = append(c.descriptors, d)
	}
	if err := indexUnique(c.descriptorByID, len(c.descriptors), func(i int) string { return c.descriptors[i].Name }, "descriptor"); err != nil {
		return nil, err
	}

	for _, b := range def.Biopsies {
		if _, ok := c.patientByID[b.PatientID]; !ok {
			return nil, fmt.Errorf("biopsy %s references unknown patient %q", b.ID, b.PatientID)
		}
		for _, roi := range b.ROIs {
			if _, ok := c.roiByID[roi]; !ok {
				return nil, fmt.Errorf("biopsy %s references unknown roi %q", b.ID, roi)
			}
		}
		for _, m := range b.Modalities {
			if _, ok := c.modalityByID[m]; !ok {
				return nil, fmt.Errorf("biopsy %s references unknown modality %q", b.ID, m)
			}
		}
		if len(b.Modalities) == 0 {
			for _, m := range c.modalities {
				b.Modalities = append(b.Modalities, m.ID)
			}
		}
		b.ROIs = slices.Clone(b.ROIs)
		c.biopsies = append(c.biopsies, b)
	}
	if err := indexUnique(c.biopsyByID, len(c.biopsies), func(i int) string { return c.biopsies[i].ID }, "biopsy"); err != nil {
		return nil, err
	}
	for i, b := range c.biopsies {
		c.biopsyIndex[b.PatientID] = append(c.biopsyIndex[b.PatientID], i)
	}

	for _, r := range def.ReferenceRanges {
		d, ok := c.descriptorOK(r.Descriptor)
		if !ok {
			return nil, fmt.Errorf("reference range for tissue %q references unknown descriptor %q", r.Tissue, r.Descriptor)
		}
		if d.Kind == KindNumeric && r.Low > r.High {
			return nil, fmt.Errorf("reference range %q/%q has low %.2f above high %.2f", r.Tissue, r.Descriptor, r.Low, r.High)
		}
		if d.Kind == KindCategorical {
			if len(r.Normal) == 0 {
				return nil, fmt.Errorf("reference range %q/%q has no normal levels", r.Tissue, r.Descriptor)
			}
			if err := checkNormalSpan(d, r); err != nil {
				return nil, err
			}
		}
		key := rangeKey{tissue: r.Tissue, descriptor: r.Descriptor}
		if _, exists := c.ranges[key]; exists {
			return nil, fmt.Errorf("duplicate reference range %q/%q", r.Tissue, r.Descriptor)
		}
		r.Normal = slices.Clone(r.Normal)
		c.ranges[key] = r
	}

	tissues := make(map[string]bool)
	for _, b := range c.biopsies {
		tissues[b.Tissue] = true
	}
	for _, rule := range def.Rules {
		if !tissues[rule.Tissue] {
			return nil, fmt.Errorf("rule for roi %q references tissue %q that no biopsy has", rule.ROI, rule.Tissue)
		}
		if _, ok := c.roiByID[rule.ROI]; !ok {
			return nil, fmt.Errorf("rule for tissue %q references unknown roi %q", rule.Tissue, rule.ROI)
		}
		for name, v := range rule.Values {
			d, ok := c.descriptorOK(name)
			if !ok {
				return nil, fmt.Errorf("rule %q/%q references unknown descriptor %q", rule.Tissue, rule.ROI, name)
			}
			if (d.Kind == KindCategorical) != v.Categorical {
				return nil, fmt.Errorf("rule %q/%q has a %s value for %s descriptor %q", rule.Tissue, rule.ROI, valueKind(v), d.Kind, name)
			}
			if v.Categorical && d.LevelIndex(v.Level) < 0 {
				return nil, fmt.Errorf("rule %q/%q uses unknown level %q for %q", rule.Tissue, rule.ROI, v.Level, name)
			}
		}
		key := ruleKey{tissue: rule.Tissue, roi: rule.ROI}
		if _, exists := c.rules[key]; exists {
			return nil, fmt.Errorf("duplicate rule %q/%q", rule.Tissue, rule.ROI)
		}
		c.rules[key] = rule
	}

	return c, nil
}

func indexUnique(index map[string]int, n int, id func(int) string, what string) error {
	for i := 0; i < n; i++ {
		key := id(i)
		if key == "" {
			return fmt.Errorf("%s at index %d has empty id", what, i)
		}
		if _, exists := index[key]; exists {
			return fmt.Errorf("duplicate %s id: %s", what, key)
		}
		index[key] = i
	}
	return nil
}

// checkNormalSpan requires the normal levels of a categorical range to be known and
// to form one contiguous run of the descriptor's ordered levels
func checkNormalSpan(d Descriptor, r ReferenceRange) error {
	indexes := make([]int, 0, len(r.Normal))
	for _, level := range r.Normal {
		idx := d.LevelIndex(level)
		if idx < 0 {
			return fmt.Errorf("reference range %q/%q uses unknown level %q", r.Tissue, r.Descriptor, level)
		}
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)
	indexes = slices.Compact(indexes)
	if indexes[len(indexes)-1]-indexes[0]+1 != len(indexes) {
		return fmt.Errorf("reference range %q/%q has normal levels %v with a gap in %v", r.Tissue, r.Descriptor, r.Normal, d.Levels)
	}
	return nil
}

func valueKind(v Value) string {
	if v.Categorical {
		return "categorical"
	}
	return "numeric"
}

// Validate checks that every biopsy tissue has a reference range for every descriptor.
// All violations are reported.
func (c *Catalog) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, b := range c.biopsies {
		if seen[b.Tissue] {
			continue
		}
		seen[b.Tissue] = true
		for _, d := range c.descriptors {
			if _, ok := c.ranges[rangeKey{tissue: b.Tissue, descriptor: d.Name}]; !ok {
				errs = append(errs, fmt.Errorf("%w: tissue %q, descriptor %q", ErrNoReferenceRange, b.Tissue, d.Name))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) ListPatients() []Patient {
	return slices.Clone(c.patients)
}

func (c *Catalog) Patient(id string) (Patient, error) {
	i, ok := c.patientByID[id]
	if !ok {
		return Patient{}, fmt.Errorf("%w: patient %q", ErrUnknownSelection, id)
	}
	return c.patients[i], nil
}

// ListBiopsies returns the biopsies of a patient. A patient without biopsies yields an empty slice.
func (c *Catalog) ListBiopsies(patientID string) ([]Biopsy, error) {
	if _, err := c.Patient(patientID); err != nil {
		return nil, err
	}
	indexes := c.biopsyIndex[patientID]
	result := make([]Biopsy, 0, len(indexes))
	for _, i := range indexes {
		result = append(result, cloneBiopsy(c.biopsies[i]))
	}
	return result, nil
}

func (c *Catalog) Biopsy(id string) (Biopsy, error) {
	i, ok := c.biopsyByID[id]
	if !ok {
		return Biopsy{}, fmt.Errorf("%w: biopsy %q", ErrUnknownSelection, id)
	}
	return cloneBiopsy(c.biopsies[i]), nil
}

// ListROIOptions returns the regions selectable for a biopsy, in the biopsy's order
func (c *Catalog) ListROIOptions(biopsyID string) ([]ROIOption, error) {
	b, err := c.Biopsy(biopsyID)
	if err != nil {
		return nil, err
	}
	result := make([]ROIOption, 0, len(b.ROIs))
	for _, id := range b.ROIs {
		result = append(result, c.roiOptions[c.roiByID[id]])
	}
	return result, nil
}

func (c *Catalog) ROIOption(id string) (ROIOption, error) {
	i, ok := c.roiByID[id]
	if !ok {
		return ROIOption{}, fmt.Errorf("%w: roi %q", ErrUnknownSelection, id)
	}
	return c.roiOptions[i], nil
}

func (c *Catalog) Modalities() []Modality {
	return slices.Clone(c.modalities)
}

func (c *Catalog) Modality(id string) (Modality, error) {
	i, ok := c.modalityByID[id]
	if !ok {
		return Modality{}, fmt.Errorf("%w: modality %q", ErrUnknownSelection, id)
	}
	return c.modalities[i], nil
}

// Descriptors returns the descriptor definitions in the order the engine reports them
func (c *Catalog) Descriptors() []Descriptor {
	result := make([]Descriptor, len(c.descriptors))
	for i, d := range c.descriptors {
		d.Levels = slices.Clone(d.Levels)
		result[i] = d
	}
	return result
}

func (c *Catalog) Descriptor(name string) (Descriptor, error) {
	d, ok := c.descriptorOK(name)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: descriptor %q", ErrUnknownSelection, name)
	}
	d.Levels = slices.Clone(d.Levels)
	return d, nil
}

func (c *Catalog) descriptorOK(name string) (Descriptor, bool) {
	i, ok := c.descriptorByID[name]
	if !ok {
		return Descriptor{}, false
	}
	return c.descriptors[i], true
}

func (c *Catalog) ReferenceRange(tissue, descriptor string) (ReferenceRange, error) {
	r, ok := c.ranges[rangeKey{tissue: tissue, descriptor: descriptor}]
	if !ok {
		return ReferenceRange{}, fmt.Errorf("%w: tissue %q, descriptor %q", ErrNoReferenceRange, tissue, descriptor)
	}
	r.Normal = slices.Clone(r.Normal)
	return r, nil
}

// Rule returns the pinned mock values for a (tissue, ROI) pair, if any
func (c *Catalog) Rule(tissue, roiID string) (Rule, bool) {
	r, ok := c.rules[ruleKey{tissue: tissue, roi: roiID}]
	r.Values = maps.Clone(r.Values)
	return r, ok
}

func cloneBiopsy(b Biopsy) Biopsy {
	b.ROIs = slices.Clone(b.ROIs)
	b.Modalities = slices.Clone(b.Modalities)
	return b
}
