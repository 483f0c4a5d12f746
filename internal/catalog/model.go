package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind distinguishes numeric descriptors from categorical ones
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

type Patient struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type Biopsy struct {
	ID         string   `yaml:"id" json:"id"`
	PatientID  string   `yaml:"patientId" json:"patientId"`
	Tissue     string   `yaml:"tissue" json:"tissue"`
	ROIs       []string `yaml:"rois" json:"rois"`
	Modalities []string `yaml:"modalities" json:"modalities"`
}

// AllowsROI reports whether roiID is one of the biopsy's selectable regions
func (b Biopsy) AllowsROI(roiID string) bool {
	for _, id := range b.ROIs {
		if id == roiID {
			return true
		}
	}
	return false
}

// Region is a rectangle in fractional image coordinates, each bound in [0,1]
type Region struct {
	X0 float64 `yaml:"x0" json:"x0"`
	Y0 float64 `yaml:"y0" json:"y0"`
	X1 float64 `yaml:"x1" json:"x1"`
	Y1 float64 `yaml:"y1" json:"y1"`
}

func (r Region) valid() bool {
	inUnit := func(v float64) bool { return v >= 0 && v <= 1 }
	return inUnit(r.X0) && inUnit(r.Y0) && inUnit(r.X1) && inUnit(r.Y1) && r.X0 < r.X1 && r.Y0 < r.Y1
}

type ROIOption struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
	Region      Region `yaml:"region" json:"region"`
}

type Modality struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
}

// MockInterval bounds the values the mock formula may produce for a numeric descriptor
type MockInterval struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

type Descriptor struct {
	Name   string       `yaml:"name" json:"name"`
	Label  string       `yaml:"label" json:"label"`
	Unit   string       `yaml:"unit" json:"unit"`
	Kind   Kind         `yaml:"kind" json:"kind"`
	Levels []string     `yaml:"levels,omitempty" json:"levels,omitempty"`
	Mock   MockInterval `yaml:"mock" json:"-"`
}

// LevelIndex returns the ordinal position of level, or -1 if the descriptor has no such level
func (d Descriptor) LevelIndex(level string) int {
	for i, l := range d.Levels {
		if l == level {
			return i
		}
	}
	return -1
}

// ReferenceRange is the normal baseline for one descriptor in one tissue type.
// Numeric descriptors use Low/High (inclusive), categorical ones use Normal.
type ReferenceRange struct {
	Tissue     string   `yaml:"tissue" json:"tissue"`
	Descriptor string   `yaml:"descriptor" json:"descriptor"`
	Low        float64  `yaml:"low" json:"low"`
	High       float64  `yaml:"high" json:"high"`
	Normal     []string `yaml:"normal,omitempty" json:"normal,omitempty"`
}

// Rule pins mock values for a (tissue, ROI) pair instead of deriving them
type Rule struct {
	Tissue string           `yaml:"tissue"`
	ROI    string           `yaml:"roi"`
	Values map[string]Value `yaml:"values"`
}

// Value is either a number or a categorical level
type Value struct {
	Number      float64
	Level       string
	Categorical bool
}

func NumberValue(v float64) Value {
	return Value{Number: v}
}

func LevelValue(level string) Value {
	return Value{Level: level, Categorical: true}
}

func (v Value) String() string {
	if v.Categorical {
		return v.Level
	}
	return strconv.FormatFloat(v.Number, 'f', 2, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Categorical {
		return json.Marshal(v.Level)
	}
	return json.Marshal(v.Number)
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: descriptor value must be a scalar", node.Line)
	}
	switch node.ShortTag() {
	case "!!int", "!!float":
		number, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid number %q: %w", node.Line, node.Value, err)
		}
		*v = NumberValue(number)
	default:
		*v = LevelValue(node.Value)
	}
	return nil
}

// Definition is the raw, unindexed catalog content as it appears in YAML
type Definition struct {
	Patients        []Patient        `yaml:"patients"`
	Modalities      []Modality       `yaml:"modalities"`
	ROIOptions      []ROIOption      `yaml:"roiOptions"`
	Biopsies        []Biopsy         `yaml:"biopsies"`
	Descriptors     []Descriptor     `yaml:"descriptors"`
	ReferenceRanges []ReferenceRange `yaml:"referenceRanges"`
	Rules           []Rule           `yaml:"rules"`
}
