package catalog

import "errors"

var (
	// ErrUnknownSelection is returned when a patient, biopsy, ROI, modality or descriptor id is not in the catalog
	ErrUnknownSelection = errors.New("unknown selection")
	// ErrNoReferenceRange is returned when a (tissue, descriptor) pair has no baseline
	ErrNoReferenceRange = errors.New("no reference range configured")
)
