package database

import "time"

// Upload is a user-supplied image that replaces the placeholder of one modality of a biopsy
type Upload struct {
	ID             string    `db:"id"`
	BiopsyID       string    `db:"biopsy_id"`
	Modality       string    `db:"modality"`
	OriginalImage  []byte    `db:"original_image"`  // bytes as uploaded
	ProcessedImage []byte    `db:"processed_image"` // PNG after the upload pipeline
	CreatedAt      time.Time `db:"created_at"`
}
