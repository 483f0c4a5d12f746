package database

import (
	"context"
	"database/sql"
)

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// SaveUpload stores the upload for (biopsy, modality), replacing any earlier one
	SaveUpload(ctx context.Context, biopsyID, modality string, original, processed []byte) (*Upload, error)
	// GetUpload returns nil without error when nothing was uploaded for the pair
	GetUpload(ctx context.Context, biopsyID, modality string) (*Upload, error)
	// ListUploads returns the uploads of a biopsy without image data, ordered by modality
	ListUploads(ctx context.Context, biopsyID string) ([]*Upload, error)
	// DeleteUploadsForBiopsy removes every upload of the biopsy and reports how many were removed
	DeleteUploadsForBiopsy(ctx context.Context, biopsyID string) (int64, error)
}
