package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	if isInMemory(connectionString) {
		// every pooled connection would otherwise open its own empty database
		db.SetMaxOpenConns(1)
	}

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func isInMemory(connectionString string) bool {
	return connectionString == "" || strings.Contains(connectionString, ":memory:") || strings.Contains(connectionString, "mode=memory")
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		biopsy_id TEXT NOT NULL,
		modality TEXT NOT NULL,
		original_image BLOB,
		processed_image BLOB,
		created_at INTEGER NOT NULL,
		UNIQUE (biopsy_id, modality)
	)`)
	if err != nil {
		return nil, err
	}
	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	return s.db.Ping() == nil
}

func (s *SQLiteDatabase) SaveUpload(ctx context.Context, biopsyID, modality string, original, processed []byte) (*Upload, error) {
	upload := &Upload{
		ID:             uuid.NewString(),
		BiopsyID:       biopsyID,
		Modality:       modality,
		OriginalImage:  original,
		ProcessedImage: processed,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO uploads (id, biopsy_id, modality, original_image, processed_image, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (biopsy_id, modality) DO UPDATE SET
			id = excluded.id,
			original_image = excluded.original_image,
			processed_image = excluded.processed_image,
			created_at = excluded.created_at`,
		upload.ID, upload.BiopsyID, upload.Modality, upload.OriginalImage, upload.ProcessedImage, upload.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to save upload for %s/%s: %w", biopsyID, modality, err)
	}
	return upload, nil
}

func (s *SQLiteDatabase) GetUpload(ctx context.Context, biopsyID, modality string) (*Upload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, biopsy_id, modality, original_image, processed_image, created_at
		FROM uploads WHERE biopsy_id = ? AND modality = ?`, biopsyID, modality)

	var upload Upload
	var createdAt int64
	err := row.Scan(&upload.ID, &upload.BiopsyID, &upload.Modality, &upload.OriginalImage, &upload.ProcessedImage, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload for %s/%s: %w", biopsyID, modality, err)
	}
	upload.CreatedAt = time.Unix(0, createdAt).UTC()
	return &upload, nil
}

func (s *SQLiteDatabase) ListUploads(ctx context.Context, biopsyID string) ([]*Upload, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, biopsy_id, modality, created_at
		FROM uploads WHERE biopsy_id = ? ORDER BY modality`, biopsyID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	uploads := []*Upload{}
	for rows.Next() {
		var upload Upload
		var createdAt int64
		if err := rows.Scan(&upload.ID, &upload.BiopsyID, &upload.Modality, &createdAt); err != nil {
			return nil, err
		}
		upload.CreatedAt = time.Unix(0, createdAt).UTC()
		uploads = append(uploads, &upload)
	}
	return uploads, rows.Err()
}

func (s *SQLiteDatabase) DeleteUploadsForBiopsy(ctx context.Context, biopsyID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM uploads WHERE biopsy_id = ?", biopsyID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
