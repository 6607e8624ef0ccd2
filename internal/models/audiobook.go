// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/listenarr/listenarr/internal/database"
)

var ErrAudiobookNotFound = errors.New("audiobook not found")

// Audiobook describes the title a request targets, plus whatever library
// placement we have learned about it.
type Audiobook struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Author           string     `json:"author"`
	Narrator         *string    `json:"narrator,omitempty"`
	ASIN             *string    `json:"asin,omitempty"`
	Series           *string    `json:"series,omitempty"`
	SeriesPart       *string    `json:"seriesPart,omitempty"`
	Year             *int       `json:"year,omitempty"`
	CoverArtURL      *string    `json:"coverArtUrl,omitempty"`
	FilePath         *string    `json:"filePath,omitempty"`
	LibraryGUID      *string    `json:"libraryGuid,omitempty"`
	LibraryRatingKey *string    `json:"libraryRatingKey,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// AudiobookStore manages audiobook rows.
type AudiobookStore struct {
	db database.Querier
}

func NewAudiobookStore(db database.Querier) *AudiobookStore {
	return &AudiobookStore{db: db}
}

func (s *AudiobookStore) Create(ctx context.Context, book *Audiobook) (*Audiobook, error) {
	if book.Title == "" {
		return nil, errors.New("title cannot be empty")
	}
	if book.Author == "" {
		return nil, errors.New("author cannot be empty")
	}

	query := `
		INSERT INTO audiobooks (title, author, narrator, asin, series, series_part, year, cover_art_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		book.Title, book.Author, book.Narrator, book.ASIN,
		book.Series, book.SeriesPart, book.Year, book.CoverArtURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create audiobook: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return s.Get(ctx, id)
}

func (s *AudiobookStore) Get(ctx context.Context, id int64) (*Audiobook, error) {
	query := `
		SELECT id, title, author, narrator, asin, series, series_part, year,
		       cover_art_url, file_path, library_guid, library_rating_key,
		       created_at, updated_at
		FROM audiobooks
		WHERE id = ?
	`
	book := &Audiobook{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&book.ID, &book.Title, &book.Author, &book.Narrator, &book.ASIN,
		&book.Series, &book.SeriesPart, &book.Year, &book.CoverArtURL,
		&book.FilePath, &book.LibraryGUID, &book.LibraryRatingKey,
		&book.CreatedAt, &book.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAudiobookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audiobook: %w", err)
	}
	return book, nil
}

// FindByTitleAuthor returns the first audiobook matching both fields
// case-insensitively, or ErrAudiobookNotFound.
func (s *AudiobookStore) FindByTitleAuthor(ctx context.Context, title, author string) (*Audiobook, error) {
	query := `
		SELECT id FROM audiobooks
		WHERE title = ? COLLATE NOCASE AND author = ? COLLATE NOCASE
		LIMIT 1
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query, title, author).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAudiobookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find audiobook: %w", err)
	}
	return s.Get(ctx, id)
}

// SetYear backfills the release year learned from the metadata cache.
func (s *AudiobookStore) SetYear(ctx context.Context, id int64, year int) error {
	query := `UPDATE audiobooks SET year = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, year, id); err != nil {
		return fmt.Errorf("failed to set audiobook year: %w", err)
	}
	return nil
}

// SetFilePath records where the organizer placed the audiobook on disk.
func (s *AudiobookStore) SetFilePath(ctx context.Context, id int64, path string) error {
	query := `UPDATE audiobooks SET file_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, path, id); err != nil {
		return fmt.Errorf("failed to set audiobook file path: %w", err)
	}
	return nil
}

// SetLibraryMatch persists the external library handle from a confirmed match.
func (s *AudiobookStore) SetLibraryMatch(ctx context.Context, id int64, guid, ratingKey string) error {
	query := `
		UPDATE audiobooks
		SET library_guid = ?, library_rating_key = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, guid, ratingKey, id); err != nil {
		return fmt.Errorf("failed to set audiobook library match: %w", err)
	}
	return nil
}
