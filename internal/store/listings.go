package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Listing is a stay that can be booked per night. Prices are integer
// cents to keep arithmetic exact.
type Listing struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Location           string    `json:"location"`
	PricePerNightCents int64     `json:"price_per_night_cents"`
	OwnerID            int64     `json:"owner_id"`
	IsAvailable        bool      `json:"is_available"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ListingsStore struct {
	db *pgxpool.Pool
}

func (s *ListingsStore) Create(ctx context.Context, listing *Listing) error {
	const query = `
		INSERT INTO listings (title, description, location, price_per_night_cents, owner_id, is_available)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	return s.db.QueryRow(ctx, query,
		listing.Title,
		listing.Description,
		listing.Location,
		listing.PricePerNightCents,
		listing.OwnerID,
		listing.IsAvailable,
	).Scan(&listing.ID, &listing.CreatedAt, &listing.UpdatedAt)
}

func (s *ListingsStore) GetByID(ctx context.Context, listingID int64) (*Listing, error) {
	const query = `
		SELECT id, title, description, location, price_per_night_cents, owner_id, is_available, created_at, updated_at
		FROM listings
		WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var l Listing
	err := s.db.QueryRow(ctx, query, listingID).Scan(
		&l.ID,
		&l.Title,
		&l.Description,
		&l.Location,
		&l.PricePerNightCents,
		&l.OwnerID,
		&l.IsAvailable,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &l, nil
}

func (s *ListingsStore) List(ctx context.Context, limit, offset int) ([]Listing, int, error) {
	const query = `
		SELECT id, title, description, location, price_per_night_cents, owner_id, is_available, created_at, updated_at,
		       COUNT(*) OVER() AS total_count
		FROM listings
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []Listing
		total int
	)
	for rows.Next() {
		var l Listing
		if err := rows.Scan(
			&l.ID,
			&l.Title,
			&l.Description,
			&l.Location,
			&l.PricePerNightCents,
			&l.OwnerID,
			&l.IsAvailable,
			&l.CreatedAt,
			&l.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}

	return out, total, rows.Err()
}

func (s *ListingsStore) Update(ctx context.Context, listing *Listing) error {
	const query = `
		UPDATE listings
		SET title = $1, description = $2, location = $3, price_per_night_cents = $4, is_available = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := s.db.QueryRow(ctx, query,
		listing.Title,
		listing.Description,
		listing.Location,
		listing.PricePerNightCents,
		listing.IsAvailable,
		listing.ID,
	).Scan(&listing.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	return nil
}

func (s *ListingsStore) Delete(ctx context.Context, listingID int64) error {
	const query = `DELETE FROM listings WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	res, err := s.db.Exec(ctx, query, listingID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
