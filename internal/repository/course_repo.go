package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursely/backend/internal/models"
)

// CourseRepo is the settlement engine's read-side collaborator for course
// prices. Catalog management happens elsewhere; Create exists for seeding.
type CourseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *CourseRepo {
	return &CourseRepo{pool: pool}
}

func (r *CourseRepo) Create(ctx context.Context, c *models.Course) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO courses (id, title, description, price)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.Title, c.Description, c.Price).Scan(&c.CreatedAt)
}

func (r *CourseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var c models.Course
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, description, price, created_at FROM courses WHERE id = $1
	`, id).Scan(&c.ID, &c.Title, &c.Description, &c.Price, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PriceByID returns the course price. Not-found surfaces as pgx.ErrNoRows.
func (r *CourseRepo) PriceByID(ctx context.Context, id uuid.UUID) (int, error) {
	var price int
	err := r.pool.QueryRow(ctx, `SELECT price FROM courses WHERE id = $1`, id).Scan(&price)
	return price, err
}
