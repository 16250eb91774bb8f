package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// EnrollmentRepository provides PostgreSQL-backed enrollment storage.
// Embeddings are stored as pgvector vectors (float32).
type EnrollmentRepository struct {
	pool *Pool
}

// NewEnrollmentRepository creates a new PostgreSQL enrollment repository
func NewEnrollmentRepository(pool *Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

func toVector(e []float64) pgvector.Vector {
	v := make([]float32, len(e))
	for i, x := range e {
		v[i] = float32(x)
	}
	return pgvector.NewVector(v)
}

func fromVector(v pgvector.Vector) []float64 {
	s := v.Slice()
	e := make([]float64, len(s))
	for i, x := range s {
		e[i] = float64(x)
	}
	return e
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func scanEnrollment(row rowScanner) (*database.StoredEnrollment, error) {
	var e database.StoredEnrollment
	var vec pgvector.Vector
	if err := row.Scan(&e.StudentID, &e.DisplayName, &vec, &e.Model, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Embedding = fromVector(vec)
	return &e, nil
}

// GetEnrollment retrieves the enrollment of a student, returns nil if not found
func (r *EnrollmentRepository) GetEnrollment(ctx context.Context, studentID string) (*database.StoredEnrollment, error) {
	query := `
		SELECT student_id, display_name, embedding, model, created_at
		FROM enrollments
		WHERE student_id = $1
	`
	e, err := scanEnrollment(r.pool.QueryRow(ctx, query, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query enrollment: %w", err)
	}
	return e, nil
}

// ListEnrollments returns all enrollments ordered by student ID
func (r *EnrollmentRepository) ListEnrollments(ctx context.Context) ([]database.StoredEnrollment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT student_id, display_name, embedding, model, created_at
		FROM enrollments
		ORDER BY student_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

// SaveEnrollment stores the enrollment, replacing any previous one for the student
func (r *EnrollmentRepository) SaveEnrollment(ctx context.Context, e *database.StoredEnrollment) error {
	if len(e.Embedding) == 0 {
		return errors.New("enrollment embedding is empty")
	}
	query := `
		INSERT INTO enrollments (student_id, display_name, embedding, dim, model, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		ON CONFLICT (student_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			model = EXCLUDED.model,
			created_at = EXCLUDED.created_at
	`
	_, err := r.pool.Exec(ctx, query, e.StudentID, e.DisplayName, toVector(e.Embedding), e.Dim(), e.Model, nullTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	return nil
}

// DeleteEnrollment removes the enrollment of a student
func (r *EnrollmentRepository) DeleteEnrollment(ctx context.Context, studentID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM enrollments WHERE student_id = $1", studentID); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// NearestEnrollments lists the k enrollments closest to query by cosine distance.
// Only enrollments with the query's dimension are compared.
func (r *EnrollmentRepository) NearestEnrollments(ctx context.Context, query []float64, k int) ([]database.IndexHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT student_id, display_name, 1 - (embedding <=> $1) AS similarity
		FROM enrollments
		WHERE dim = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, toVector(query), len(query), k)
	if err != nil {
		return nil, fmt.Errorf("nearest enrollments: %w", err)
	}
	defer rows.Close()

	var hits []database.IndexHit
	for rows.Next() {
		var h database.IndexHit
		if err := rows.Scan(&h.StudentID, &h.DisplayName, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scan nearest enrollment: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest enrollments: %w", err)
	}
	return hits, nil
}
