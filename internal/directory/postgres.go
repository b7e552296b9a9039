package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/camayank/clientportal-realtime/internal/domain"
)

// ConnectPostgres opens a pgx pool against the portal database and verifies
// connectivity.
func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// PostgresDirectory implements domain.UserDirectory and
// domain.ProjectDirectory against the portal's users and projects tables.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// LookupUser resolves a user id to its identity. A user that no longer
// exists yields domain.ErrUserNotFound.
func (d *PostgresDirectory) LookupUser(ctx context.Context, id domain.UserID) (domain.Identity, error) {
	var role string
	err := d.pool.QueryRow(ctx,
		`SELECT role FROM users WHERE id = $1`, int64(id),
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("failed to look up user %d: %w", id, err)
	}

	return domain.Identity{UserID: id, Role: domain.Role(role)}, nil
}

// ProjectMembers resolves a project id to its membership record.
func (d *PostgresDirectory) ProjectMembers(ctx context.Context, projectID int64) (domain.ProjectMembership, error) {
	var ownerID, staffID int64
	err := d.pool.QueryRow(ctx,
		`SELECT client_id, assigned_staff_id FROM projects WHERE id = $1`, projectID,
	).Scan(&ownerID, &staffID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProjectMembership{}, domain.ErrProjectNotFound
	}
	if err != nil {
		return domain.ProjectMembership{}, fmt.Errorf("failed to look up project %d: %w", projectID, err)
	}

	return domain.ProjectMembership{
		ProjectID:       projectID,
		OwnerID:         domain.UserID(ownerID),
		AssignedStaffID: domain.UserID(staffID),
	}, nil
}
