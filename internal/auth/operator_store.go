package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

var (
	// ErrOperatorNotFound is returned when no operator has the given email
	ErrOperatorNotFound = errors.New("operator not found")
	// ErrInvalidCredentials is returned when the password does not match
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOperatorExists is returned when the email is already registered
	ErrOperatorExists = errors.New("operator already exists")
)

const operatorSchema = `
CREATE TABLE IF NOT EXISTS operators (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL,
	email           TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const uniqueViolation = "23505"

// Querier is the subset of pgxpool.Pool used by the operator store
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Execer runs statements that return no rows
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// EnsureOperatorSchema creates the operators table when missing
func EnsureOperatorSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, operatorSchema); err != nil {
		return fmt.Errorf("failed to create operators table: %w", err)
	}
	return nil
}

// OperatorStore looks up operators in the operators table
type OperatorStore struct {
	db Querier
}

// NewOperatorStore creates an operator store backed by db
func NewOperatorStore(db Querier) *OperatorStore {
	return &OperatorStore{db: db}
}

// FindByEmail loads the operator registered under email
func (s *OperatorStore) FindByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var op models.Operator
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, hashed_password, created_at
		FROM operators
		WHERE email = $1
	`, email).Scan(&op.ID, &op.Name, &op.Email, &op.HashedPassword, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("failed to query operator: %w", err)
	}
	return &op, nil
}

// Authenticate returns the operator when email and password match
func (s *OperatorStore) Authenticate(ctx context.Context, email, password string) (*models.Operator, error) {
	op, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.HashedPassword), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return op, nil
}

// CreateOperator registers a new operator and returns its id
func (s *OperatorStore) CreateOperator(ctx context.Context, name, email, password string) (string, error) {
	hashed, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	var id string
	err = s.db.QueryRow(ctx, `
		INSERT INTO operators (id, name, email, hashed_password)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, uuid.New().String(), name, email, hashed).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("%w: %s", ErrOperatorExists, email)
		}
		return "", fmt.Errorf("failed to insert operator: %w", err)
	}
	return id, nil
}

// HashPassword hashes a plaintext password with bcrypt's default cost
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
