package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/oklog/ulid/v2"
)

// PostgresDB implements Repository for PostgreSQL using plain SQL and
// file-based migrations.
type PostgresDB struct {
	db         *sql.DB
	isEmbedded bool // refers to ephemeral instances
}

// SetupPostgresDatabase initializes PostgreSQL database with migrations.
// If connectionString is empty, it will use ephemeral PostgreSQL.
func SetupPostgresDatabase(connectionString string) (*PostgresDB, error) {
	var db *sql.DB
	var isEmbedded bool
	var err error

	if connectionString == "" {
		// Use ephemeral PostgreSQL for development
		Logger.Info("No connection string provided, using ephemeral PostgreSQL...")

		ephemeralDB, err := SetupEphemeralPostgresDatabase()
		if err != nil {
			return nil, fmt.Errorf("failed to setup ephemeral postgres: %w", err)
		}

		// Return the PostgresDB part, the ephemeral wrapper will handle cleanup
		return ephemeralDB.PostgresDB, nil
	} else {
		isEmbedded = false
		Logger.Info("Connecting to external PostgreSQL/CockroachDB server...")
	}

	// Open PostgreSQL database
	db, err = sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	Logger.Info("Connected to PostgreSQL database successfully")

	// Run migrations
	Logger.Info("Running database migrations...")
	if err := runPostgresMigrations(db); err != nil {
		Logger.Error("Failed to run database migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	Logger.Info("Database migrations completed successfully")

	return &PostgresDB{
		db:         db,
		isEmbedded: isEmbedded,
	}, nil
}

func runPostgresMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Try to find the migrations directory
	// First try from project root
	migrationsPath, err := filepath.Abs("database/migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// If running from within the database directory (during tests), adjust path
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		migrationsPath, err = filepath.Abs("migrations")
		if err != nil {
			return fmt.Errorf("failed to get migrations path: %w", err)
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Check current version and apply migrations
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if dirty {
		// Try to force clean and retry
		Logger.Warn("Database is in dirty state, attempting to recover")
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
	}

	// Apply latest migrations
	Logger.Info("Applying database migrations")
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	Logger.Info("Database migrations completed successfully")
	return nil
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return err
		}
	}

	// Note: Ephemeral PostgreSQL cleanup is handled by EphemeralPostgresDB.Close()

	return nil
}

const conversionColumns = `id, ulid, source_name, source_path, output_path, artifact_dir, hash,
	       strategy, status, score, quality_level, rounds, tokens_used, degraded, error,
	       created_at, updated_at, completed_at`

// SaveConversion saves or updates a conversion
func (p *PostgresDB) SaveConversion(conv *Conversion) error {
	query := `
		INSERT INTO conversions (ulid, source_name, source_path, output_path, artifact_dir, hash,
			strategy, status, score, quality_level, rounds, tokens_used, degraded, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT(ulid) DO UPDATE SET
			source_name = EXCLUDED.source_name,
			source_path = EXCLUDED.source_path,
			output_path = EXCLUDED.output_path,
			artifact_dir = EXCLUDED.artifact_dir,
			hash = EXCLUDED.hash,
			strategy = EXCLUDED.strategy,
			status = EXCLUDED.status,
			score = EXCLUDED.score,
			quality_level = EXCLUDED.quality_level,
			rounds = EXCLUDED.rounds,
			tokens_used = EXCLUDED.tokens_used,
			degraded = EXCLUDED.degraded,
			error = EXCLUDED.error,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	err := p.db.QueryRow(query,
		conv.ULID.String(), conv.SourceName, conv.SourcePath, conv.OutputPath, conv.ArtifactDir,
		conv.Hash, conv.Strategy, conv.Status, conv.Score, conv.QualityLevel,
		conv.Rounds, conv.TokensUsed, conv.Degraded, conv.Error, conv.CreatedAt, conv.UpdatedAt,
	).Scan(&conv.StormID)

	return err
}

func scanConversion(row interface{ Scan(...interface{}) error }) (*Conversion, error) {
	conv := &Conversion{}
	var ulidStr string
	var outputPath, artifactDir, qualityLevel, errorMsg sql.NullString

	err := row.Scan(
		&conv.StormID, &ulidStr, &conv.SourceName, &conv.SourcePath, &outputPath, &artifactDir,
		&conv.Hash, &conv.Strategy, &conv.Status, &conv.Score, &qualityLevel,
		&conv.Rounds, &conv.TokensUsed, &conv.Degraded, &errorMsg,
		&conv.CreatedAt, &conv.UpdatedAt, &conv.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.OutputPath = outputPath.String
	conv.ArtifactDir = artifactDir.String
	conv.QualityLevel = qualityLevel.String
	conv.Error = errorMsg.String

	parsed, err := ulid.Parse(ulidStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ULID: %w", err)
	}
	conv.ULID = parsed

	return conv, nil
}

// GetConversionByID retrieves a conversion by ID
func (p *PostgresDB) GetConversionByID(id int) (*Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions WHERE id = $1`
	return scanConversion(p.db.QueryRow(query, id))
}

// GetConversionByULID retrieves a conversion by ULID
func (p *PostgresDB) GetConversionByULID(ulidStr string) (*Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions WHERE ulid = $1`
	return scanConversion(p.db.QueryRow(query, ulidStr))
}

// GetConversionByHash retrieves a conversion by source file hash
func (p *PostgresDB) GetConversionByHash(hash string) (*Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions WHERE hash = $1`
	conv, err := scanConversion(p.db.QueryRow(query, hash))
	if err == sql.ErrNoRows {
		return nil, nil // No duplicate found
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetNewestConversions retrieves the newest conversions
func (p *PostgresDB) GetNewestConversions(limit int) ([]Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversions ORDER BY created_at DESC LIMIT $1`

	rows, err := p.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversions(rows)
}

// GetConversionsWithPagination retrieves conversions with pagination support
func (p *PostgresDB) GetConversionsWithPagination(page int, pageSize int) ([]Conversion, int, error) {
	var totalCount int
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM conversions`).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	query := `SELECT ` + conversionColumns + ` FROM conversions ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := p.db.Query(query, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	convs, err := scanConversions(rows)
	return convs, totalCount, err
}

// DeleteConversion deletes a conversion by ULID
func (p *PostgresDB) DeleteConversion(ulidStr string) error {
	_, err := p.db.Exec(`DELETE FROM conversions WHERE ulid = $1`, ulidStr)
	return err
}

// UpdateConversionStatus updates the status and error of a conversion
func (p *PostgresDB) UpdateConversionStatus(ulidStr string, status ConversionStatus, errorMsg string) error {
	now := time.Now()
	var completedAt interface{}
	if status == ConversionCompleted || status == ConversionFailed {
		completedAt = now
	}

	query := `
		UPDATE conversions
		SET status = $1, error = $2, updated_at = $3, completed_at = COALESCE($4, completed_at)
		WHERE ulid = $5
	`
	_, err := p.db.Exec(query, status, errorMsg, now, completedAt, ulidStr)
	return err
}

// UpdateConversionResult records the quality outcome of a conversion
func (p *PostgresDB) UpdateConversionResult(ulidStr string, score float64, qualityLevel string, rounds int, tokensUsed int, degraded bool) error {
	query := `
		UPDATE conversions
		SET score = $1, quality_level = $2, rounds = $3, tokens_used = $4, degraded = $5, updated_at = $6
		WHERE ulid = $7
	`
	_, err := p.db.Exec(query, score, qualityLevel, rounds, tokensUsed, degraded, time.Now(), ulidStr)
	return err
}

// DeleteOldConversions deletes completed conversions older than the given
// duration and returns the deleted records.
func (p *PostgresDB) DeleteOldConversions(olderThan time.Duration) ([]Conversion, error) {
	cutoffTime := time.Now().Add(-olderThan)

	query := `SELECT ` + conversionColumns + ` FROM conversions
		WHERE status IN ($1, $2) AND completed_at < $3`
	rows, err := p.db.Query(query, ConversionCompleted, ConversionFailed, cutoffTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs, err := scanConversions(rows)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, nil
	}

	_, err = p.db.Exec(`DELETE FROM conversions WHERE status IN ($1, $2) AND completed_at < $3`,
		ConversionCompleted, ConversionFailed, cutoffTime)
	if err != nil {
		return nil, err
	}

	return convs, nil
}

func scanConversions(rows *sql.Rows) ([]Conversion, error) {
	var convs []Conversion
	for rows.Next() {
		conv, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		var job Job
		var idStr string
		var errorMsg, result sql.NullString

		err := rows.Scan(
			&idStr,
			&job.Type,
			&job.Status,
			&job.Progress,
			&job.CurrentStep,
			&job.TotalSteps,
			&job.Message,
			&errorMsg,
			&result,
			&job.CreatedAt,
			&job.UpdatedAt,
			&job.StartedAt,
			&job.CompletedAt,
		)
		if err != nil {
			return nil, err
		}

		job.Error = errorMsg.String
		job.Result = result.String

		job.ID, err = ulid.Parse(idStr)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
