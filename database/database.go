package database

import (
	"crypto/md5"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ConversionStatus tracks a conversion through its lifecycle
type ConversionStatus string

const (
	ConversionPending   ConversionStatus = "pending"
	ConversionRunning   ConversionStatus = "running"
	ConversionCompleted ConversionStatus = "completed"
	ConversionFailed    ConversionStatus = "failed"
)

// Conversion is one PDF to DOCX conversion and its quality outcome
type Conversion struct {
	StormID      int // ID field (kept as StormID for backward compatibility)
	ULID         ulid.ULID
	SourceName   string // original upload filename
	SourcePath   string // stored PDF path
	OutputPath   string // built DOCX path
	ArtifactDir  string // renders and diff overlays
	Hash         string // md5 of the source PDF, used for duplicate detection
	Strategy     string // "A" or "B"
	Status       ConversionStatus
	Score        float64 // overall similarity, 0 until scored
	QualityLevel string  // green, yellow, red
	Rounds       int     // correction rounds run
	TokensUsed   int
	Degraded     bool // true when rendering or the vision API was unavailable
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Repository defines database operations
type Repository interface {
	Close() error
	SaveConversion(conv *Conversion) error
	GetConversionByID(id int) (*Conversion, error)
	GetConversionByULID(ulid string) (*Conversion, error)
	GetConversionByHash(hash string) (*Conversion, error)
	GetNewestConversions(limit int) ([]Conversion, error)
	GetConversionsWithPagination(page int, pageSize int) ([]Conversion, int, error)
	DeleteConversion(ulid string) error
	UpdateConversionStatus(ulid string, status ConversionStatus, errorMsg string) error
	UpdateConversionResult(ulid string, score float64, qualityLevel string, rounds int, tokensUsed int, degraded bool) error
	DeleteOldConversions(olderThan time.Duration) ([]Conversion, error)
	// Job tracking methods
	CreateJob(jobType JobType, message string) (*Job, error)
	UpdateJobProgress(jobID ulid.ULID, progress int, currentStep string) error
	UpdateJobStatus(jobID ulid.ULID, status JobStatus, message string) error
	UpdateJobError(jobID ulid.ULID, errorMsg string) error
	CompleteJob(jobID ulid.ULID, result string) error
	GetJob(jobID ulid.ULID) (*Job, error)
	GetRecentJobs(limit, offset int) ([]Job, error)
	GetActiveJobs() ([]Job, error)
	DeleteOldJobs(olderThan time.Duration) (int, error)
}

// NewConversion records a fresh upload. The hash guards against converting
// the same file twice; a duplicate returns the existing record.
func NewConversion(sourceName, sourcePath string, strategy string, db Repository) (*Conversion, bool, error) {
	fileHash, err := CalculateFileHash(sourcePath)
	if err != nil {
		return nil, false, err
	}

	existing, err := db.GetConversionByHash(fileHash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		Logger.Info("Duplicate upload detected, returning existing conversion",
			"sourceName", sourceName, "ulid", existing.ULID.String())
		return existing, true, nil
	}

	now := time.Now()
	newULID, err := CalculateUUID(now)
	if err != nil {
		Logger.Error("Cannot generate ULID", "sourcePath", sourcePath, "error", err)
		return nil, false, err
	}

	conv := &Conversion{
		ULID:       newULID,
		SourceName: sourceName,
		SourcePath: sourcePath,
		Hash:       fileHash,
		Strategy:   strategy,
		Status:     ConversionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.SaveConversion(conv); err != nil {
		Logger.Error("Unable to write conversion to database", "error", err)
		return nil, false, err
	}
	return conv, false, nil
}

// FetchConversion fetches the requested conversion by ULID
func FetchConversion(convULIDSt string, db Repository) (Conversion, int, error) {
	foundConversion, err := db.GetConversionByULID(convULIDSt)
	if err != nil {
		if err == sql.ErrNoRows {
			Logger.Error("Unable to find the requested conversion", "error", err)
			return Conversion{}, http.StatusNotFound, err
		}
		Logger.Error("Database error fetching conversion", "error", err)
		return Conversion{}, http.StatusInternalServerError, err
	}
	return *foundConversion, http.StatusOK, nil
}

// FetchNewestConversions fetches the conversions that were added last
func FetchNewestConversions(numberOf int, db Repository) ([]Conversion, error) {
	newestConversions, err := db.GetNewestConversions(numberOf)
	if err != nil {
		Logger.Error("Unable to find the latest conversions", "error", err)
		return newestConversions, err
	}
	return newestConversions, nil
}

// CalculateFileHash computes the md5 of the file contents
func CalculateFileHash(fileName string) (string, error) {
	var fileHash string
	file, err := os.Open(fileName)
	if err != nil {
		return fileHash, err
	}
	defer file.Close()
	hash := md5.New()
	_, err = io.Copy(hash, file)
	if err != nil {
		return fileHash, err
	}
	fileHash = fmt.Sprintf("%x", hash.Sum(nil))
	return fileHash, nil
}

// CalculateUUID for the incoming file
func CalculateUUID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}
