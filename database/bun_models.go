package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunConversion represents the conversions table for Bun ORM
type BunConversion struct {
	bun.BaseModel `bun:"table:conversions,alias:c"`

	ID           int        `bun:"id,pk,autoincrement"`
	ULID         string     `bun:"ulid,notnull,unique"` // Stored as string in DB
	SourceName   string     `bun:"source_name,notnull"`
	SourcePath   string     `bun:"source_path,notnull,unique"`
	OutputPath   string     `bun:"output_path,nullzero"`
	ArtifactDir  string     `bun:"artifact_dir,nullzero"`
	Hash         string     `bun:"hash,notnull"`
	Strategy     string     `bun:"strategy,notnull,default:'B'"`
	Status       string     `bun:"status,notnull,default:'pending'"`
	Score        float64    `bun:"score,default:0"`
	QualityLevel string     `bun:"quality_level,nullzero"`
	Rounds       int        `bun:"rounds,default:0"`
	TokensUsed   int        `bun:"tokens_used,default:0"`
	Degraded     bool       `bun:"degraded,default:false"`
	Error        string     `bun:"error,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	CompletedAt  *time.Time `bun:"completed_at,nullzero"`
}

// ToConversion converts BunConversion to Conversion
func (bc *BunConversion) ToConversion() (*Conversion, error) {
	parsedULID, err := ulid.Parse(bc.ULID)
	if err != nil {
		return nil, err
	}

	return &Conversion{
		StormID:      bc.ID,
		ULID:         parsedULID,
		SourceName:   bc.SourceName,
		SourcePath:   bc.SourcePath,
		OutputPath:   bc.OutputPath,
		ArtifactDir:  bc.ArtifactDir,
		Hash:         bc.Hash,
		Strategy:     bc.Strategy,
		Status:       ConversionStatus(bc.Status),
		Score:        bc.Score,
		QualityLevel: bc.QualityLevel,
		Rounds:       bc.Rounds,
		TokensUsed:   bc.TokensUsed,
		Degraded:     bc.Degraded,
		Error:        bc.Error,
		CreatedAt:    bc.CreatedAt,
		UpdatedAt:    bc.UpdatedAt,
		CompletedAt:  bc.CompletedAt,
	}, nil
}

// FromConversion converts Conversion to BunConversion
func FromConversion(conv *Conversion) *BunConversion {
	return &BunConversion{
		ID:           conv.StormID,
		ULID:         conv.ULID.String(),
		SourceName:   conv.SourceName,
		SourcePath:   conv.SourcePath,
		OutputPath:   conv.OutputPath,
		ArtifactDir:  conv.ArtifactDir,
		Hash:         conv.Hash,
		Strategy:     conv.Strategy,
		Status:       string(conv.Status),
		Score:        conv.Score,
		QualityLevel: conv.QualityLevel,
		Rounds:       conv.Rounds,
		TokensUsed:   conv.TokensUsed,
		Degraded:     conv.Degraded,
		Error:        conv.Error,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		CompletedAt:  conv.CompletedAt,
	}
}

// BunJob represents the jobs table for Bun ORM
type BunJob struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          string     `bun:"id,pk"` // ULID as string
	Type        string     `bun:"type,notnull"`
	Status      string     `bun:"status,default:'pending'"`
	Progress    int        `bun:"progress,default:0"`
	CurrentStep string     `bun:"current_step,default:''"`
	TotalSteps  int        `bun:"total_steps,default:0"`
	Message     string     `bun:"message,default:''"`
	Error       string     `bun:"error,nullzero"`
	Result      string     `bun:"result,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

// ToJob converts BunJob to Job
func (bj *BunJob) ToJob() (*Job, error) {
	parsedULID, err := ulid.Parse(bj.ID)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          parsedULID,
		Type:        JobType(bj.Type),
		Status:      JobStatus(bj.Status),
		Progress:    bj.Progress,
		CurrentStep: bj.CurrentStep,
		TotalSteps:  bj.TotalSteps,
		Message:     bj.Message,
		Error:       bj.Error,
		Result:      bj.Result,
		CreatedAt:   bj.CreatedAt,
		UpdatedAt:   bj.UpdatedAt,
		StartedAt:   bj.StartedAt,
		CompletedAt: bj.CompletedAt,
	}, nil
}

// FromJob converts Job to BunJob
func FromJob(job *Job) *BunJob {
	return &BunJob{
		ID:          job.ID.String(),
		Type:        string(job.Type),
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		TotalSteps:  job.TotalSteps,
		Message:     job.Message,
		Error:       job.Error,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}
