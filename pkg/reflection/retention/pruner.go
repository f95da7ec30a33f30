package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/reflection"
	"mercator-hq/mediator/pkg/reflection/export"
	"mercator-hq/mediator/pkg/reflection/query"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// Days is how long reflections are kept. Zero or negative keeps them
	// forever.
	Days int

	// PruneSchedule is a cron expression for scheduled pruning.
	PruneSchedule string

	// MaxRecords caps the number of stored reflections. 0 means unlimited.
	MaxRecords int64

	// ArchivePath, when set, is a directory that receives a JSON copy of
	// every batch before it is deleted.
	ArchivePath string
}

// FromConfig converts the file configuration.
func FromConfig(cfg config.RetentionConfig) *Config {
	return &Config{
		Days:          cfg.Days,
		PruneSchedule: cfg.PruneSchedule,
		MaxRecords:    cfg.MaxRecords,
	}
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		Days:          config.DefaultRetentionDays,
		PruneSchedule: config.DefaultRetentionPruneSchedule,
	}
}

// Pruner enforces retention on a reflection store.
type Pruner struct {
	storage   reflection.Storage
	config    *Config
	logger    *slog.Logger
	now       func() time.Time
	scheduler *Scheduler
}

// NewPruner creates a pruner. A nil config uses DefaultConfig and a nil
// logger uses slog.Default().
func NewPruner(storage reflection.Storage, cfg *Config, logger *slog.Logger) *Pruner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pruner{
		storage: storage,
		config:  cfg,
		logger:  logger.With("component", "reflection.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes reflections older than the retention period, then the
// oldest reflections beyond MaxRecords. It returns the number deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.Days > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += deleted
	}

	if total == 0 {
		p.logger.Debug("no reflections pruned",
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Info("reflection pruning completed",
			"total_deleted", total,
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.Days)
	q := &reflection.Query{EndTime: &cutoff}

	p.logger.Debug("pruning by age", "cutoff_time", cutoff)

	if p.config.ArchivePath != "" {
		records, err := p.collect(ctx, q, 0)
		if err != nil {
			return 0, reflection.NewRetentionError(p.config.Days, err)
		}
		if err := p.archive(ctx, "age", records); err != nil {
			return 0, reflection.NewRetentionError(p.config.Days, err)
		}
	}

	deleted, err := p.storage.Delete(ctx, q)
	if err != nil {
		return 0, reflection.NewRetentionError(p.config.Days, err)
	}
	return deleted, nil
}

// pruneByCount deletes up to the creation time of the newest reflection that
// falls outside the cap. Reflections sharing that timestamp go with it.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &reflection.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count reflections: %w", err)
	}
	if count <= p.config.MaxRecords {
		return 0, nil
	}

	excess := count - p.config.MaxRecords
	p.logger.Info("reflection count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"to_delete", excess,
	)

	oldest, err := p.collect(ctx, &reflection.Query{SortBy: query.SortCreatedAt, SortOrder: "asc"}, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to query reflections: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	if p.config.ArchivePath != "" {
		if err := p.archive(ctx, "count", oldest); err != nil {
			return 0, fmt.Errorf("archive failed: %w", err)
		}
	}

	cutoff := oldest[len(oldest)-1].CreatedAt
	deleted, err := p.storage.Delete(ctx, &reflection.Query{EndTime: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return deleted, nil
}

// collect pages through q. A positive max stops after that many records.
func (p *Pruner) collect(ctx context.Context, q *reflection.Query, max int64) ([]*reflection.Reflection, error) {
	var out []*reflection.Reflection
	page := *q
	page.Limit = query.MaxLimit

	for {
		if max > 0 {
			if left := max - int64(len(out)); left < int64(page.Limit) {
				page.Limit = int(left)
			}
		}
		batch, err := p.storage.Query(ctx, &page)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < page.Limit || (max > 0 && int64(len(out)) >= max) {
			return out, nil
		}
		page.Offset += len(batch)
	}
}

func (p *Pruner) archive(ctx context.Context, reason string, records []*reflection.Reflection) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("reflections-%s-%s.json", reason, p.now().UTC().Format("2006-01-02-150405"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).Export(ctx, records, f); err != nil {
		return fmt.Errorf("failed to export reflections to archive: %w", err)
	}

	p.logger.Info("reflections archived", "archive_file", path, "record_count", len(records))
	return nil
}

// Start starts scheduled pruning.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops scheduled pruning and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled prune, or nil.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
