package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config holds configuration for the export service.
type Config struct {
	// RetentionMonths is how many months of notification history to keep.
	// Default: 12.
	RetentionMonths int

	// ExportOnStart if true, runs an export immediately on service start.
	ExportOnStart bool

	// ExportDir is where monthly workbooks are written.
	ExportDir string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RetentionMonths: 12,
		ExportOnStart:   false,
		ExportDir:       "data/exports",
	}
}

// Service writes a monthly xlsx snapshot of the database and purges
// notification history past the retention window.
type Service struct {
	config  *Config
	source  Source
	writer  func() ExcelWriter // factory for creating new Excel writers
	cleaner Cleaner
	logger  Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates a new export service.
func NewService(
	config *Config,
	source Source,
	writerFactory func() ExcelWriter,
	cleaner Cleaner,
	logger Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RetentionMonths <= 0 {
		config.RetentionMonths = 12
	}
	if config.ExportDir == "" {
		config.ExportDir = "data/exports"
	}

	return &Service{
		config:  config,
		source:  source,
		writer:  writerFactory,
		cleaner: cleaner,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the export scheduler.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		go s.RunExportAndCleanup()
	}

	s.wg.Add(1)
	go s.loop()

	if s.logger != nil {
		s.logger.Info("Export service started",
			"retention_months", s.config.RetentionMonths,
			"export_dir", s.config.ExportDir,
		)
	}
}

// Stop gracefully stops the export service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	if s.logger != nil {
		s.logger.Info("Export service stopped")
	}
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := s.nextFirstOfMonth()
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()

	if s.logger != nil {
		s.logger.Info("Next export scheduled", "time", nextRun)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.RunExportAndCleanup()

			nextRun = s.nextFirstOfMonth()
			timer.Reset(time.Until(nextRun))

			if s.logger != nil {
				s.logger.Info("Next export scheduled", "time", nextRun)
			}
		}
	}
}

func (s *Service) nextFirstOfMonth() time.Time {
	now := time.Now()
	// First day of next month at 00:01
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// RunExportAndCleanup performs the export and cleanup immediately.
func (s *Service) RunExportAndCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := s.exportData(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("Failed to export data", "error", err)
		}
	}

	if err := s.cleanupOldData(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("Failed to cleanup old data", "error", err)
		}
	}
}

// buildWorkbook pulls all sheets from the source into a fresh workbook.
// The caller owns the returned writer and must Close it.
func (s *Service) buildWorkbook(ctx context.Context) (ExcelWriter, error) {
	if s.source == nil || s.writer == nil {
		return nil, fmt.Errorf("source or writer not configured")
	}

	sheets, err := s.source.ExportSheets(ctx)
	if err != nil {
		return nil, fmt.Errorf("export sheets: %w", err)
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("nothing to export")
	}

	excel := s.writer()
	if excel == nil {
		return nil, fmt.Errorf("failed to create excel writer")
	}

	for _, sheet := range sheets {
		if err := excel.AddSheet(sheet.Name); err != nil {
			excel.Close()
			return nil, fmt.Errorf("add sheet %s: %w", sheet.Name, err)
		}
		if err := excel.WriteHeader(sheet.Columns); err != nil {
			excel.Close()
			return nil, fmt.Errorf("write header %s: %w", sheet.Name, err)
		}
		for _, row := range sheet.Rows {
			if err := excel.WriteRow(row); err != nil {
				excel.Close()
				return nil, fmt.Errorf("write row %s: %w", sheet.Name, err)
			}
		}

		if s.logger != nil {
			s.logger.Debug("Exported sheet", "sheet", sheet.Name, "rows", len(sheet.Rows))
		}
	}

	return excel, nil
}

// WriteWorkbook streams a full export to w. Used by the admin export endpoint.
func (s *Service) WriteWorkbook(ctx context.Context, w io.Writer) error {
	excel, err := s.buildWorkbook(ctx)
	if err != nil {
		return err
	}
	defer excel.Close()

	return excel.Save(w)
}

func (s *Service) exportData(ctx context.Context) error {
	excel, err := s.buildWorkbook(ctx)
	if err != nil {
		return err
	}
	defer excel.Close()

	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(s.config.ExportDir, PreviousMonthFilename(time.Now()))
	if err := excel.SaveToFile(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("Monthly report written", "path", path)
	}
	return nil
}

func (s *Service) cleanupOldData(ctx context.Context) error {
	if s.cleaner == nil {
		return nil
	}

	before := time.Now().AddDate(0, -s.config.RetentionMonths, 0)
	deleted, err := s.cleaner.PurgeOldNotifications(ctx, before)
	if err != nil {
		return fmt.Errorf("purge old notifications: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("Cleaned up old data",
			"deleted_count", deleted,
			"retention_months", s.config.RetentionMonths,
		)
	}

	return nil
}

// ExportNow triggers an immediate export (useful for testing or manual runs).
func (s *Service) ExportNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	return s.exportData(ctx)
}

// CleanupNow triggers an immediate cleanup (useful for testing).
func (s *Service) CleanupNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return s.cleanupOldData(ctx)
}
