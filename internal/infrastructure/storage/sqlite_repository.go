package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver

	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/infrastructure/storage/migrations"
	"FilingMonitor/internal/ports"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrNotFound is returned when a filing id is unknown.
var ErrNotFound = errors.New("filing not found")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var filingColumns = []string{
	"filing_id", "filing_date", "applicant", "filing_type", "proceeding_number", "title", "url",
	"status_scraped", "status_downloaded", "status_extracted", "status_analyzed", "status_emailed",
	"error_message", "retry_count", "created_at", "updated_at", "extra",
}

var documentColumns = []string{
	"id", "filing_id", "document_url", "filename", "content_type", "local_path", "file_size_bytes",
	"download_status", "extraction_status", "extraction_method", "extracted_text", "char_count",
	"page_count", "extraction_error", "extracted_at",
}

// SQLiteRepository persists filings, documents and run history into SQLite.
type SQLiteRepository struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var (
	_ ports.FilingRepository = (*SQLiteRepository)(nil)
	_ ports.RunRepository    = (*SQLiteRepository)(nil)
)

// Open creates (or reuses) the database at path and applies pending migrations.
func Open(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := repo.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return repo, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *SQLiteRepository) Path() string {
	return r.path
}

func (r *SQLiteRepository) migrate(fsys embed.FS) error {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := r.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := r.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			version, r.now().Format(timeLayout)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// Existing returns the subset of ids already present in the store.
func (r *SQLiteRepository) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := psql.Select("filing_id").From("filings").Where(sq.Eq{"filing_id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// SaveFiling inserts a new filing and its documents in one transaction.
// A filing whose id is already stored is left untouched.
func (r *SQLiteRepository) SaveFiling(ctx context.Context, filing domain.Filing) error {
	if strings.TrimSpace(filing.ID) == "" {
		return fmt.Errorf("save filing: empty id")
	}

	status := filing.Status
	if status.Scraped == "" {
		status = domain.NewFilingStatus()
	}
	now := r.now().Format(timeLayout)

	var extra any
	if len(filing.Extra) > 0 {
		raw, err := json.Marshal(filing.Extra)
		if err != nil {
			return fmt.Errorf("marshal extra fields: %w", err)
		}
		extra = string(raw)
	}

	query, args, err := psql.Insert("filings").
		Columns(filingColumns...).
		Values(
			filing.ID, nullDate(filing.Date), nullString(filing.Applicant), nullString(filing.Category),
			nullString(filing.Proceeding), nullString(filing.Title), nullString(filing.URL),
			status.Scraped, status.Downloaded, status.Extracted, status.Analyzed, status.Emailed,
			nullString(filing.ErrorMessage), filing.RetryCount, now, now, extra,
		).
		Suffix("ON CONFLICT(filing_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build filing insert: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert filing %s: %w", filing.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for i, doc := range filing.Documents {
		fetch := doc.FetchStatus
		if fetch == "" {
			fetch = domain.StatusPending
		}
		extract := doc.ExtractStatus
		if extract == "" {
			extract = domain.StatusPending
		}
		q, a, err := psql.Insert("documents").
			Columns("filing_id", "position", "document_url", "filename", "content_type",
				"download_status", "extraction_status", "created_at").
			Values(filing.ID, i+1, doc.URL, nullString(doc.Filename), nullString(doc.ContentType),
				fetch, extract, now).
			ToSql()
		if err != nil {
			return fmt.Errorf("build document insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return fmt.Errorf("insert document for %s: %w", filing.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit filing %s: %w", filing.ID, err)
	}
	return nil
}

// GetFiling loads one filing with its documents.
func (r *SQLiteRepository) GetFiling(ctx context.Context, id string) (domain.Filing, error) {
	filings, err := r.queryFilings(ctx, sq.Eq{"filing_id": id})
	if err != nil {
		return domain.Filing{}, err
	}
	if len(filings) == 0 {
		return domain.Filing{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return filings[0], nil
}

// FilingsForDownload returns scraped filings whose documents are not yet on disk.
func (r *SQLiteRepository) FilingsForDownload(ctx context.Context, maxRetry int) ([]domain.Filing, error) {
	return r.queryFilings(ctx, sq.And{
		sq.Eq{"status_scraped": domain.StatusSuccess},
		sq.NotEq{"status_downloaded": domain.StatusSuccess},
		sq.Lt{"retry_count": maxRetry},
	})
}

// FilingsForExtraction returns downloaded filings whose text is not yet extracted.
func (r *SQLiteRepository) FilingsForExtraction(ctx context.Context, maxRetry int) ([]domain.Filing, error) {
	return r.queryFilings(ctx, sq.And{
		sq.Eq{"status_downloaded": domain.StatusSuccess},
		sq.NotEq{"status_extracted": domain.StatusSuccess},
		sq.Lt{"retry_count": maxRetry},
	})
}

// FilingsForAnalysis returns extracted filings not yet handed to the analysis collaborator.
func (r *SQLiteRepository) FilingsForAnalysis(ctx context.Context, maxRetry int) ([]domain.Filing, error) {
	return r.queryFilings(ctx, sq.And{
		sq.Eq{"status_extracted": domain.StatusSuccess},
		sq.NotEq{"status_analyzed": domain.StatusSuccess},
		sq.Lt{"retry_count": maxRetry},
	})
}

// MarkStage sets a stage status. A non-empty errMsg is recorded and bumps
// retry_count. A stage already at success is never changed.
func (r *SQLiteRepository) MarkStage(ctx context.Context, filingID string, stage domain.Stage, status domain.ProcessingStatus, errMsg string) error {
	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stage)
	}
	column := "status_" + string(stage)

	update := psql.Update("filings").
		Set(column, status).
		Set("updated_at", r.now().Format(timeLayout)).
		Where(sq.Eq{"filing_id": filingID}).
		Where(sq.NotEq{column: domain.StatusSuccess})
	if errMsg != "" {
		update = update.Set("error_message", errMsg).Set("retry_count", sq.Expr("retry_count + 1"))
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build stage update: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s for %s: %w", column, filingID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	exists, err := r.Existing(ctx, []string{filingID})
	if err != nil {
		return err
	}
	if !exists[filingID] {
		return fmt.Errorf("%w: %s", ErrNotFound, filingID)
	}
	return nil
}

// SaveDocuments writes fetch and extraction fields for existing document rows.
func (r *SQLiteRepository) SaveDocuments(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		if doc.ID == 0 {
			return fmt.Errorf("save document %s: missing id", doc.URL)
		}
		var extractedAt any
		if !doc.ExtractedAt.IsZero() {
			extractedAt = doc.ExtractedAt.UTC().Format(timeLayout)
		}
		query, args, err := psql.Update("documents").
			Set("local_path", nullString(doc.LocalPath)).
			Set("file_size_bytes", nullInt(doc.SizeBytes)).
			Set("download_status", orPending(doc.FetchStatus)).
			Set("content_type", nullString(doc.ContentType)).
			Set("extraction_status", orPending(doc.ExtractStatus)).
			Set("extraction_method", nullString(string(doc.ExtractionMethod))).
			Set("extracted_text", nullString(doc.ExtractedText)).
			Set("char_count", nullInt(int64(doc.CharCount))).
			Set("page_count", nullInt(int64(doc.PageCount))).
			Set("extraction_error", nullString(doc.ExtractionError)).
			Set("extracted_at", extractedAt).
			Where(sq.Eq{"id": doc.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build document update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update document %d: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit documents: %w", err)
	}
	return nil
}

// ResetDownload moves a filing back to the download queue after its
// artifacts went missing. Documents lose their local path and extraction
// fields, so the next fetch and extraction start from scratch.
func (r *SQLiteRepository) ResetDownload(ctx context.Context, filingID, reason string) error {
	now := r.now().Format(timeLayout)

	filingQuery, filingArgs, err := psql.Update("filings").
		Set("status_downloaded", domain.StatusPending).
		Set("status_extracted", domain.StatusPending).
		Set("error_message", nullString(reason)).
		Set("updated_at", now).
		Where(sq.Eq{"filing_id": filingID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build download reset: %w", err)
	}
	docQuery, docArgs, err := psql.Update("documents").
		Set("local_path", nil).
		Set("file_size_bytes", nil).
		Set("download_status", domain.StatusFailed).
		Set("extraction_status", domain.StatusPending).
		Set("extraction_method", nil).
		Set("extracted_text", nil).
		Set("char_count", nil).
		Set("page_count", nil).
		Set("extraction_error", nil).
		Set("extracted_at", nil).
		Where(sq.Eq{"filing_id": filingID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build document reset: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, filingQuery, filingArgs...)
	if err != nil {
		return fmt.Errorf("reset download for %s: %w", filingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, filingID)
	}
	if _, err := tx.ExecContext(ctx, docQuery, docArgs...); err != nil {
		return fmt.Errorf("reset documents for %s: %w", filingID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit download reset %s: %w", filingID, err)
	}
	return nil
}

// AppendRun stores one acquisition run.
func (r *SQLiteRepository) AppendRun(ctx context.Context, run domain.RunRecord) error {
	var completed any
	if !run.CompletedAt.IsZero() {
		completed = run.CompletedAt.UTC().Format(timeLayout)
	}
	query, args, err := psql.Insert("run_history").
		Columns("run_id", "started_at", "completed_at", "strategy", "total_found", "new_filings", "error_summary").
		Values(run.ID, run.StartedAt.UTC().Format(timeLayout), completed, nullString(run.Strategy),
			run.TotalFound, run.NewFilings, nullString(run.ErrorSummary)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// LastRuns returns up to n most recent runs, newest first.
func (r *SQLiteRepository) LastRuns(ctx context.Context, n int) ([]domain.RunRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	query, args, err := psql.Select("run_id", "started_at", "completed_at", "strategy", "total_found", "new_filings", "error_summary").
		From("run_history").
		OrderBy("seq DESC").
		Limit(uint64(n)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			run                            domain.RunRecord
			started                        string
			completed, strategy, errorText sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &completed, &strategy, &run.TotalFound, &run.NewFilings, &errorText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.CompletedAt = parseTime(completed.String)
		run.Strategy = strategy.String
		run.ErrorSummary = errorText.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) queryFilings(ctx context.Context, where sq.Sqlizer) ([]domain.Filing, error) {
	query, args, err := psql.Select(filingColumns...).
		From("filings").
		Where(where).
		OrderBy("created_at", "filing_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build filings query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query filings: %w", err)
	}

	var (
		filings []domain.Filing
		ids     []string
	)
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		filings = append(filings, f)
		ids = append(ids, f.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	if len(filings) == 0 {
		return nil, nil
	}

	docs, err := r.documentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range filings {
		filings[i].Documents = docs[filings[i].ID]
	}
	return filings, nil
}

func (r *SQLiteRepository) documentsFor(ctx context.Context, filingIDs []string) (map[string][]domain.Document, error) {
	query, args, err := psql.Select(documentColumns...).
		From("documents").
		Where(sq.Eq{"filing_id": filingIDs}).
		OrderBy("filing_id", "position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build documents query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Document)
	for rows.Next() {
		var (
			d                                                   domain.Document
			filename, contentType, localPath, method, text, why sql.NullString
			extractedAt                                         sql.NullString
			size, chars, pages                                  sql.NullInt64
			fetch, extract                                      string
		)
		if err := rows.Scan(&d.ID, &d.FilingID, &d.URL, &filename, &contentType, &localPath, &size,
			&fetch, &extract, &method, &text, &chars, &pages, &why, &extractedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Filename = filename.String
		d.ContentType = contentType.String
		d.LocalPath = localPath.String
		d.SizeBytes = size.Int64
		d.FetchStatus = domain.ProcessingStatus(fetch)
		d.ExtractStatus = domain.ProcessingStatus(extract)
		d.ExtractionMethod = domain.ExtractionMethod(method.String)
		d.ExtractedText = text.String
		d.CharCount = int(chars.Int64)
		d.PageCount = int(pages.Int64)
		d.ExtractionError = why.String
		d.ExtractedAt = parseTime(extractedAt.String)
		out[d.FilingID] = append(out[d.FilingID], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFiling(row rowScanner) (domain.Filing, error) {
	var (
		f                                                 domain.Filing
		date, applicant, category, proceeding, title, url sql.NullString
		scraped, downloaded, extracted, analyzed, emailed string
		errMsg, updated, extra                            sql.NullString
		created                                           string
	)
	if err := row.Scan(&f.ID, &date, &applicant, &category, &proceeding, &title, &url,
		&scraped, &downloaded, &extracted, &analyzed, &emailed,
		&errMsg, &f.RetryCount, &created, &updated, &extra); err != nil {
		return domain.Filing{}, fmt.Errorf("scan filing: %w", err)
	}

	if date.Valid {
		if parsed, err := time.Parse(dateLayout, date.String); err == nil {
			f.Date = parsed
		}
	}
	f.Applicant = applicant.String
	f.Category = category.String
	f.Proceeding = proceeding.String
	f.Title = title.String
	f.URL = url.String
	f.Status = domain.FilingStatus{
		Scraped:    domain.ProcessingStatus(scraped),
		Downloaded: domain.ProcessingStatus(downloaded),
		Extracted:  domain.ProcessingStatus(extracted),
		Analyzed:   domain.ProcessingStatus(analyzed),
		Emailed:    domain.ProcessingStatus(emailed),
	}
	f.ErrorMessage = errMsg.String
	f.CreatedAt = parseTime(created)
	f.UpdatedAt = parseTime(updated.String)
	if extra.Valid && extra.String != "" {
		_ = json.Unmarshal([]byte(extra.String), &f.Extra)
	}
	return f, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func orPending(s domain.ProcessingStatus) domain.ProcessingStatus {
	if s == "" {
		return domain.StatusPending
	}
	return s
}
