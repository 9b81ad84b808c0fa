package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"interview-concierge/internal/metrics"
	"interview-concierge/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	backendName     = "sql"
	defaultPageSize = 100
	maxPageSize     = 100
	offsetPrefix    = "itr"
	timeLayout      = "2006-01-02T15:04:05.000Z"
)

// Config for the local table store
type Config struct {
	Driver   string   // "sqlite" or "postgres"
	DSN      string   // SQLite path or PostgreSQL URL
	Tables   []string // known tables; empty accepts any name
	PageSize int
}

// Store keeps records of arbitrary tables in one SQL table and answers
// with the same shapes and error bodies as the Airtable REST API.
type Store struct {
	db       *sqlx.DB
	driver   string
	tables   map[string]bool
	pageSize int
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

type recordRow struct {
	Seq       int64  `db:"seq"`
	ID        string `db:"id"`
	Fields    string `db:"fields"`
	CreatedAt string `db:"created_at"`
}

// Open connects, migrates and returns the store
func Open(cfg Config, m *metrics.Metrics, logger *zap.Logger) (*Store, error) {
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	if err := migrateDB(db, cfg.Driver, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	var tables map[string]bool
	if len(cfg.Tables) > 0 {
		tables = make(map[string]bool, len(cfg.Tables))
		for _, t := range cfg.Tables {
			tables[t] = true
		}
	}

	logger.Info("Table store initialized",
		zap.String("driver", cfg.Driver),
		zap.Strings("tables", cfg.Tables))

	return &Store{
		db:       db,
		driver:   cfg.Driver,
		tables:   tables,
		pageSize: pageSize,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a record. Null values are dropped like upstream does.
func (s *Store) Create(ctx context.Context, table string, fields models.Fields) (record *models.Record, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	clean := models.Fields{}
	for k, v := range fields {
		if v != nil {
			clean[k] = v
		}
	}

	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	id := newRecordID()
	now := s.now().UTC().Format(timeLayout)

	query := s.db.Rebind(`INSERT INTO records (id, table_name, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, id, table, string(data), now, now); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	stored, err := decodeFields(string(data))
	if err != nil {
		return nil, err
	}

	return &models.Record{ID: id, CreatedTime: now, Fields: stored}, nil
}

// Update merges fields into an existing record; a null value clears a field
func (s *Store) Update(ctx context.Context, table, recordID string, fields models.Fields) (record *models.Record, err error) {
	defer s.observe("update", time.Now(), &err)

	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// SQLite runs on a single connection, so only postgres needs the row lock
	var row recordRow
	query := `SELECT seq, id, fields, created_at FROM records WHERE id = ? AND table_name = ?`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	query = tx.Rebind(query)
	if err := tx.GetContext(ctx, &row, query, recordID, table); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound()
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	current, err := decodeFields(row.Fields)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}

	data, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	update := tx.Rebind(`UPDATE records SET fields = ?, updated_at = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, update, string(data), s.now().UTC().Format(timeLayout), recordID); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	stored, err := decodeFields(string(data))
	if err != nil {
		return nil, err
	}

	return &models.Record{ID: row.ID, CreatedTime: row.CreatedAt, Fields: stored}, nil
}

// ListPage returns one page of a table in insertion order, or in the
// requested sort order when opts.Sort is set. The offset token pins the
// records that existed when the first page was read, so records created
// while paging neither shift later pages nor show up in them.
func (s *Store) ListPage(ctx context.Context, table string, opts models.ListOptions, offset string) (page *models.Page, err error) {
	defer s.observe("list", time.Now(), &err)

	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	start, bound, err := parseOffset(offset)
	if err != nil {
		return nil, err
	}

	for _, spec := range opts.Sort {
		if spec.Direction != "" && spec.Direction != "asc" && spec.Direction != "desc" {
			return nil, invalidRequest("INVALID_SORT_DIRECTION",
				fmt.Sprintf("Invalid sort direction %q for field %q", spec.Direction, spec.Field))
		}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = s.pageSize
	}

	var rows []recordRow
	query := `SELECT seq, id, fields, created_at FROM records WHERE table_name = ?`
	args := []interface{}{table}
	if offset != "" {
		query += ` AND seq <= ?`
		args = append(args, bound)
	}
	query = s.db.Rebind(query + ` ORDER BY seq`)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		if row.Seq > bound {
			bound = row.Seq
		}
		fields, err := decodeFields(row.Fields)
		if err != nil {
			s.logger.Error("Failed to decode record", zap.String("id", row.ID), zap.Error(err))
			continue
		}
		records = append(records, models.Record{ID: row.ID, CreatedTime: row.CreatedAt, Fields: fields})
	}

	sortRecords(records, opts.Sort)

	if start > len(records) {
		return nil, iteratorUnavailable()
	}

	end := start + pageSize
	if end > len(records) {
		end = len(records)
	}

	result := &models.Page{Records: make([]models.Record, 0, end-start)}
	for _, rec := range records[start:end] {
		rec.Fields = project(rec.Fields, opts.Fields)
		result.Records = append(result.Records, rec)
	}
	if end < len(records) {
		result.Offset = fmt.Sprintf("%s%d/%d", offsetPrefix, end, bound)
	}

	return result, nil
}

func (s *Store) checkTable(table string) error {
	if table == "" || (s.tables != nil && !s.tables[table]) {
		return upstreamError(404, map[string]interface{}{
			"error": map[string]string{
				"type":    "TABLE_NOT_FOUND",
				"message": fmt.Sprintf("Could not find table %s in application", table),
			},
		})
	}
	return nil
}

func (s *Store) observe(operation string, started time.Time, errp *error) {
	status := 200
	if *errp != nil {
		status = 500
		var upstreamErr *models.UpstreamError
		if errors.As(*errp, &upstreamErr) {
			status = upstreamErr.StatusCode
		}
	}
	s.metrics.ObserveUpstream(backendName, operation, status, started)
}

func newRecordID() string {
	return "rec" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

func decodeFields(data string) (models.Fields, error) {
	fields := models.Fields{}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return fields, nil
}

// parseOffset reads an itr<start>/<bound> token: the position of the next
// page and the highest seq of the snapshot being paged.
func parseOffset(offset string) (int, int64, error) {
	if offset == "" {
		return 0, 0, nil
	}
	if !strings.HasPrefix(offset, offsetPrefix) {
		return 0, 0, iteratorUnavailable()
	}
	startPart, boundPart, ok := strings.Cut(strings.TrimPrefix(offset, offsetPrefix), "/")
	if !ok {
		return 0, 0, iteratorUnavailable()
	}
	start, err := strconv.Atoi(startPart)
	if err != nil || start < 0 {
		return 0, 0, iteratorUnavailable()
	}
	bound, err := strconv.ParseInt(boundPart, 10, 64)
	if err != nil || bound < 0 {
		return 0, 0, iteratorUnavailable()
	}
	return start, bound, nil
}

func project(fields models.Fields, names []string) models.Fields {
	if len(names) == 0 {
		return fields
	}
	out := models.Fields{}
	for _, name := range names {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

func sortRecords(records []models.Record, specs []models.SortSpec) {
	if len(specs) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, spec := range specs {
			c := compareValues(records[i].Fields[spec.Field], records[j].Fields[spec.Field])
			if c == 0 {
				continue
			}
			if spec.Direction == "desc" {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compareValues orders JSON values: empty first, then booleans, numbers,
// strings, and anything else by its JSON encoding.
func compareValues(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch va := a.(type) {
	case nil:
		return 0
	case bool:
		vb := b.(bool)
		switch {
		case va == vb:
			return 0
		case !va:
			return -1
		}
		return 1
	case float64:
		vb := b.(float64)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	case string:
		return strings.Compare(va, b.(string))
	}

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return strings.Compare(string(ja), string(jb))
}

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

func notFound() error {
	return upstreamError(404, map[string]interface{}{"error": "NOT_FOUND"})
}

func iteratorUnavailable() error {
	return invalidRequest("LIST_RECORDS_ITERATOR_NOT_AVAILABLE", "The offset is no longer valid")
}

func invalidRequest(kind, message string) error {
	return upstreamError(422, map[string]interface{}{
		"error": map[string]string{"type": kind, "message": message},
	})
}

func upstreamError(status int, body interface{}) error {
	data, _ := json.Marshal(body)
	return &models.UpstreamError{StatusCode: status, Body: data}
}
