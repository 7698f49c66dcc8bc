package schema

import (
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers that indicate the cached schema is stale.
const (
	errUnknownColumn = 1054
	errNoSuchTable   = 1146
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableSchema is the reflected column set of one table.
type TableSchema struct {
	Name        string
	Columns     []string
	colSet      map[string]bool
	ReflectedAt time.Time
}

// HasColumn reports whether the table has the named column.
func (t *TableSchema) HasColumn(name string) bool {
	return t.colSet[name]
}

// Filter returns only the entries of values whose keys are real columns.
func (t *TableSchema) Filter(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if t.colSet[k] {
			out[k] = v
		}
	}
	return out
}

// Reflector inspects live table schemas through information_schema and builds
// parameterized statements against whatever columns exist. Reflections are
// cached with a short TTL; a stale cache is tolerated and refreshed once when
// MySQL reports an unknown column or table.
type Reflector struct {
	db     *sql.DB
	dbName string
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]*TableSchema
}

// NewReflector creates a reflector for the named database.
func NewReflector(db *sql.DB, dbName string, ttl time.Duration) *Reflector {
	return &Reflector{
		db:     db,
		dbName: dbName,
		ttl:    ttl,
		cache:  make(map[string]*TableSchema),
	}
}

// Table returns the (possibly cached) schema for a table.
func (r *Reflector) Table(name string) (*TableSchema, error) {
	if !identifierPattern.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok && time.Since(cached.ReflectedAt) < r.ttl {
		return cached, nil
	}

	return r.reflect(name)
}

// Invalidate drops the cached schema for a table.
func (r *Reflector) Invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}

func (r *Reflector) reflect(name string) (*TableSchema, error) {
	rows, err := r.db.Query(
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position`,
		r.dbName, name)
	if err != nil {
		return nil, fmt.Errorf("error reflecting table %s: %w", name, err)
	}
	defer rows.Close()

	schema := &TableSchema{
		Name:        name,
		colSet:      make(map[string]bool),
		ReflectedAt: time.Now(),
	}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		schema.Columns = append(schema.Columns, col)
		schema.colSet[col] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("table %s not found", name)
	}

	r.mu.Lock()
	r.cache[name] = schema
	r.mu.Unlock()

	return schema, nil
}

// BuildInsert assembles an INSERT for the columns of values that exist on the
// table. Unknown keys are silently dropped. Column order is sorted for stable
// statements.
func (r *Reflector) BuildInsert(table string, values map[string]any) (string, []any, error) {
	schema, err := r.Table(table)
	if err != nil {
		return "", nil, err
	}

	filtered := schema.Filter(values)
	if len(filtered) == 0 {
		return "", nil, fmt.Errorf("no valid columns for table %s", table)
	}

	cols := sortedKeys(filtered)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = filtered[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return query, args, nil
}

// BuildUpdate assembles an UPDATE for the existing columns of values, keyed by
// the where map (ANDed equality).
func (r *Reflector) BuildUpdate(table string, values, where map[string]any) (string, []any, error) {
	schema, err := r.Table(table)
	if err != nil {
		return "", nil, err
	}

	filtered := schema.Filter(values)
	if len(filtered) == 0 {
		return "", nil, fmt.Errorf("no valid columns for table %s", table)
	}
	filteredWhere := schema.Filter(where)
	if len(filteredWhere) == 0 {
		return "", nil, fmt.Errorf("no valid where columns for table %s", table)
	}

	setCols := sortedKeys(filtered)
	sets := make([]string, len(setCols))
	args := make([]any, 0, len(filtered)+len(filteredWhere))
	for i, c := range setCols {
		sets[i] = c + " = ?"
		args = append(args, filtered[c])
	}

	whereCols := sortedKeys(filteredWhere)
	conds := make([]string, len(whereCols))
	for i, c := range whereCols {
		conds[i] = c + " = ?"
		args = append(args, filteredWhere[c])
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		table, strings.Join(sets, ", "), strings.Join(conds, " AND "))
	return query, args, nil
}

// BuildSelect assembles a SELECT * equivalent over the reflected columns.
func (r *Reflector) BuildSelect(table string, where map[string]any, limit int) (string, []any, error) {
	schema, err := r.Table(table)
	if err != nil {
		return "", nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(schema.Columns, ", "), table)
	var args []any

	filteredWhere := schema.Filter(where)
	if len(filteredWhere) > 0 {
		whereCols := sortedKeys(filteredWhere)
		conds := make([]string, len(whereCols))
		for i, c := range whereCols {
			conds[i] = c + " = ?"
			args = append(args, filteredWhere[c])
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query, args, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store executes reflected statements. On a stale-schema error (unknown
// column / no such table) the cached reflection is dropped and the statement
// is rebuilt and retried once.
type Store struct {
	db        *sql.DB
	reflector *Reflector
}

// NewStore creates a store over the reflector's database handle.
func NewStore(db *sql.DB, reflector *Reflector) *Store {
	return &Store{db: db, reflector: reflector}
}

// Reflector exposes the underlying reflector.
func (s *Store) Reflector() *Reflector {
	return s.reflector
}

// Insert writes a row and returns its auto-increment ID.
func (s *Store) Insert(table string, values map[string]any) (int64, error) {
	var id int64
	err := s.withRetry(table, func() error {
		query, args, err := s.reflector.BuildInsert(table, values)
		if err != nil {
			return err
		}
		res, err := s.db.Exec(query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// Update modifies matching rows and returns the affected count.
func (s *Store) Update(table string, values, where map[string]any) (int64, error) {
	var affected int64
	err := s.withRetry(table, func() error {
		query, args, err := s.reflector.BuildUpdate(table, values, where)
		if err != nil {
			return err
		}
		res, err := s.db.Exec(query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// Select reads matching rows into generic maps.
func (s *Store) Select(table string, where map[string]any, limit int) ([]map[string]any, error) {
	var out []map[string]any
	err := s.withRetry(table, func() error {
		query, args, err := s.reflector.BuildSelect(table, where, limit)
		if err != nil {
			return err
		}
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out, err = scanRows(rows)
		return err
	})
	return out, err
}

func (s *Store) withRetry(table string, fn func() error) error {
	err := fn()
	if !isStaleSchemaErr(err) {
		return err
	}

	log.Printf("[SCHEMA] Stale reflection for table %s, refreshing: %v", table, err)
	s.reflector.Invalidate(table)
	return fn()
}

func isStaleSchemaErr(err error) bool {
	if err == nil {
		return false
	}
	mysqlErr, ok := err.(*mysql.MySQLError)
	return ok && (mysqlErr.Number == errUnknownColumn || mysqlErr.Number == errNoSuchTable)
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		raw := make([]sql.RawBytes, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if raw[i] == nil {
				row[c] = nil
			} else {
				row[c] = string(raw[i])
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
