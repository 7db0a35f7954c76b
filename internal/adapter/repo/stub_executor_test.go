package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"portraitgen/internal/infra"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubRows struct {
	rows [][]any
	pos  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }

func (r *stubRows) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (r *stubRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	return assign(r.rows[r.pos-1], dest)
}

type storedRow struct {
	id        string
	resultID  string
	slot      int
	url       string
	prompt    string
	createdAt time.Time
}

func (s storedRow) values() []any {
	return []any{s.id, s.resultID, s.slot, s.url, s.prompt, s.slot == 0, s.createdAt}
}

// stubSQL emulates the ledger tables by matching on marker-stripped query text.
type stubSQL struct {
	mu      sync.Mutex
	rows    map[string]storedRow
	queries []string
	prompt  map[string][2]string
	failAll error
	// runClosed makes run marker updates match no running row.
	runClosed bool
}

func newStubSQL() *stubSQL {
	return &stubSQL{rows: make(map[string]storedRow), prompt: make(map[string][2]string)}
}

func (s *stubSQL) record(query string) (string, error) {
	marker, body, err := infra.SplitMarker(query)
	if err != nil {
		return "", err
	}
	s.queries = append(s.queries, marker)
	if s.failAll != nil {
		return "", s.failAll
	}
	return body, nil
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, err := s.record(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	switch {
	case strings.Contains(body, "delete from portrait_candidates"):
		var n int
		for key, row := range s.rows {
			if row.resultID == args[0].(string) {
				delete(s.rows, key)
				n++
			}
		}
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n)), nil
	case strings.Contains(body, "generation_runs"):
		if s.runClosed && strings.HasPrefix(strings.TrimSpace(body), "update") {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unsupported exec: %s", body)
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, err := s.record(query)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(body, "from portrait_candidates") {
		return nil, fmt.Errorf("unsupported query: %s", body)
	}
	var matched []storedRow
	for _, row := range s.rows {
		if row.resultID == args[0].(string) {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].slot < matched[j].slot })
	out := &stubRows{}
	for _, row := range matched {
		out.rows = append(out.rows, row.values())
	}
	return out, nil
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, err := s.record(query)
	if err != nil {
		return stubRow{scan: func(dest ...any) error { return err }}
	}
	switch {
	case strings.Contains(body, "insert into portrait_candidates"):
		resultID := args[0].(string)
		slot := args[1].(int)
		key := fmt.Sprintf("%s/%d", resultID, slot)
		row, ok := s.rows[key]
		if !ok {
			row.id = uuid.NewString()
		}
		row.resultID = resultID
		row.slot = slot
		row.url = args[2].(string)
		row.prompt = args[3].(string)
		row.createdAt = time.Now()
		if ts, ok := args[4].(time.Time); ok {
			row.createdAt = ts
		}
		s.rows[key] = row
		return stubRow{scan: func(dest ...any) error { return assign(row.values(), dest) }}
	case strings.Contains(body, "t.image_prompt"):
		entry, ok := s.prompt[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		return stubRow{scan: func(dest ...any) error { return assign([]any{entry[0]}, dest) }}
	case strings.Contains(body, "select r.id, t.name"):
		entry, ok := s.prompt[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		return stubRow{scan: func(dest ...any) error { return assign([]any{args[0], entry[1]}, dest) }}
	case strings.Contains(body, "from generation_runs"):
		return stubRow{}
	}
	return stubRow{scan: func(dest ...any) error { return fmt.Errorf("unsupported query: %s", body) }}
}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("scan: unsupported target")
		}
	}
	return nil
}
