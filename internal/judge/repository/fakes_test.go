package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"codejudge/internal/common/db"
	"codejudge/internal/common/mq"
)

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type fakeRows struct {
	rows [][]interface{}
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error { return assign(r.rows[r.idx-1], dest) }
func (r *fakeRows) Err() error                     { return nil }
func (r *fakeRows) Close() error                   { return nil }

type fakeResult struct{ affected int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

func assign(values []interface{}, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: have %d values, want %d", len(values), len(dest))
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i]).Elem()
		src := reflect.ValueOf(v)
		if !src.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan column %d: %s into %s", i, src.Type(), target.Type())
		}
		target.Set(src)
	}
	return nil
}

type execCall struct {
	query string
	args  []interface{}
}

// fakeDB answers queries by the first registered substring match.
type fakeDB struct {
	mu       sync.Mutex
	rows     map[string][][]interface{}
	row      map[string]fakeRow
	affected int64
	execErr  error
	execs    []execCall
	queries  int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		rows:     make(map[string][][]interface{}),
		row:      make(map[string]fakeRow),
		affected: 1,
	}
}

func (f *fakeDB) Query(_ context.Context, query string, _ ...interface{}) (db.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	for key, rows := range f.rows {
		if strings.Contains(query, key) {
			return &fakeRows{rows: rows}, nil
		}
	}
	return &fakeRows{}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, _ ...interface{}) db.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	for key, row := range f.row {
		if strings.Contains(query, key) {
			return row
		}
	}
	return fakeRow{err: sql.ErrNoRows}
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, execCall{query: query, args: args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	return fakeResult{affected: f.affected}, nil
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }

type recordingProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, message *mq.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.messages = append(p.messages, message)
	return nil
}

func (p *recordingProducer) Ping(context.Context) error { return nil }
func (p *recordingProducer) Close() error               { return nil }

type memoryStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *memoryStorage) EnsureBucket(context.Context, string) error { return nil }

func (s *memoryStorage) PutObject(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	s.objects[bucket+"/"+key] = data
	s.types[bucket+"/"+key] = contentType
	return nil
}
