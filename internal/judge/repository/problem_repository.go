package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

const (
	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = 5 * time.Minute
	problemSpecKeyPrefix        = "judge:problem:spec:"
	problemCasesKeyPrefix       = "judge:problem:cases:"
)

var errProblemNotFound = errors.New("problem not found")

// ProblemRepository reads problem signatures and their ordered test cases.
type ProblemRepository interface {
	GetSpec(ctx context.Context, problemID string) (model.ProblemSpec, error)
	ListTestCases(ctx context.Context, problemID string) ([]model.TestCase, error)
}

// MySQLProblemRepository implements ProblemRepository with MySQL and an optional read-through cache.
type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a problem repository. cacheClient may be nil.
func NewProblemRepository(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &MySQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// GetSpec returns the function signature of a problem.
func (r *MySQLProblemRepository) GetSpec(ctx context.Context, problemID string) (model.ProblemSpec, error) {
	if problemID == "" {
		return model.ProblemSpec{}, appErr.ValidationError("problem_id", "required")
	}
	var (
		spec model.ProblemSpec
		err  error
	)
	if r.cache != nil {
		spec, err = cache.GetWithCached[model.ProblemSpec](
			ctx,
			r.cache,
			problemSpecKeyPrefix+problemID,
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(spec model.ProblemSpec) bool { return spec.ID == "" },
			marshalJSON[model.ProblemSpec],
			unmarshalJSON[model.ProblemSpec],
			func(ctx context.Context) (model.ProblemSpec, error) {
				spec, err := r.getSpecFromDB(ctx, problemID)
				if errors.Is(err, errProblemNotFound) {
					return model.ProblemSpec{}, nil
				}
				return spec, err
			},
		)
	} else {
		spec, err = r.getSpecFromDB(ctx, problemID)
		if errors.Is(err, errProblemNotFound) {
			err = nil
		}
	}
	if err != nil {
		return model.ProblemSpec{}, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	if spec.ID == "" {
		return model.ProblemSpec{}, appErr.Newf(appErr.ProblemNotFound, "Problem with ID '%s' does not exist.", problemID)
	}
	return spec, nil
}

// ListTestCases returns the test cases of a problem in stored order.
// A problem without test cases yields an empty slice.
func (r *MySQLProblemRepository) ListTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	if problemID == "" {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	var (
		cases []model.TestCase
		err   error
	)
	if r.cache != nil {
		cases, err = cache.GetWithCached[[]model.TestCase](
			ctx,
			r.cache,
			problemCasesKeyPrefix+problemID,
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(cases []model.TestCase) bool { return len(cases) == 0 },
			marshalJSON[[]model.TestCase],
			unmarshalJSON[[]model.TestCase],
			func(ctx context.Context) ([]model.TestCase, error) {
				return r.listTestCasesFromDB(ctx, problemID)
			},
		)
	} else {
		cases, err = r.listTestCasesFromDB(ctx, problemID)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	return cases, nil
}

func (r *MySQLProblemRepository) getSpecFromDB(ctx context.Context, problemID string) (model.ProblemSpec, error) {
	query := "SELECT id, title, function_name, args, return_type FROM problems WHERE id = ? LIMIT 1"
	var (
		spec model.ProblemSpec
		args []byte
	)
	err := r.db.QueryRow(ctx, query, problemID).Scan(&spec.ID, &spec.Title, &spec.FunctionName, &args, &spec.ReturnType)
	if err != nil {
		if db.IsNoRows(err) {
			return model.ProblemSpec{}, errProblemNotFound
		}
		return model.ProblemSpec{}, err
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &spec.Args); err != nil {
			return model.ProblemSpec{}, appErr.Wrapf(err, appErr.ProblemInvalid, "decode problem args failed")
		}
	}
	return spec, nil
}

func (r *MySQLProblemRepository) listTestCasesFromDB(ctx context.Context, problemID string) ([]model.TestCase, error) {
	query := `
		SELECT id, position, input, output
		FROM test_cases
		WHERE problem_id = ?
		ORDER BY position ASC, id ASC`
	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.Position, &tc.Input, &tc.Output); err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

func marshalJSON[T any](v T) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalJSON[T any](data string) (T, error) {
	var v T
	if data == "" || data == cache.NullCacheValue {
		return v, nil
	}
	err := json.Unmarshal([]byte(data), &v)
	return v, err
}
