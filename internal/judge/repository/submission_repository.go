package repository

import (
	"context"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

const (
	defaultSubmissionCacheTTL = 10 * time.Minute
	submissionDetailKeyPrefix = "judge:submission:detail:"
	defaultListLimit          = 50
	maxListLimit              = 200
)

// SubmissionRepository persists submissions and their per-test audit trail.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	// UpdateStatus moves a pending submission to status. It fails with
	// SubmissionFinalized when the submission is no longer pending.
	UpdateStatus(ctx context.Context, submissionID string, status model.SubmissionStatus) error
	AddTestCase(ctx context.Context, tc model.SubmittedTestCase) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.SubmissionSummary, error)
	GetDetail(ctx context.Context, submissionID string) (*model.SubmissionDetail, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db    db.Database
	cache cache.Cache
	ttl   time.Duration
}

// NewSubmissionRepository creates a submission repository. cacheClient may be nil.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache, ttl time.Duration) *MySQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	return &MySQLSubmissionRepository{db: database, cache: cacheClient, ttl: ttl}
}

// Create inserts a pending submission.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	if submission == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("submission is nil")
	}
	if submission.ID == "" {
		return appErr.ValidationError("id", "required")
	}
	if submission.UserID == "" {
		return appErr.ValidationError("user_id", "required")
	}
	if submission.Status == "" {
		submission.Status = model.StatusPending
	}
	query := `
		INSERT INTO submissions (id, user_id, problem_id, language, code, status)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(ctx, query,
		submission.ID,
		submission.UserID,
		submission.ProblemID,
		model.StoredLanguage(submission.Language),
		submission.Code,
		string(submission.Status),
	)
	if err != nil {
		if key, ok := db.UniqueViolation(err); ok {
			return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "duplicate submission key %s", key)
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "create submission failed")
	}
	return nil
}

// UpdateStatus sets the status of a pending submission.
func (r *MySQLSubmissionRepository) UpdateStatus(ctx context.Context, submissionID string, status model.SubmissionStatus) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	query := "UPDATE submissions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?"
	res, err := r.db.Exec(ctx, query, string(status), submissionID, string(model.StatusPending))
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update submission status failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update submission status failed")
	}
	r.invalidate(ctx, submissionID)
	if affected == 0 {
		return appErr.Newf(appErr.SubmissionFinalized, "submission %s is not pending", submissionID)
	}
	return nil
}

// AddTestCase records one evaluated test case.
func (r *MySQLSubmissionRepository) AddTestCase(ctx context.Context, tc model.SubmittedTestCase) error {
	if tc.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	query := `
		INSERT INTO submitted_test_cases (submission_id, position, status, input, expected_output, output)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.Exec(ctx, query, tc.SubmissionID, tc.Position, string(tc.Status), tc.Input, tc.ExpectedOutput, tc.Output); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "record test case failed")
	}
	r.invalidate(ctx, tc.SubmissionID)
	return nil
}

// ListByUser returns a user's submissions, newest first.
func (r *MySQLSubmissionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.SubmissionSummary, error) {
	if userID == "" {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := `
		SELECT s.id, s.status, s.language, COALESCE(p.title, ''), s.created_at
		FROM submissions s
		LEFT JOIN problems p ON p.id = s.problem_id
		WHERE s.user_id = ?
		ORDER BY s.created_at DESC
		LIMIT ?`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	defer rows.Close()

	out := make([]model.SubmissionSummary, 0)
	for rows.Next() {
		var (
			item   model.SubmissionSummary
			status string
		)
		if err := rows.Scan(&item.ID, &status, &item.Language, &item.ProblemName, &item.CreatedAt); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan submission failed")
		}
		item.Status = model.SubmissionStatus(status)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return out, nil
}

// GetDetail returns a submission with its evaluated test cases.
func (r *MySQLSubmissionRepository) GetDetail(ctx context.Context, submissionID string) (*model.SubmissionDetail, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	var (
		detail *model.SubmissionDetail
		err    error
	)
	if r.cache != nil {
		detail, err = cache.GetWithCached[*model.SubmissionDetail](
			ctx,
			r.cache,
			submissionDetailKeyPrefix+submissionID,
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.ttl/10),
			func(d *model.SubmissionDetail) bool { return d == nil },
			marshalJSON[*model.SubmissionDetail],
			unmarshalJSON[*model.SubmissionDetail],
			func(ctx context.Context) (*model.SubmissionDetail, error) {
				return r.getDetailFromDB(ctx, submissionID)
			},
		)
	} else {
		detail, err = r.getDetailFromDB(ctx, submissionID)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	if detail == nil {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	return detail, nil
}

func (r *MySQLSubmissionRepository) getDetailFromDB(ctx context.Context, submissionID string) (*model.SubmissionDetail, error) {
	query := `
		SELECT id, user_id, problem_id, language, code, status, created_at, updated_at
		FROM submissions
		WHERE id = ?
		LIMIT 1`
	detail := &model.SubmissionDetail{}
	var status string
	err := r.db.QueryRow(ctx, query, submissionID).Scan(
		&detail.ID,
		&detail.UserID,
		&detail.ProblemID,
		&detail.Language,
		&detail.Code,
		&status,
		&detail.CreatedAt,
		&detail.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	detail.Status = model.SubmissionStatus(status)

	rows, err := r.db.Query(ctx, `
		SELECT submission_id, position, status, input, expected_output, output, created_at
		FROM submitted_test_cases
		WHERE submission_id = ?
		ORDER BY position ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detail.TestCases = make([]model.SubmittedTestCase, 0)
	for rows.Next() {
		var tc model.SubmittedTestCase
		var tcStatus string
		if err := rows.Scan(&tc.SubmissionID, &tc.Position, &tcStatus, &tc.Input, &tc.ExpectedOutput, &tc.Output, &tc.CreatedAt); err != nil {
			return nil, err
		}
		tc.Status = model.SubmissionStatus(tcStatus)
		detail.TestCases = append(detail.TestCases, tc)
	}
	return detail, rows.Err()
}

func (r *MySQLSubmissionRepository) invalidate(ctx context.Context, submissionID string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, submissionDetailKeyPrefix+submissionID)
}
