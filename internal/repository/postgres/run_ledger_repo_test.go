package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/domain"
	"ideaforge/internal/repository/postgres"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return sqlx.NewDb(raw, "sqlmock"), mock
}

func TestRunLedgerRepo_StartRun(t *testing.T) {
	db, mock := newMockDB(t)
	summary := &domain.RunSummary{RunID: uuid.New(), StartedAt: time.Now().UTC()}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO runs (id, started_at)`)).
		WithArgs(summary.RunID, summary.StartedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := postgres.NewRunLedgerRepo(db).StartRun(context.Background(), summary)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerRepo_RecordTransition(t *testing.T) {
	db, mock := newMockDB(t)
	entry := &domain.LedgerEntry{
		ID:         uuid.New(),
		RunID:      uuid.New(),
		Document:   "chat.md",
		State:      domain.StateMined,
		Detail:     "2 of 2 chunk(s) mined",
		RecordedAt: time.Now().UTC(),
	}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO run_transitions`)).
		WithArgs(entry.ID, entry.RunID, entry.Document, entry.State, entry.Detail, entry.RecordedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := postgres.NewRunLedgerRepo(db).RecordTransition(context.Background(), entry)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerRepo_FinishRun(t *testing.T) {
	db, mock := newMockDB(t)
	summary := &domain.RunSummary{
		RunID:      uuid.New(),
		FinishedAt: time.Now().UTC(),
		Documents: []domain.DocumentOutcome{
			{Document: "a.md", State: domain.StatePersisted},
			{Document: "b.md", State: domain.StateFailed},
			{Document: "c.md", State: domain.StateSkipped},
			{Document: "d.md", State: domain.StatePersisted},
		},
		Clusters:      []domain.Cluster{{Name: "All"}},
		Reports:       []string{"Architecture_All.json"},
		ClusterFailed: true,
	}
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE runs SET finished_at`)).
		WithArgs(summary.RunID, summary.FinishedAt, 4, 2, 1, 1, 1, 1, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := postgres.NewRunLedgerRepo(db).FinishRun(context.Background(), summary)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLedgerRepo_FinishRun_UnknownRun(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE runs`)).WillReturnResult(sqlmock.NewResult(0, 0))

	err := postgres.NewRunLedgerRepo(db).FinishRun(context.Background(), &domain.RunSummary{RunID: uuid.New()})

	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestRunLedgerRepo_ListTransitions(t *testing.T) {
	db, mock := newMockDB(t)
	runID := uuid.New()
	at := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "run_id", "document", "state", "detail", "recorded_at"}).
		AddRow(uuid.New().String(), runID.String(), "a.md", "pending", "", at).
		AddRow(uuid.New().String(), runID.String(), "a.md", "persisted", "", at.Add(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM run_transitions WHERE run_id = $1`)).
		WithArgs(runID).
		WillReturnRows(rows)

	entries, err := postgres.NewRunLedgerRepo(db).ListTransitions(context.Background(), runID)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.StatePersisted, entries[1].State)
	assert.Equal(t, runID, entries[0].RunID)
}
