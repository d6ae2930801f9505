package ledger_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/okian/lanes/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLLedger_TryInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := ledger.NewSQL(sqlx.NewDb(db, "postgres"))
	ctx := context.Background()

	testCases := []struct {
		name      string
		setupMock func()
		want      bool
		wantErr   bool
	}{
		{
			name: "new pair is inserted",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO clicks").
					WithArgs("job-1", "alice").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			want: true,
		},
		{
			name: "existing pair hits the conflict clause",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO clicks").
					WithArgs("job-1", "alice").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			want: false,
		},
		{
			name: "database failure surfaces",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO clicks").
					WithArgs("job-1", "alice").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			got, callErr := l.TryInsert(ctx, "job-1", "alice")
			if tc.wantErr {
				assert.Error(t, callErr)
			} else {
				require.NoError(t, callErr)
				assert.Equal(t, tc.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLLedger_Queries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := ledger.NewSQL(sqlx.NewDb(db, "postgres"))
	ctx := context.Background()

	mock.ExpectQuery("SELECT item_id FROM clicks").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"item_id"}).AddRow("job-1").AddRow("job-2"))
	items, err := l.ActorItems(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1", "job-2"}, items)

	assert.NoError(t, mock.ExpectationsWereMet())
}
