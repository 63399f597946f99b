package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errorColumns = []string{"run_id", "stage", "source", "kind", "message", "context"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "ingestion_errors", errorColumns, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"ingestion_errors"}, errorColumns).WillReturnResult(2)

	rows := [][]any{
		{"r1", "collect", "yelp", "source_unavailable", "missing key", nil},
		{"r1", "quality", "", "quality_anomaly", "drop", nil},
	}
	n, err := CopyFrom(context.Background(), mock, "ingestion_errors", errorColumns, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"ingestion_errors"}, errorColumns).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "ingestion_errors", errorColumns, [][]any{{"r1", "s", "", "k", "m", nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO ingestion_errors")
	assert.NoError(t, mock.ExpectationsWereMet())
}
