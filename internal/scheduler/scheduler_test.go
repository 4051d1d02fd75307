package scheduler

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveline/market-research-go/internal/database"
)

func TestScheduler_Prune(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM price_history").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 17))

	s := New(database.NewResearchRepository(mock), 365, "@daily")
	s.prune(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(database.NewResearchRepository(mock), 365, "not a cron spec")
	err = s.Start(context.Background())
	assert.Error(t, err)
}
