package ledger

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

var sqlTestTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db), mock
}

func intentRows(state models.IntentState, winner driver.Value) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "payment_token", "payment_token_amount", "rail_type", "recipient_address", "rail_amount",
		"creator_address", "chain_id", "created_at", "state", "winning_solution_id", "resolution_tx_hash",
		"claimed_at", "updated_at",
	}).AddRow("intent-1", testToken, "1000000", "UPI", "merchant@upi", "10000",
		testCreator, 84532, sqlTestTime, string(state), winner, nil, nil, sqlTestTime)
}

func TestSQLStoreCreateIntent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO intents").
		WithArgs("intent-1", testToken, "1000000", "UPI", "merchant@upi", "10000", testCreator, 84532,
			sqlTestTime, "CREATED", sqlTestTime).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateIntent(context.Background(), models.Intent{
		ID:                 "intent-1",
		PaymentToken:       testToken,
		PaymentTokenAmount: "1000000",
		RailType:           models.RailUPI,
		RecipientAddress:   "merchant@upi",
		RailAmount:         "10000",
		CreatorAddress:     testCreator,
		ChainID:            84532,
		CreatedAt:          sqlTestTime,
		State:              models.StateCreated,
		UpdatedAt:          sqlTestTime,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetIntent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM intents WHERE id = \\$1").
		WithArgs("intent-1").
		WillReturnRows(intentRows(models.StateSolutionCommitted, "sol-1"))
	mock.ExpectQuery("SELECT (.+) FROM intents WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	intent, err := store.GetIntent(context.Background(), "intent-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateSolutionCommitted, intent.State)
	require.NotNil(t, intent.WinningSolutionID)
	assert.Equal(t, "sol-1", *intent.WinningSolutionID)
	assert.Nil(t, intent.ResolutionTxHash)
	assert.Nil(t, intent.ClaimedAt)

	_, err = store.GetIntent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreateSolutionUnknownIntent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO solutions").
		WithArgs("sol-1", "missing", solverA, "250", "0x01", sqlTestTime).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	err := store.CreateSolution(context.Background(), models.Solution{
		ID:            "sol-1",
		IntentID:      "missing",
		SolverAddress: solverA,
		AmountWei:     "250",
		Signature:     "0x01",
		CreatedAt:     sqlTestTime,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreTransitionCommit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT intent_id FROM solutions WHERE id = \\$1").
		WithArgs("sol-1").
		WillReturnRows(sqlmock.NewRows([]string{"intent_id"}).AddRow("intent-1"))
	mock.ExpectExec("UPDATE intents").
		WithArgs("SOLUTION_COMMITTED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlTestTime, "intent-1", "CREATED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE solutions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "intent-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM intents WHERE id = \\$1").
		WithArgs("intent-1").
		WillReturnRows(intentRows(models.StateSolutionCommitted, "sol-1"))

	intent, err := store.Transition(context.Background(), "intent-1", models.StateCreated, models.StateSolutionCommitted, Effects{
		WinningSolutionID: ptr("sol-1"),
		CommitmentTxHash:  ptr("0xabc"),
	}, sqlTestTime)
	require.NoError(t, err)
	assert.Equal(t, models.StateSolutionCommitted, intent.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreTransitionStale(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE intents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT state FROM intents WHERE id = \\$1").
		WithArgs("intent-1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("SETTLED"))
	mock.ExpectRollback()

	intent, err := store.Transition(context.Background(), "intent-1", models.StatePaymentClaimed, models.StateResolved, Effects{
		ResolutionTxHash: ptr("0xdef"),
	}, sqlTestTime)
	assert.ErrorIs(t, err, ErrStaleTransition)
	assert.Equal(t, models.StateSettled, intent.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreTransitionNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE intents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT state FROM intents WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), "missing", models.StatePaymentClaimed, models.StateSettled, Effects{
		SettlementTxHash: ptr("0xdef"),
	}, sqlTestTime)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreTransitionForeignWinner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT intent_id FROM solutions WHERE id = \\$1").
		WithArgs("sol-9").
		WillReturnRows(sqlmock.NewRows([]string{"intent_id"}).AddRow("intent-2"))
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), "intent-1", models.StateCreated, models.StateSolutionCommitted, Effects{
		WinningSolutionID: ptr("sol-9"),
		CommitmentTxHash:  ptr("0xabc"),
	}, sqlTestTime)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreTransitionSolutionUpdateRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE intents").
		WithArgs("SETTLED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlTestTime, "intent-1", "PAYMENT_CLAIMED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE solutions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "intent-1").
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), "intent-1", models.StatePaymentClaimed, models.StateSettled, Effects{
		SettlementTxHash: ptr("0xdef"),
	}, sqlTestTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	// the intent update is undone with the rest of the transaction, nothing is committed
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListIntentsFilters(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM intents WHERE state = \\$1 AND LOWER\\(creator_address\\) = LOWER\\(\\$2\\) ORDER BY created_at DESC, id LIMIT \\$3").
		WithArgs("CREATED", testCreator, 10).
		WillReturnRows(intentRows(models.StateCreated, nil))

	intents, err := store.ListIntents(context.Background(), IntentFilter{
		State:          models.StateCreated,
		CreatorAddress: testCreator,
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Nil(t, intents[0].WinningSolutionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
