package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore_AcquireLock(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(rdb, 2*time.Hour)

	key := KeyIdemSession("b-1")
	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(true)

	ok, err := store.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_AcquireLock_Contended(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(rdb, 2*time.Hour)

	key := KeyIdemSession("b-1")
	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(false)

	ok, err := store.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_SaveAndGetResult(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(rdb, 2*time.Hour)

	key := KeyIdemBooking(7, "idem-abc")
	mock.ExpectSet(key, "RES:{\"booking_id\":\"b-1\"}", 2*time.Hour).SetVal("OK")
	mock.ExpectGet(key).SetVal("RES:{\"booking_id\":\"b-1\"}")

	require.NoError(t, store.SaveResult(context.Background(), key, `{"booking_id":"b-1"}`))

	payload, ok, err := store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"booking_id":"b-1"}`, payload)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_GetResult_MissOrLocked(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(rdb, 2*time.Hour)

	key := KeyIdemSession("b-2")
	mock.ExpectGet(key).RedisNil()

	_, ok, err := store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	// A held lock is not a stored result.
	mock.ExpectGet(key).SetVal("LOCK")

	_, ok, err = store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectGet(key).SetVal("LOCK")

	locked, err := store.IsLocked(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_Release(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(rdb, 2*time.Hour)

	key := KeyIdemSession("b-3")
	mock.ExpectDel(key).SetVal(1)

	require.NoError(t, store.Release(context.Background(), key))
	require.NoError(t, mock.ExpectationsWereMet())
}
