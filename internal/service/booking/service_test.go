package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/kaminskyi/eventbook/internal/gateway"
	redisrepo "github.com/kaminskyi/eventbook/internal/repository/redis"
	"github.com/stretchr/testify/require"
)

func TestStoreSessionResult(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	svc := &Service{idem: redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)}

	key := redisrepo.KeyIdemSession("b-1")
	session := gateway.Session{ID: "cs_1", RedirectURL: "https://pay.example/cs_1"}

	mock.ExpectSet(key, `RES:{"id":"cs_1","redirect_url":"https://pay.example/cs_1"}`, 2*time.Hour).SetVal("OK")

	svc.storeSessionResult(context.Background(), key, session)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSessionResult_ReleasesLockOnFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	svc := &Service{idem: redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)}

	key := redisrepo.KeyIdemSession("b-2")
	session := gateway.Session{ID: "cs_2", RedirectURL: "https://pay.example/cs_2"}

	// When the result cannot be stored the lock must be dropped immediately;
	// otherwise concurrent retries are rejected with ErrSessionInProgress
	// until the lock TTL runs out.
	mock.ExpectSet(key, `RES:{"id":"cs_2","redirect_url":"https://pay.example/cs_2"}`, 2*time.Hour).
		SetErr(errors.New("connection reset"))
	mock.ExpectDel(key).SetVal(1)

	svc.storeSessionResult(context.Background(), key, session)

	require.NoError(t, mock.ExpectationsWereMet())
}
