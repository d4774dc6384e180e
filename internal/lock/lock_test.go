package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestLockerLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "booking-attempt:idem_1", "holder-1")

	mock.ExpectSetNX("booking-attempt:idem_1", "holder-1", 5*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerLockAlreadyHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "booking-attempt:idem_1", "holder-2")

	mock.ExpectSetNX("booking-attempt:idem_1", "holder-2", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.EqualError(t, err, "lock for key booking-attempt:idem_1 is already held")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerUnlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "booking-attempt:idem_1", "holder-1")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"booking-attempt:idem_1"}, "holder-1").SetVal(int64(1))

	err := locker.Unlock(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerUnlockNotHolder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "booking-attempt:idem_1", "holder-2")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"booking-attempt:idem_1"}, "holder-2").SetVal(int64(0))

	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key booking-attempt:idem_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerWaitLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "booking-attempt:idem_1", "holder-1")

	mock.ExpectSetNX("booking-attempt:idem_1", "holder-1", 5*time.Second).SetVal(true)

	err := locker.WaitLock(context.Background(), 5*time.Second, 2*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
