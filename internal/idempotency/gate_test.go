package idempotency

import (
	"testing"

	"paycat.dev/gateway/internal/config"
	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTest(t *testing.T, withRedis bool) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ProcessedNotification{}))
	database.DB = db
	database.RedisClient = nil

	config.AppConfig = &config.Config{IdempotencyCacheTTLSeconds: 3600}

	if withRedis {
		mr := miniredis.RunT(t)
		database.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
}

func TestFreshThenDuplicate(t *testing.T) {
	setupTest(t, true)

	result, err := CheckAndReserve("app_1", models.PlatformIOS, "uuid-1")
	require.NoError(t, err)
	assert.Equal(t, Fresh, result)

	MarkProcessed("app_1", models.PlatformIOS, "uuid-1", "SUBSCRIBED/INITIAL_BUY")

	result, err = CheckAndReserve("app_1", models.PlatformIOS, "uuid-1")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, result)
}

func TestDedupKeyIsScopedByAppAndPlatform(t *testing.T) {
	setupTest(t, true)

	MarkProcessed("app_1", models.PlatformIOS, "uuid-1", "SUBSCRIBED")

	result, err := CheckAndReserve("app_2", models.PlatformIOS, "uuid-1")
	require.NoError(t, err)
	assert.Equal(t, Fresh, result)

	result, err = CheckAndReserve("app_1", models.PlatformAndroid, "uuid-1")
	require.NoError(t, err)
	assert.Equal(t, Fresh, result)
}

func TestDuplicateDetectionSurvivesWithoutRedis(t *testing.T) {
	setupTest(t, false)

	MarkProcessed("app_1", models.PlatformStripe, "evt_1", "invoice.payment_succeeded")

	result, err := CheckAndReserve("app_1", models.PlatformStripe, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, result)
}

func TestDuplicateDetectionFallsBackWhenRedisDies(t *testing.T) {
	setupTest(t, false)
	mr := miniredis.RunT(t)
	database.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	MarkProcessed("app_1", models.PlatformPaddle, "alert-1", "subscription_created")
	mr.Close()

	// Redis gone: the Postgres witness table is still authoritative.
	result, err := CheckAndReserve("app_1", models.PlatformPaddle, "alert-1")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, result)
}

func TestEmptyUUIDIsTreatedAsFresh(t *testing.T) {
	setupTest(t, false)

	result, err := CheckAndReserve("app_1", models.PlatformIOS, "")
	require.NoError(t, err)
	assert.Equal(t, Fresh, result)

	// Marking with no uuid is a no-op rather than a poisoned witness row.
	MarkProcessed("app_1", models.PlatformIOS, "", "SUBSCRIBED")
	var count int64
	database.DB.Model(&models.ProcessedNotification{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestMarkProcessedIsIdempotentOnUniqueKey(t *testing.T) {
	setupTest(t, false)

	MarkProcessed("app_1", models.PlatformIOS, "uuid-1", "SUBSCRIBED")
	MarkProcessed("app_1", models.PlatformIOS, "uuid-1", "SUBSCRIBED")

	var count int64
	database.DB.Model(&models.ProcessedNotification{}).Count(&count)
	assert.EqualValues(t, 1, count)
}
