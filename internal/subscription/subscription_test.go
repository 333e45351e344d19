package subscription

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func initTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:subscription_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	svc := NewService(db)
	require.NoError(t, svc.AutoMigrate())
	return svc, db
}

func TestTierAtLeast(t *testing.T) {
	assert.True(t, TierAtLeast(PlanTierPro, PlanTierBasic))
	assert.True(t, TierAtLeast(PlanTierPro, PlanTierPro))
	assert.True(t, TierAtLeast(PlanTierEnterprise, PlanTierPro))
	assert.False(t, TierAtLeast(PlanTierFree, PlanTierBasic))
	assert.False(t, TierAtLeast(PlanTierBasic, PlanTierPro))
}

func TestCurrentTierWithoutSubscription(t *testing.T) {
	svc, _ := initTestService(t)

	tier, err := svc.CurrentTier(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Equal(t, PlanTierFree, tier)
}

func TestCurrentTierActiveSubscription(t *testing.T) {
	svc, db := initTestService(t)
	userID := uuid.New().String()

	require.NoError(t, db.Create(&UserSubscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		PlanTier:  PlanTierPro,
		Status:    "active",
		StartDate: time.Now().AddDate(0, -1, 0),
	}).Error)

	tier, err := svc.CurrentTier(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, PlanTierPro, tier)
}

func TestCurrentTierPicksLatest(t *testing.T) {
	svc, db := initTestService(t)
	userID := uuid.New().String()

	// 旧的 basic 与新的 pro 并存，取最新生效的
	require.NoError(t, db.Create(&UserSubscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		PlanTier:  PlanTierBasic,
		Status:    "active",
		StartDate: time.Now().AddDate(0, -6, 0),
	}).Error)
	require.NoError(t, db.Create(&UserSubscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		PlanTier:  PlanTierPro,
		Status:    "trialing",
		StartDate: time.Now().AddDate(0, 0, -3),
	}).Error)

	tier, err := svc.CurrentTier(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, PlanTierPro, tier)
}

func TestCurrentTierExpiredFallsBackToFree(t *testing.T) {
	svc, db := initTestService(t)
	userID := uuid.New().String()

	ended := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.Create(&UserSubscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		PlanTier:  PlanTierEnterprise,
		Status:    "active",
		StartDate: time.Now().AddDate(0, -2, 0),
		EndDate:   &ended,
	}).Error)

	tier, err := svc.CurrentTier(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, PlanTierFree, tier)
}
