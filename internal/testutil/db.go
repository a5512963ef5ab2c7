package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	glog "gorm.io/gorm/logger"

	"github.com/charleshuang3/partnerlink/internal/gormw"
)

// NewDB opens a migrated in-memory database closed at the end of the test.
func NewDB(t *testing.T) *gormw.DB {
	t.Helper()

	db, err := gormw.Open(&gormw.Config{LogLevel: glog.Silent})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	t.Cleanup(func() {
		if sqlDB, err := db.DB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
