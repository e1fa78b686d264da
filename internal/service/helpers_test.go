package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.KPIScore{},
		&models.TrainingAssignment{},
		&models.AuditSchedule{},
		&models.EmailLog{},
		&models.EmailTemplate{},
		&models.RecipientGroup{},
		&models.LifecycleEvent{},
		&models.Notification{},
		&models.KPIConfiguration{},
	))
	return db
}

type recordingSender struct {
	mu      sync.Mutex
	sent    []EmailMessage
	failFor map[string]error
}

func (r *recordingSender) Send(ctx context.Context, message EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[strings.ToLower(message.To)]; ok {
		return err
	}
	r.sent = append(r.sent, message)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func floatPtr(v float64) *float64 { return &v }
