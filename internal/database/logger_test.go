package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLoggerTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLogger(zap.New(core), logger.Warn)
	query := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	l.Trace(ctx, time.Now(), query, nil)
	assert.Zero(t, logs.Len(), "misses and fast queries stay quiet at warn")

	l.Trace(ctx, time.Now(), query, errors.New("deadlock"))
	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	entries := logs.TakeAll()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "query failed", entries[0].Message)
		assert.Equal(t, "slow query", entries[1].Message)
		assert.Equal(t, "gorm", entries[1].LoggerName)
	}

	l.LogMode(logger.Silent).Trace(ctx, time.Now(), query, errors.New("ignored"))
	assert.Zero(t, logs.Len())
}
