package gormzerologger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newBufferLogger(level logger.LogLevel) (*GormZerologger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &GormZerologger{
		Logger:                    zerolog.New(buf).Level(zerolog.TraceLevel),
		LogLevel:                  level,
		SlowThreshold:             DefaultSlowThreshold,
		IgnoreRecordNotFoundError: true,
	}, buf
}

func TestParseGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, ParseGormLogLevel("trace"))
	assert.Equal(t, logger.Warn, ParseGormLogLevel("warn"))
	assert.Equal(t, logger.Error, ParseGormLogLevel("error"))
	assert.Equal(t, logger.Silent, ParseGormLogLevel("silent"))
	assert.Equal(t, logger.Info, ParseGormLogLevel("?"))
}

func TestForConfig(t *testing.T) {
	assert.Equal(t, logger.Info, ForConfig("info", false).LogLevel)
	assert.Equal(t, logger.Warn, ForConfig("info", true).LogLevel)
	assert.Equal(t, logger.Info, ForConfig("debug", true).LogLevel)
}

func TestTrace(t *testing.T) {
	l, buf := newBufferLogger(logger.Warn)
	fc := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now(), fc, nil)
	assert.Empty(t, buf.String())

	l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "slow database query")

	buf.Reset()
	l.Trace(context.Background(), time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Contains(t, buf.String(), "database query error")

	buf.Reset()
	silent := l.LogMode(logger.Silent)
	silent.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Empty(t, buf.String())
}
