package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMySQLDSN(t *testing.T) {
	cfg := MySQLConfig{
		Host:     "db.internal",
		Port:     3306,
		User:     "procgrid",
		Password: "secret",
		Database: "procgrid",
	}

	dsn := cfg.DSN()
	assert.True(t, strings.HasPrefix(dsn, "procgrid:secret@tcp(db.internal:3306)/procgrid?"))
	assert.Contains(t, dsn, "parseTime=True")
	// The admission compare-and-set reads RowsAffected as the WHERE guard
	// holding; without clientFoundRows the driver reports changed rows and
	// a zero-valued reservation debit would look like exhaustion.
	assert.Contains(t, dsn, "clientFoundRows=true")
}

func TestEngineConfigDefaults(t *testing.T) {
	var cfg EngineConfig
	assert.Equal(t, time.Second, cfg.TickIntervalDuration())
	assert.Equal(t, 7*24*time.Hour, cfg.ArchiveRetention())

	cfg = EngineConfig{TickInterval: 5, ArchiveAfterDays: 30}
	assert.Equal(t, 5*time.Second, cfg.TickIntervalDuration())
	assert.Equal(t, 30*24*time.Hour, cfg.ArchiveRetention())
}
