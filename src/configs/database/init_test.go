package database

import (
	"strings"
	"testing"
)

func TestOpen_UnsupportedDSN(t *testing.T) {
	tests := []string{"", "redis://localhost:6379", "file.db"}
	for _, dsn := range tests {
		t.Run(dsn, func(t *testing.T) {
			_, _, err := Open(dsn)
			if err == nil || !strings.Contains(err.Error(), "不支持的数据库类型") {
				t.Errorf("Open(%q) err = %v", dsn, err)
			}
		})
	}
}

func TestInitDB_RequiresEnv(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")
	if Enabled() {
		t.Error("Enabled() = true without DATABASE_URL")
	}
	if _, _, err := InitDB(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}

func TestOpen_SQLite(t *testing.T) {
	db, dbType, err := Open("sqlite://file::memory:?cache=shared")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if dbType != "sqlite" {
		t.Errorf("dbType = %s", dbType)
	}
	if !db.Migrator().HasTable("analysis_records") {
		t.Error("analysis_records table not migrated")
	}
}
