// Package sqlite provides in-memory gorm databases for tests.
package sqlite

import (
	"database/sql"
	"fmt"

	goSqlite "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var hasRegisteredDriver = false

// NewInMemorySqliteWithName returns a named in-memory database so parallel
// tests do not share state.
func NewInMemorySqliteWithName(name string) gorm.Dialector {
	return NewSqlite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

func NewSqlite(path string) gorm.Dialector {
	if !hasRegisteredDriver {
		sql.Register("sqlite3_fk", &goSqlite.SQLiteDriver{
			ConnectHook: func(conn *goSqlite.SQLiteConn) error {
				_, err := conn.Exec("PRAGMA foreign_keys = ON;", nil)
				return err
			},
		})
		hasRegisteredDriver = true
	}
	return &sqlite.Dialector{
		DriverName: "sqlite3_fk",
		DSN:        path,
	}
}

func NewGormSqliteFromSqlite(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}
