package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/factunabo/factunabo-service/internal/config"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// DB representa la conexión a la base de datos
type DB struct {
	*sql.DB
}

// Connect abre la base de datos SQLite y aplica las migraciones pendientes
func Connect(cfg *config.Config, logger *logrus.Logger) (*DB, error) {
	db, err := Open(cfg.GetDSN())
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return db, nil
}

// Open abre la base de datos sin aplicar migraciones
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// SQLite admite un único escritor; un pool de una conexión
	// serializa las operaciones sin errores SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	return &DB{db}, nil
}

// Close cierra la conexión a la base de datos
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck verifica la salud de la base de datos
func (db *DB) HealthCheck() error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}

	return nil
}

// queryTimeout acota la duración de cada operación contra la base de
// datos. Las lecturas crean su propio contexto en el repositorio y no
// lo cancelan hasta haber consumido todas las filas: cancelar antes
// cierra el *sql.Rows a medio escanear.
const queryTimeout = 30 * time.Second

// ExecWithTimeout ejecuta una query de escritura con timeout
func (db *DB) ExecWithTimeout(query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return db.ExecContext(ctx, query, args...)
}

// WithTransaction ejecuta una función dentro de una transacción
func (db *DB) WithTransaction(fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back transaction: %w, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}
