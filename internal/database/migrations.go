package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Migration representa un cambio de esquema versionado
type Migration struct {
	Version     int
	Description string
	Apply       func(tx *sql.Tx) error
}

// migrations es la lista ordenada de migraciones del esquema. Las bases
// de datos heredadas pueden traer la tabla envios sin las columnas más
// recientes, por eso las altas de columna comprueban pragma_table_info
// en lugar de intentar el ALTER e ignorar el fallo.
var migrations = []Migration{
	{
		Version:     1,
		Description: "crear tabla envios con índices",
		Apply: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS envios (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					fecha_envio TEXT NOT NULL,
					num_factura TEXT,
					empresa TEXT,
					estado TEXT,
					detalles TEXT,
					pdf_url TEXT,
					excel_path TEXT,
					pdf_local_path TEXT,
					importe REAL DEFAULT 0.0,
					cliente TEXT
				)
			`); err != nil {
				return err
			}
			// El índice de cliente se crea en la migración 2: una base
			// heredada trae envios sin esa columna todavía
			for _, stmt := range []string{
				"CREATE INDEX IF NOT EXISTS idx_fecha_envio ON envios(fecha_envio)",
				"CREATE INDEX IF NOT EXISTS idx_empresa ON envios(empresa)",
				"CREATE INDEX IF NOT EXISTS idx_estado ON envios(estado)",
				"CREATE INDEX IF NOT EXISTS idx_num_factura ON envios(num_factura)",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "completar columnas de envios en bases heredadas",
		Apply: func(tx *sql.Tx) error {
			for col, def := range map[string]string{
				"importe":        "REAL DEFAULT 0.0",
				"cliente":        "TEXT",
				"pdf_local_path": "TEXT",
			} {
				if err := addColumnIfMissing(tx, "envios", col, def); err != nil {
					return err
				}
			}
			_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_cliente ON envios(cliente)")
			return err
		},
	},
	{
		Version:     3,
		Description: "crear tabla offline_queue con índices",
		Apply: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS offline_queue (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					xml_content BLOB NOT NULL,
					num_factura TEXT NOT NULL,
					empresa TEXT NOT NULL,
					ejercicio TEXT,
					cliente_doc TEXT,
					api_key TEXT,
					fecha_creacion TEXT NOT NULL,
					intentos INTEGER DEFAULT 0,
					ultimo_intento TEXT,
					estado TEXT DEFAULT 'PENDING',
					error_message TEXT
				)
			`); err != nil {
				return err
			}
			// Las colas creadas por versiones anteriores no guardaban el error
			if err := addColumnIfMissing(tx, "offline_queue", "error_message", "TEXT"); err != nil {
				return err
			}
			for _, stmt := range []string{
				"CREATE INDEX IF NOT EXISTS idx_queue_estado ON offline_queue(estado)",
				"CREATE INDEX IF NOT EXISTS idx_queue_fecha ON offline_queue(fecha_creacion)",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "normalizar vocabulario de estados heredado",
		Apply: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"UPDATE envios SET estado = 'OK' WHERE estado LIKE 'ÉXITO%' OR estado = 'SUCCESS'",
				"UPDATE envios SET estado = 'ERROR' WHERE estado = 'FALLIDO'",
				"UPDATE offline_queue SET estado = 'PENDING' WHERE estado = 'PENDIENTE'",
				"UPDATE offline_queue SET estado = 'SENT' WHERE estado IN ('ENVIADO', 'PROCESADO')",
				"UPDATE offline_queue SET estado = 'FAILED' WHERE estado = 'FALLIDO'",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version:     5,
		Description: "añadir clave de correlación de lote a envios",
		Apply: func(tx *sql.Tx) error {
			if err := addColumnIfMissing(tx, "envios", "batch_id", "TEXT"); err != nil {
				return err
			}
			_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_batch_id ON envios(batch_id)")
			return err
		},
	},
}

// RunMigrations aplica las migraciones pendientes. Es idempotente:
// cada versión se registra en schema_migrations y no se reaplica.
func RunMigrations(db *DB, logger *logrus.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("error creating schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("error checking migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		err = db.WithTransaction(func(tx *sql.Tx) error {
			if err := m.Apply(tx); err != nil {
				return err
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.Version, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("error applying migration %d (%s): %w", m.Version, m.Description, err)
		}

		logger.WithFields(logrus.Fields{
			"version":     m.Version,
			"description": m.Description,
		}).Info("Migration applied")
	}

	return nil
}

// addColumnIfMissing añade una columna solo si la tabla no la tiene ya
func addColumnIfMissing(tx *sql.Tx, table, column, definition string) error {
	var count int
	err := tx.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?",
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("error inspecting table %s: %w", table, err)
	}
	if count > 0 {
		return nil
	}

	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	if err != nil {
		return fmt.Errorf("error adding column %s.%s: %w", table, column, err)
	}
	return nil
}
