package storage

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// MeasurementLog is the ordered record log shared by the radio side, which
// appends, and the upload side, which drains it.
type MeasurementLog interface {
	Append(records ...entities.Record) error
	// Unuploaded returns up to limit records not yet transmitted, oldest first.
	Unuploaded(limit int) ([]entities.Record, error)
	MarkUploaded(ids ...int64) error
}

const createMeasurementsSQL = `
CREATE TABLE IF NOT EXISTS measurements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    n_values INTEGER NOT NULL,
    uploaded INTEGER NOT NULL DEFAULT 0,
    sensor_values TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS measurements_pending ON measurements(uploaded, id);`

type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLiteLog opens or creates the log at path. ":memory:" keeps it in RAM.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createMeasurementsSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create measurements table")
	}
	return &SQLiteLog{db: db}, nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteLog) Append(records ...entities.Record) error {
	tx, err := l.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	stmt, err := tx.Prepare("INSERT INTO measurements(source, timestamp, n_values, uploaded, sensor_values) VALUES(?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()
	for _, r := range records {
		values, err := json.Marshal(r.Values)
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, "encode values")
		}
		if _, err := stmt.Exec(r.Source.String(), r.Timestamp, len(r.Values), uploaded(r.Flags), string(values)); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "insert measurement")
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func (l *SQLiteLog) Unuploaded(limit int) ([]entities.Record, error) {
	rows, err := l.db.Query("SELECT id, source, timestamp, n_values, sensor_values FROM measurements WHERE uploaded = 0 ORDER BY id LIMIT ?", limit)
	if err != nil {
		return nil, errors.Wrap(err, "query measurements")
	}
	defer rows.Close()

	var records []entities.Record
	for rows.Next() {
		var r entities.Record
		var source, values string
		if err := rows.Scan(&r.ID, &source, &r.Timestamp, &r.Flags.NValues, &values); err != nil {
			return nil, errors.Wrap(err, "scan measurement")
		}
		if r.Source, err = entities.ParseAddress(source); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
			return nil, errors.Wrapf(err, "decode values of %d", r.ID)
		}
		records = append(records, r)
	}
	return records, errors.Wrap(rows.Err(), "iterate measurements")
}

func (l *SQLiteLog) MarkUploaded(ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := l.db.Exec("UPDATE measurements SET uploaded = 1 WHERE id IN ("+placeholders+")", args...)
	return errors.Wrap(err, "mark uploaded")
}

func uploaded(flags entities.RecordFlags) int {
	if flags.Uploaded {
		return 1
	}
	return 0
}
