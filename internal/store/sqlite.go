package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// SQLite backs both the event store and the recipient registry with a
// single database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database, verifies its integrity and applies the
// schema. A failed integrity check is reported as ErrCorrupted so callers
// can fall back to the snapshot path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w: %w", ErrCorrupted, err)
	}

	var check string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&check); err != nil || check != "ok" {
		db.Close()
		if err == nil {
			err = fmt.Errorf("integrity_check: %s", check)
		}
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT,
			location TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			sensor_value REAL,
			created_at DATETIME NOT NULL,
			sms_dispatched INTEGER NOT NULL DEFAULT 0,
			email_dispatched INTEGER NOT NULL DEFAULT 0,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			acknowledged_by TEXT,
			acknowledged_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS recipients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT,
			email TEXT,
			region TEXT,
			latitude REAL,
			longitude REAL,
			opt_sms INTEGER NOT NULL DEFAULT 0,
			opt_email INTEGER NOT NULL DEFAULT 0,
			opt_push INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
		CREATE INDEX IF NOT EXISTS idx_recipients_region ON recipients(region);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Insert(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (
			id, type, severity, title, message, location, latitude, longitude,
			sensor_value, created_at, sms_dispatched, email_dispatched,
			acknowledged, acknowledged_by, acknowledged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, string(e.Type), string(e.Severity), e.Title, e.Message, e.Location,
		e.Coordinates.Lat, e.Coordinates.Lng, e.SensorValue, e.CreatedAt,
		e.SMSDispatched, e.EmailDispatched,
		e.Acknowledged, e.AcknowledgedBy, e.AcknowledgedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting event %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLite) GetByID(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, selectEvents+" WHERE id = ?", id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting event %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLite) List(ctx context.Context, f Filter) ([]models.Event, error) {
	query := selectEvents + " WHERE 1=1"
	args := []any{}

	if f.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, *f.Since)
	}
	if f.Type != nil {
		query += " AND type = ?"
		args = append(args, string(*f.Type))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryEvents(ctx, query, args...)
}

func (s *SQLite) DispatchedSince(ctx context.Context, since time.Time, ch models.Channel) ([]models.Event, error) {
	var flag string
	switch ch {
	case models.ChannelSMS:
		flag = "sms_dispatched"
	case models.ChannelEmail:
		flag = "email_dispatched"
	default:
		return nil, fmt.Errorf("no dispatch flag for channel %q", ch)
	}

	query := selectEvents + " WHERE created_at >= ? AND " + flag + " = 1"
	return s.queryEvents(ctx, query, since)
}

func (s *SQLite) ByRegion(ctx context.Context, region string) ([]models.Event, error) {
	query := selectEvents + " WHERE LOWER(location) LIKE ?"
	pattern := "%" + strings.ToLower(region) + "%"
	return s.queryEvents(ctx, query, pattern)
}

func (s *SQLite) Acknowledge(ctx context.Context, id, by string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET acknowledged = 1, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged = 0
	`, by, at, id)
	if err != nil {
		return false, fmt.Errorf("acknowledging event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish "unknown id" from "already acknowledged": acknowledging
	// twice is a no-op, not a failure.
	var acked bool
	err = s.db.QueryRowContext(ctx, "SELECT acknowledged FROM events WHERE id = ?", id).Scan(&acked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acked, nil
}

const selectEvents = `
	SELECT id, type, severity, title, message, location, latitude, longitude,
	       sensor_value, created_at, sms_dispatched, email_dispatched,
	       acknowledged, acknowledged_by, acknowledged_at
	FROM events
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var message, location, ackBy sql.NullString
	var sensorValue sql.NullFloat64
	var ackAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.Type, &e.Severity, &e.Title, &message, &location,
		&e.Coordinates.Lat, &e.Coordinates.Lng, &sensorValue, &e.CreatedAt,
		&e.SMSDispatched, &e.EmailDispatched,
		&e.Acknowledged, &ackBy, &ackAt,
	)
	if err != nil {
		return nil, err
	}

	e.Message = message.String
	e.Location = location.String
	e.SensorValue = sensorValue.Float64
	e.AcknowledgedBy = ackBy.String
	if ackAt.Valid {
		t := ackAt.Time
		e.AcknowledgedAt = &t
	}
	return &e, nil
}

func (s *SQLite) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *SQLite) UpsertRecipient(ctx context.Context, r *models.Recipient) error {
	var lat, lng sql.NullFloat64
	if r.Coordinates != nil {
		lat = sql.NullFloat64{Float64: r.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: r.Coordinates.Lng, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipients (
			id, name, phone, email, region, latitude, longitude,
			opt_sms, opt_email, opt_push, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email,
			region = excluded.region,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			opt_sms = excluded.opt_sms,
			opt_email = excluded.opt_email,
			opt_push = excluded.opt_push,
			active = excluded.active
	`,
		r.ID, r.Name, r.Phone, r.Email, r.Region, lat, lng,
		r.OptIns.SMS, r.OptIns.Email, r.OptIns.Push, r.Active, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting recipient %s: %w", r.ID, err)
	}
	return nil
}

// Recipients returns active recipients, optionally narrowed to a region.
func (s *SQLite) Recipients(ctx context.Context, region string) ([]models.Recipient, error) {
	query := `
		SELECT id, name, phone, email, region, latitude, longitude,
		       opt_sms, opt_email, opt_push, active, created_at
		FROM recipients
		WHERE active = 1
	`
	args := []any{}
	if region != "" {
		query += " AND LOWER(region) = ?"
		args = append(args, strings.ToLower(region))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recipients: %w", err)
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var r models.Recipient
		var phone, email, reg sql.NullString
		var lat, lng sql.NullFloat64

		err := rows.Scan(
			&r.ID, &r.Name, &phone, &email, &reg, &lat, &lng,
			&r.OptIns.SMS, &r.OptIns.Email, &r.OptIns.Push, &r.Active, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}

		r.Phone = phone.String
		r.Email = email.String
		r.Region = reg.String
		if lat.Valid && lng.Valid {
			r.Coordinates = &models.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}
