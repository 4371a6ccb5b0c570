package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/siloamhealth/siloam-auth/internal/auth/audit"
)

type auditEventsRepo struct {
	db *sql.DB
}

func (r *auditEventsRepo) Append(ctx context.Context, e audit.Event) error {
	payload := "{}"
	if len(e.Payload) > 0 {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		payload = string(raw)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, timestamp, account_id, email, role,
			action, resource, ip_address, user_agent,
			status_code, success, error_message, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, e.AccountID, e.Email, e.Role,
		e.Action, e.Resource, e.IPAddress, e.UserAgent,
		e.StatusCode, e.Success, e.ErrorMessage, payload,
	)
	return err
}

func (r *auditEventsRepo) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, timestamp, account_id, email, role,
			action, resource, ip_address, user_agent,
			status_code, success, error_message, payload
		FROM audit_events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e          audit.Event
			payloadRaw string
		)
		err := rows.Scan(
			&e.ID, &e.Timestamp, &e.AccountID, &e.Email, &e.Role,
			&e.Action, &e.Resource, &e.IPAddress, &e.UserAgent,
			&e.StatusCode, &e.Success, &e.ErrorMessage, &payloadRaw,
		)
		if err != nil {
			return nil, err
		}
		if payloadRaw != "" && payloadRaw != "{}" {
			if err := json.Unmarshal([]byte(payloadRaw), &e.Payload); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
