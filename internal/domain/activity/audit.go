package activity

import (
	"context"

	"github.com/google/uuid"

	"github.com/claramente/claramente/internal/platform/middleware"
)

// RecordAccess stores an audit entry as an activity of the acting user, so
// a professional's reads of patient data stay queryable after log rotation.
// Entries without an authenticated user (rejected tokens, internal callers)
// are left to the audit log line.
func (s *Service) RecordAccess(ctx context.Context, entry middleware.AuditEntry) error {
	userID, err := uuid.Parse(entry.UserID)
	if err != nil {
		return nil
	}
	_, err = s.Record(ctx, userID, TypePatientDataAccess, map[string]any{
		"patient_id": entry.PatientID,
		"action":     entry.Action,
		"route":      entry.Route,
		"role":       entry.Role,
		"status":     entry.StatusCode,
		"request_id": entry.RequestID,
	})
	return err
}
