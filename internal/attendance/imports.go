package attendance

import (
	"context"
	"encoding/json"
	"strings"
)

// RosterImportType is the queue message type of a roster import.
const RosterImportType = "roster.import"

// RosterImport is a parsed roster handed over by the ingestion side, to be
// registered on behalf of OwnerID.
type RosterImport struct {
	OwnerID string             `json:"ownerId"`
	Course  CourseRegistration `json:"course"`
}

// EncodeRosterImport builds the queue payload of an import.
func EncodeRosterImport(imp RosterImport) ([]byte, error) {
	if strings.TrimSpace(imp.OwnerID) == "" {
		return nil, validationf("roster import needs an owner")
	}
	return json.Marshal(imp)
}

// ApplyRosterImport decodes a queued import and registers the course.
func (s *Service) ApplyRosterImport(ctx context.Context, body []byte) (Course, error) {
	var imp RosterImport
	if err := json.Unmarshal(body, &imp); err != nil {
		return Course{}, validationf("malformed roster import: %v", err)
	}
	if strings.TrimSpace(imp.OwnerID) == "" {
		return Course{}, validationf("roster import needs an owner")
	}
	return s.RegisterCourse(ctx, Caller{ID: imp.OwnerID, Role: RoleFaculty}, imp.Course)
}
