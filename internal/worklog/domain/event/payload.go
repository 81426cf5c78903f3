package event

// EntryLoggedPayload captures the payload for entry.logged events.
//
// Logging an existing entry id replaces its hours, project, and note; the
// entry stays in draft either way.
type EntryLoggedPayload struct {
	EntryID      string `json:"entry_id"`
	ProjectID    string `json:"project_id"`
	Date         string `json:"date"`
	QuarterHours int    `json:"quarter_hours"`
	Note         string `json:"note,omitempty"`
}

// EntryDeletedPayload captures the payload for entry.deleted events.
type EntryDeletedPayload struct {
	EntryID string `json:"entry_id"`
}

// AbsenceLoggedPayload captures the payload for absence.logged events.
type AbsenceLoggedPayload struct {
	AbsenceID    string `json:"absence_id"`
	Kind         string `json:"kind"`
	Date         string `json:"date"`
	QuarterHours int    `json:"quarter_hours"`
	Note         string `json:"note,omitempty"`
}

// AbsenceDeletedPayload captures the payload for absence.deleted events.
type AbsenceDeletedPayload struct {
	AbsenceID string `json:"absence_id"`
}

// DaySubmittedPayload captures the payload for day.submitted events.
type DaySubmittedPayload struct {
	Date       string   `json:"date"`
	EntryIDs   []string `json:"entry_ids,omitempty"`
	AbsenceIDs []string `json:"absence_ids,omitempty"`
	Proxy      bool     `json:"proxy,omitempty"`
}

// DayRejectedPayload captures the payload for day.rejected events.
type DayRejectedPayload struct {
	Date       string   `json:"date"`
	Reason     string   `json:"reason"`
	EntryIDs   []string `json:"entry_ids,omitempty"`
	AbsenceIDs []string `json:"absence_ids,omitempty"`
}

// DayRecalledPayload captures the payload for day.recalled events.
type DayRecalledPayload struct {
	Date       string   `json:"date"`
	EntryIDs   []string `json:"entry_ids,omitempty"`
	AbsenceIDs []string `json:"absence_ids,omitempty"`
	Proxy      bool     `json:"proxy,omitempty"`
}

// MonthSubmittedPayload captures the payload for month.submitted events.
type MonthSubmittedPayload struct {
	ReviewerID string   `json:"reviewer_id"`
	EntryIDs   []string `json:"entry_ids,omitempty"`
	AbsenceIDs []string `json:"absence_ids,omitempty"`
	Proxy      bool     `json:"proxy,omitempty"`
}

// MonthApprovedPayload captures the payload for month.approved events.
type MonthApprovedPayload struct {
	ReviewerID string `json:"reviewer_id"`
}

// MonthRejectedPayload captures the payload for month.rejected events.
type MonthRejectedPayload struct {
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

// MonthRecalledPayload captures the payload for month.recalled events.
type MonthRecalledPayload struct {
	Proxy bool `json:"proxy,omitempty"`
}
