package timesheet

// RecordStatus is the lifecycle status of a work entry or absence.
type RecordStatus string

const (
	// StatusDraft marks a record the member can still edit.
	StatusDraft RecordStatus = "draft"
	// StatusSubmitted marks a record awaiting review.
	StatusSubmitted RecordStatus = "submitted"
	// StatusApproved marks a record approved with its month; terminal.
	StatusApproved RecordStatus = "approved"
)

// MonthStatus is the lifecycle status of the monthly approval record.
type MonthStatus string

const (
	// MonthPending means the month has not been submitted as a whole.
	MonthPending MonthStatus = "pending"
	// MonthSubmitted means the month awaits reviewer action.
	MonthSubmitted MonthStatus = "submitted"
	// MonthApproved means the reviewer approved the month; terminal.
	MonthApproved MonthStatus = "approved"
	// MonthRejected means the reviewer rejected the month; entries return to
	// draft and the member may resubmit.
	MonthRejected MonthStatus = "rejected"
)

// Entry is one member's worked time on one project for one date.
type Entry struct {
	ID           string
	ProjectID    string
	Date         string
	QuarterHours int
	Note         string
	Status       RecordStatus
}

// Absence is one member's absent time for one date.
type Absence struct {
	ID           string
	Kind         string
	Date         string
	QuarterHours int
	Note         string
	Status       RecordStatus
}

// Approval tracks submission and review state for the month.
type Approval struct {
	Status     MonthStatus
	ReviewerID string
	// SubmittedBy is the actor who submitted (the member, or the reviewer by proxy).
	SubmittedBy string
	Proxy       bool
	// Reason holds the latest monthly rejection reason.
	Reason string
	// EntryIDs and AbsenceIDs list the records covered by the submission.
	EntryIDs   []string
	AbsenceIDs []string
}

// Editable reports whether records may still be mutated given month status.
// Mutation is allowed while the month is pending or after a monthly
// rejection; a submitted or approved month is locked.
func (s MonthStatus) Editable() bool {
	return s == MonthPending || s == MonthRejected || s == ""
}
