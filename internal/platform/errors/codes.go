// Package errors provides structured, code-tagged error handling.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeEntryHoursInvalid     Code = "ENTRY_HOURS_INVALID"
	CodeEntryDateInvalid      Code = "ENTRY_DATE_INVALID"
	CodeEntryProjectMissing   Code = "ENTRY_PROJECT_MISSING"
	CodeDailyHourCapExceeded  Code = "DAILY_HOUR_CAP_EXCEEDED"
	CodeRejectionReasonEmpty  Code = "REJECTION_REASON_EMPTY"
	CodeMemberIDMissing       Code = "MEMBER_ID_MISSING"
	CodeMonthInvalid          Code = "MONTH_INVALID"
	CodeAbsenceKindInvalid    Code = "ABSENCE_KIND_INVALID"
	CodeNothingToSubmit       Code = "NOTHING_TO_SUBMIT"
	CodeNothingToReject       Code = "NOTHING_TO_REJECT"
	CodeNothingToRecall       Code = "NOTHING_TO_RECALL"
	CodeReviewerMissing       Code = "REVIEWER_MISSING"

	// Authorization errors
	CodeActorNotMember   Code = "ACTOR_NOT_MEMBER"
	CodeActorNotReviewer Code = "ACTOR_NOT_REVIEWER"
	CodeProxyNotAllowed  Code = "PROXY_NOT_ALLOWED"

	// State transition errors
	CodeEntryNotEditable     Code = "ENTRY_NOT_EDITABLE"
	CodeMonthNotPending      Code = "MONTH_NOT_PENDING"
	CodeMonthNotSubmitted    Code = "MONTH_NOT_SUBMITTED"
	CodeMonthAlreadyDecided  Code = "MONTH_ALREADY_DECIDED"
	CodeMonthLocked          Code = "MONTH_LOCKED"
	CodeEntryAlreadyApproved Code = "ENTRY_ALREADY_APPROVED"

	// Concurrency / storage errors
	CodeVersionConflict Code = "VERSION_CONFLICT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeStorageFailure  Code = "STORAGE_FAILURE"
	CodeInternal        Code = "INTERNAL"
)

// HTTPStatus maps an error code to an HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeEntryHoursInvalid, CodeEntryDateInvalid, CodeEntryProjectMissing,
		CodeDailyHourCapExceeded, CodeRejectionReasonEmpty, CodeMemberIDMissing,
		CodeMonthInvalid, CodeAbsenceKindInvalid, CodeNothingToSubmit,
		CodeNothingToReject, CodeNothingToRecall, CodeReviewerMissing:
		return http.StatusBadRequest
	case CodeActorNotMember, CodeActorNotReviewer, CodeProxyNotAllowed:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeVersionConflict:
		return http.StatusConflict
	case CodeEntryNotEditable, CodeMonthNotPending, CodeMonthNotSubmitted,
		CodeMonthAlreadyDecided, CodeMonthLocked, CodeEntryAlreadyApproved:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
