package dialog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxPayloadLen is the largest callback payload Telegram accepts, in bytes.
const MaxPayloadLen = 64

const (
	payloadBook         = "book_appointment"
	payloadMyAppts      = "my_appointments"
	payloadViewSchedule = "view_schedule"
	payloadMyReviews    = "my_reviews"
	payloadConfirm      = "confirm_booking"
	payloadCancel       = "cancel_booking"
	prefixSpecialty     = "spec_"
	prefixDoctor        = "doc_"
	prefixDay           = "day_"
	prefixReview        = "review_"
	dateLayout          = "2006-01-02"
)

// PayloadError reports a button payload that does not decode to an Action.
type PayloadError struct {
	Payload string
	Err     error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid button payload %q: %v", e.Payload, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// EncodeAction renders a as its wire payload.
func EncodeAction(a Action) string {
	switch a := a.(type) {
	case BookAppointment:
		return payloadBook
	case MyAppointments:
		return payloadMyAppts
	case ViewSchedule:
		return payloadViewSchedule
	case MyReviews:
		return payloadMyReviews
	case ConfirmBooking:
		return payloadConfirm
	case CancelBooking:
		return payloadCancel
	case ChooseSpecialty:
		return prefixSpecialty + a.Name
	case ChooseDoctor:
		return prefixDoctor + strconv.FormatUint(uint64(a.ID), 10)
	case ChooseDay:
		return prefixDay + a.Date.Format(dateLayout)
	case LeaveReview:
		return prefixReview + strconv.FormatUint(uint64(a.AppointmentID), 10)
	}
	return ""
}

// DecodeAction parses a wire payload. Everything after a prefix belongs to the
// value, so specialty names may themselves contain underscores.
func DecodeAction(payload string) (Action, error) {
	switch payload {
	case payloadBook:
		return BookAppointment{}, nil
	case payloadMyAppts:
		return MyAppointments{}, nil
	case payloadViewSchedule:
		return ViewSchedule{}, nil
	case payloadMyReviews:
		return MyReviews{}, nil
	case payloadConfirm:
		return ConfirmBooking{}, nil
	case payloadCancel:
		return CancelBooking{}, nil
	}

	if name, ok := strings.CutPrefix(payload, prefixSpecialty); ok {
		if name == "" {
			return nil, &PayloadError{Payload: payload, Err: errors.New("empty specialty")}
		}
		return ChooseSpecialty{Name: name}, nil
	}
	if raw, ok := strings.CutPrefix(payload, prefixDoctor); ok {
		id, err := parseID(raw)
		if err != nil {
			return nil, &PayloadError{Payload: payload, Err: err}
		}
		return ChooseDoctor{ID: id}, nil
	}
	if raw, ok := strings.CutPrefix(payload, prefixDay); ok {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, &PayloadError{Payload: payload, Err: err}
		}
		return ChooseDay{Date: d}, nil
	}
	if raw, ok := strings.CutPrefix(payload, prefixReview); ok {
		id, err := parseID(raw)
		if err != nil {
			return nil, &PayloadError{Payload: payload, Err: err}
		}
		return LeaveReview{AppointmentID: id}, nil
	}
	return nil, &PayloadError{Payload: payload, Err: errors.New("unknown action")}
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("id must be positive")
	}
	return uint(n), nil
}
