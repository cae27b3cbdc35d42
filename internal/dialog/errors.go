package dialog

import "errors"

var (
	// ErrUnexpectedEvent is returned when the current state has no handler
	// for the inbound event, e.g. free text while a menu is showing.
	ErrUnexpectedEvent = errors.New("event not expected in this state")

	// ErrReviewNotAllowed is returned when a review is requested for an
	// appointment that is not the user's own or is not Completed.
	ErrReviewNotAllowed = errors.New("appointment cannot be reviewed")

	// ErrNoDoctorProfile is returned when a doctor account has no doctors row
	// with a matching name.
	ErrNoDoctorProfile = errors.New("no doctor profile for this account")
)

const (
	textTryAgain      = "Something went wrong, please try again."
	textUseButtons    = "Please use the buttons above, or send /start to start over."
	textReviewFormat  = "Please send your review as a rating followed by a comment, e.g. \"5 Great doctor\"."
	textRatingRange   = "Please give a rating from 1 to 5, followed by a comment."
	textReviewRefused = "Only your completed appointments can be reviewed."
	textNoProfile     = "Your account is not linked to a doctor profile yet."
)

// FailureText returns the message shown to a user whose turn failed with err.
// The conversation stays where it was.
func FailureText(err error) string {
	var (
		payloadErr *PayloadError
		formatErr  *ReviewFormatError
		rangeErr   *RatingRangeError
	)
	switch {
	case errors.Is(err, ErrUnexpectedEvent), errors.As(err, &payloadErr):
		return textUseButtons
	case errors.As(err, &formatErr):
		return textReviewFormat
	case errors.As(err, &rangeErr):
		return textRatingRange
	case errors.Is(err, ErrReviewNotAllowed):
		return textReviewRefused
	case errors.Is(err, ErrNoDoctorProfile):
		return textNoProfile
	}
	return textTryAgain
}

// UserFacing reports whether err was caused by what the user sent rather than
// by the bot or its store.
func UserFacing(err error) bool {
	return FailureText(err) != textTryAgain
}
