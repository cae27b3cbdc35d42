package dialog

import (
	"fmt"
	"strconv"
	"strings"
)

// Review is a parsed review message.
type Review struct {
	Rating  int
	Comment string
}

// ReviewFormatError reports review text that is not "<rating> <comment>".
type ReviewFormatError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ReviewFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("review %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("review %q: %s", e.Input, e.Reason)
}

func (e *ReviewFormatError) Unwrap() error { return e.Err }

// RatingRangeError reports a rating outside 1..5 when strict ratings are on.
type RatingRangeError struct {
	Rating int
}

func (e *RatingRangeError) Error() string {
	return fmt.Sprintf("rating %d is outside 1..5", e.Rating)
}

const (
	MinRating = 1
	MaxRating = 5
)

// ParseReview splits text on its first space into an integer rating and a
// comment. Surrounding whitespace is dropped from the input and from the
// comment. With strict unset any integer rating is accepted as given.
func ParseReview(text string, strict bool) (Review, error) {
	text = strings.TrimSpace(text)
	head, comment, ok := strings.Cut(text, " ")
	if !ok {
		return Review{}, &ReviewFormatError{Input: text, Reason: "expected a rating followed by a comment"}
	}
	rating, err := strconv.Atoi(head)
	if err != nil {
		return Review{}, &ReviewFormatError{Input: text, Reason: "rating is not a whole number", Err: err}
	}
	if strict && (rating < MinRating || rating > MaxRating) {
		return Review{}, &RatingRangeError{Rating: rating}
	}
	return Review{Rating: rating, Comment: strings.TrimSpace(comment)}, nil
}
