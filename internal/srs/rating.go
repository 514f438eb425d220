package srs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/readq/internal/errs"
)

// Rating is the user's grade for one review.
type Rating int

const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// IsValid reports whether r is one of Again, Hard, Good or Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

// Validate returns an ErrValidation for ratings outside 1..4.
func (r Rating) Validate() error {
	if !r.IsValid() {
		return errs.Validationf("rating %d outside 1..4", int(r))
	}
	return nil
}

// ParseRating accepts "1".."4" or a rating name in any case.
func ParseRating(s string) (Rating, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for r := Again; r <= Easy; r++ {
		if s == ratingNames[r] || s == fmt.Sprint(int(r)) {
			return r, nil
		}
	}
	return 0, errs.Validationf("unknown rating %q", s)
}

// MarshalJSON writes the rating as its number, matching the presentation wire.
func (r Rating) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(r))
}

// UnmarshalJSON accepts a number or a rating name. Range checks happen
// where the rating is applied so the caller gets a ValidationError there.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*r = Rating(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errs.Validationf("rating must be a number or name: %s", data)
	}
	v, err := ParseRating(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}
