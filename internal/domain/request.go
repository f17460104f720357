package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultTimeWindowHours applies when an update request omits the window.
const DefaultTimeWindowHours = 24

// UpdateRequest is the inbound payload of the enqueue trigger.
type UpdateRequest struct {
	Communities     []string `json:"communities"`
	TimeWindowHours int      `json:"time_window_hours,omitempty"`
}

type updateRules struct {
	Communities []string `validate:"min=1,max=10,dive,required"`
	Window      int      `validate:"min=1,max=168"`
}

// Validate trims names, fills in the default window and checks the bounds.
func (r *UpdateRequest) Validate() error {
	for i, c := range r.Communities {
		r.Communities[i] = strings.TrimSpace(c)
	}
	if r.TimeWindowHours == 0 {
		r.TimeWindowHours = DefaultTimeWindowHours
	}

	rules := updateRules{Communities: r.Communities, Window: r.TimeWindowHours}
	if err := Validate(&rules); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.StructField() == "Window" {
					return ErrInvalidTimeWindow
				}
			}
		}
		return ErrInvalidCommunities
	}
	return nil
}

// UpdateResult reports how much of a fetch+publish batch reached the queue.
type UpdateResult struct {
	Fetched int `json:"fetched"`
	Queued  int `json:"queued"`
}

// Summary is the response of the summary query for the latest processed day.
type Summary struct {
	Date           string            `json:"date"`
	LatestUpdate   string            `json:"latest_update"`
	TotalProcessed int               `json:"total_processed"`
	Stats          DailyStats        `json:"stats"`
	Communities    []CommunityDigest `json:"subreddit_stats"`
}
