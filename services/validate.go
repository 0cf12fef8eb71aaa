package services

import (
	"github.com/go-playground/validator/v10"

	"avolve-rewards/rewards"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRecords checks backend payloads at the edge so a malformed row fails
// fast instead of leaking zero values into the UI.
func validateRecords[T any](op string, records []T) error {
	for i := range records {
		if err := validate.Struct(records[i]); err != nil {
			return rewards.NewError(rewards.ErrInvalidResponse, op, "the rewards service returned a malformed record", err)
		}
	}
	return nil
}
