package dto

// ManualMatchRequest asks the operator service to credit a specific
// passport from an attempt.
type ManualMatchRequest struct {
	PassportID int64  `json:"passport_id"`
	Note       string `json:"note"`
}

// Validate checks required fields.
func (r *ManualMatchRequest) Validate() string {
	if r.PassportID <= 0 {
		return "passport_id is required"
	}
	return ""
}
