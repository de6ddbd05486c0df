package dto

type SeatCountRequest struct {
	Count int `json:"count"`
}

func (r SeatCountRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Count < 1 {
		errors["count"] = "Count must be at least 1"
	}
	return errors
}
