package dto

import (
	"github.com/hugh/dealdesk/internal/analysis"
	"github.com/hugh/dealdesk/internal/api/validation"
)

type SaveAnalysisRequest struct {
	Name            string          `json:"name"`
	PropertyAddress string          `json:"property_address"`
	Inputs          analysis.Inputs `json:"inputs"`
}

// Normalize cleans free-text fields in place.
func (r *SaveAnalysisRequest) Normalize() {
	r.Name = validation.CleanText(r.Name, 120)
	r.PropertyAddress = validation.CleanText(r.PropertyAddress, 255)
}

func (r SaveAnalysisRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	for field, msg := range analysis.ValidateInputs(r.Inputs) {
		errors["inputs."+field] = msg
	}
	return errors
}

type CalculateResponse struct {
	Inputs  analysis.Inputs  `json:"inputs"`
	Results analysis.Results `json:"results"`
}
