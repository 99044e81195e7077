package server

import (
	"microlab/internal/domain"
)

type CreateFormRequest struct {
	ID           *string `json:"id,omitempty"`
	Title        string  `json:"title"`
	Brand        *string `json:"brand,omitempty"`
	Site         *string `json:"site,omitempty"`
	SampleDate   *string `json:"sample_date,omitempty"`
	AnalysisDate *string `json:"analysis_date,omitempty"`
	LegacyRef    *string `json:"legacy_ref,omitempty"`
}

type UpdateFormRequest struct {
	Title        *string `json:"title,omitempty"`
	Brand        *string `json:"brand,omitempty"`
	Site         *string `json:"site,omitempty"`
	SampleDate   *string `json:"sample_date,omitempty"`
	AnalysisDate *string `json:"analysis_date,omitempty"`
	Status       *string `json:"status,omitempty" enum:"open,archived"`
}

type FormResponse struct {
	ID           string  `json:"id"`
	LabID        string  `json:"lab_id"`
	Title        string  `json:"title"`
	Brand        string  `json:"brand,omitempty"`
	Site         string  `json:"site,omitempty"`
	SampleDate   string  `json:"sample_date,omitempty"`
	AnalysisDate string  `json:"analysis_date,omitempty"`
	Status       string  `json:"status"`
	LegacyRef    *string `json:"legacy_ref,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func formResponse(f domain.Form) FormResponse {
	return FormResponse{
		ID:           f.ID,
		LabID:        f.LabID,
		Title:        f.Title,
		Brand:        f.Brand,
		Site:         f.Site,
		SampleDate:   f.SampleDate,
		AnalysisDate: f.AnalysisDate,
		Status:       f.Status,
		LegacyRef:    f.LegacyRef,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func mapForms(items []domain.Form) []FormResponse {
	res := make([]FormResponse, 0, len(items))
	for _, f := range items {
		res = append(res, formResponse(f))
	}
	return res
}

type CreateSampleRequest struct {
	Product      string   `json:"product"`
	Site         *string  `json:"site,omitempty"`
	SampleDate   *string  `json:"sample_date,omitempty"`
	Organoleptic *string  `json:"organoleptic,omitempty"`
	PH           *float64 `json:"ph,omitempty"`
}

type SampleResultsRequest struct {
	Organoleptic *string  `json:"organoleptic,omitempty"`
	PH           *float64 `json:"ph,omitempty"`
}

type SampleResponse struct {
	ID           string   `json:"id"`
	FormID       string   `json:"form_id"`
	Product      string   `json:"product"`
	Site         string   `json:"site,omitempty"`
	Status       string   `json:"status"`
	Organoleptic *string  `json:"organoleptic,omitempty"`
	PH           *float64 `json:"ph,omitempty"`
	SampleDate   string   `json:"sample_date,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func sampleResponse(s domain.Sample) SampleResponse {
	return SampleResponse{
		ID:           s.ID,
		FormID:       s.FormID,
		Product:      s.Product,
		Site:         s.Site,
		Status:       s.Status,
		Organoleptic: s.Organoleptic,
		PH:           s.PH,
		SampleDate:   s.SampleDate,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func mapSamples(items []domain.Sample) []SampleResponse {
	res := make([]SampleResponse, 0, len(items))
	for _, s := range items {
		res = append(res, sampleResponse(s))
	}
	return res
}

type ReplaceSelectionRequest struct {
	Bacteria []string `json:"bacteria"`
}

type SelectionResponse struct {
	ID           string `json:"id"`
	FormID       string `json:"form_id"`
	BacteriaName string `json:"bacteria_name"`
	Delay        string `json:"bacteria_delay"`
	ReadingDay   string `json:"reading_day"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	ModifiedAt   string `json:"modified_at"`
}

func selectionResponse(s domain.BacteriaSelection) SelectionResponse {
	return SelectionResponse{
		ID:           s.ID,
		FormID:       s.FormID,
		BacteriaName: s.BacteriaName,
		Delay:        s.Delay,
		ReadingDay:   s.ReadingDay,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		ModifiedAt:   s.ModifiedAt,
	}
}

func mapSelections(items []domain.BacteriaSelection) []SelectionResponse {
	res := make([]SelectionResponse, 0, len(items))
	for _, s := range items {
		res = append(res, selectionResponse(s))
	}
	return res
}

type ReadingResponse struct {
	Selection SelectionResponse `json:"selection"`
	Forced    bool              `json:"forced"`
}

type SpeciesResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Delay       string `json:"delay"`
}

type ThresholdRequest struct {
	Product   string   `json:"product"`
	Parameter string   `json:"parameter"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Unit      *string  `json:"unit,omitempty"`
}

type LocationRequest struct {
	Site        string  `json:"site"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
