package domain

type Lab struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Form struct {
	ID           string  `json:"id"`
	LabID        string  `json:"lab_id"`
	Title        string  `json:"title"`
	Brand        string  `json:"brand,omitempty"`
	Site         string  `json:"site,omitempty"`
	SampleDate   string  `json:"sample_date,omitempty" format:"date"`
	AnalysisDate string  `json:"analysis_date,omitempty" format:"date"`
	Status       string  `json:"status" enum:"open,archived"`
	LegacyRef    *string `json:"legacy_ref,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type Sample struct {
	ID           string   `json:"id"`
	FormID       string   `json:"form_id"`
	Product      string   `json:"product"`
	Site         string   `json:"site,omitempty"`
	Status       string   `json:"status" enum:"in_analysis,waiting_reading,completed"`
	Organoleptic *string  `json:"organoleptic,omitempty"`
	PH           *float64 `json:"ph,omitempty"`
	SampleDate   string   `json:"sample_date,omitempty" format:"date"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
}

// BacteriaSelection is one persisted (form, species) reading row. The
// species is keyed by display name, not catalog id; delay and reading day
// are denormalized display strings computed at creation time.
type BacteriaSelection struct {
	ID           string `json:"id"`
	FormID       string `json:"form_id"`
	BacteriaName string `json:"bacteria_name"`
	Delay        string `json:"bacteria_delay"`
	ReadingDay   string `json:"reading_day"`
	Status       string `json:"status" enum:"pending,in_progress,completed"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	ModifiedAt   string `json:"modified_at" format:"date-time"`
}

// BacteriaReading is the derived display state of one selection row in the
// waiting room. Never persisted.
type BacteriaReading struct {
	Selection BacteriaSelection `json:"selection"`
	State     string            `json:"state" enum:"completed,in_progress,ready,waiting"`
	Remaining string            `json:"remaining,omitempty"`
	Forced    bool              `json:"forced"`
}

// WaitingForm is the derived waiting-room aggregate for one form.
type WaitingForm struct {
	FormID       string            `json:"form_id"`
	Title        string            `json:"title"`
	Brand        string            `json:"brand,omitempty"`
	Site         string            `json:"site,omitempty"`
	SampleDate   string            `json:"sample_date,omitempty"`
	AnalysisDate string            `json:"analysis_date,omitempty"`
	CreatedAt    string            `json:"created_at" format:"date-time"`
	Bacteria     []BacteriaReading `json:"bacteria"`
}

type ProductThreshold struct {
	ID        string   `json:"id"`
	Product   string   `json:"product"`
	Parameter string   `json:"parameter"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

type AirStaticLocation struct {
	ID          string `json:"id"`
	Site        string `json:"site"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Action     string `json:"action"`
	LabID      string `json:"lab_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
