package types

// Level values used by the analyzer.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// VisitorDetails holds the fields extracted from the conversation.
// Nil means the extractor could not determine the value.
type VisitorDetails struct {
	RingBearer      *bool   `json:"ring_bearer" bson:"ring_bearer"`
	GearPrepared    *bool   `json:"gear_prepared" bson:"gear_prepared"`
	HazardKnowledge *string `json:"hazard_knowledge" bson:"hazard_knowledge"`
	FitnessLevel    *string `json:"fitness_level" bson:"fitness_level"`
	PermitStatus    *string `json:"permit_status" bson:"permit_status"`
}

type StructuredData struct {
	VisitorDetails          VisitorDetails `json:"visitor_details" bson:"visitor_details"`
	QuestionnaireCompletion map[string]any `json:"questionnaire_completion" bson:"questionnaire_completion"`
}

type Analysis struct {
	Sentiment           float64  `json:"sentiment" bson:"sentiment"`
	InterestLevel       string   `json:"interest_level" bson:"interest_level"`
	PreparednessLevel   string   `json:"preparedness_level" bson:"preparedness_level"`
	ActionItems         []string `json:"action_items" bson:"action_items"`
	ProcessingTimestamp string   `json:"processing_timestamp,omitempty" bson:"processing_timestamp,omitempty"`
}

// ProcessedResult is the enriched output for one transcript.
type ProcessedResult struct {
	TranscriptID   string         `json:"transcript_id" bson:"transcript_id"`
	Summary        string         `json:"summary" bson:"summary"`
	StructuredData StructuredData `json:"structured_data" bson:"structured_data"`
	Analysis       Analysis       `json:"analysis" bson:"analysis"`
}

// ErrorRecord is written when processing a transcript fails.
type ErrorRecord struct {
	Timestamp    string `json:"timestamp" bson:"timestamp"`
	TranscriptID string `json:"transcript_id" bson:"transcript_id"`
	Stage        string `json:"stage" bson:"stage"`
	Error        string `json:"error" bson:"error"`
}

// Bool and String return pointers for the nullable visitor fields.
func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }
