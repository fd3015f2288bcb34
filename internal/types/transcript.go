package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Turn is one utterance inside a transcript.
type Turn struct {
	Speaker   string `json:"speaker" bson:"speaker"`
	Text      string `json:"text" bson:"text"`
	Timestamp string `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

// Metadata is the call metadata attached by the upstream API. The known keys
// are typed; every other key is kept in Extra and written back on marshal.
type Metadata struct {
	Questionnaire        map[string]any `json:"questionnaire" bson:"questionnaire"`
	VisitorInterestLevel string         `json:"visitor_interest_level,omitempty" bson:"visitor_interest_level,omitempty"`
	PermitStatus         string         `json:"mount_doom_permit_status,omitempty" bson:"mount_doom_permit_status,omitempty"`
	Language             string         `json:"language,omitempty" bson:"language,omitempty"`
	Extra                map[string]any `json:"-" bson:",inline"`
}

var metadataKeys = map[string]bool{
	"questionnaire":            true,
	"visitor_interest_level":   true,
	"mount_doom_permit_status": true,
	"language":                 true,
}

// metadataFields has the same fields as Metadata without its methods.
type metadataFields Metadata

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var known metadataFields
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range metadataKeys {
		delete(all, k)
	}
	known.Extra = nil
	if len(all) > 0 {
		known.Extra = all
	}
	*m = Metadata(known)
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataFields(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	out := make(map[string]any, len(m.Extra)+len(metadataKeys))
	for k, v := range m.Extra {
		out[k] = v
	}
	var typed map[string]any
	if err := json.Unmarshal(known, &typed); err != nil {
		return nil, err
	}
	for k, v := range typed {
		out[k] = v
	}
	return json.Marshal(out)
}

// Transcript is one ingested conversation record.
type Transcript struct {
	TranscriptID    string         `json:"transcript_id" bson:"transcript_id"`
	SessionID       string         `json:"session_id,omitempty" bson:"session_id,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
	AgentType       string         `json:"agent_type,omitempty" bson:"agent_type,omitempty"`
	DurationSeconds float64        `json:"duration_seconds,omitempty" bson:"duration_seconds,omitempty"`
	Participants    map[string]any `json:"participants,omitempty" bson:"participants,omitempty"`
	Turns           []Turn         `json:"transcript_text" bson:"transcript_text"`
	Metadata        Metadata       `json:"metadata" bson:"metadata"`

	// Raw is the JSON document as received, when the transcript was decoded
	// from the wire.
	Raw json.RawMessage `json:"-" bson:"-"`
}

type transcriptFields Transcript

func (t *Transcript) UnmarshalJSON(data []byte) error {
	var f transcriptFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = Transcript(f)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Document returns the transcript as a generic document. A decoded
// transcript yields exactly what was received, unknown fields included.
func (t Transcript) Document() (map[string]any, error) {
	src := []byte(t.Raw)
	if len(src) == 0 {
		var err error
		if src, err = json.Marshal(transcriptFields(t)); err != nil {
			return nil, fmt.Errorf("marshal transcript %s: %w", t.TranscriptID, err)
		}
	}
	var doc map[string]any
	if err := json.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", t.TranscriptID, err)
	}
	return doc, nil
}

// TurnFormat controls how turns are rendered for the enrichment stages.
type TurnFormat string

const (
	TurnFormatSpeaker TurnFormat = "speaker" // "speaker: text"
	TurnFormatPlain   TurnFormat = "plain"   // "text"
)

// TurnStrings renders the transcript turns as prompt lines.
func (t Transcript) TurnStrings(format TurnFormat) []string {
	out := make([]string, 0, len(t.Turns))
	for _, turn := range t.Turns {
		if format == TurnFormatPlain || turn.Speaker == "" {
			out = append(out, turn.Text)
			continue
		}
		out = append(out, turn.Speaker+": "+turn.Text)
	}
	return out
}

// QuestionnaireCopy returns a shallow copy of the metadata questionnaire, never nil.
func (m Metadata) QuestionnaireCopy() map[string]any {
	out := make(map[string]any, len(m.Questionnaire))
	for k, v := range m.Questionnaire {
		out[k] = v
	}
	return out
}

// ParseTurnFormat maps a config string onto a TurnFormat, defaulting to speaker.
func ParseTurnFormat(s string) TurnFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(TurnFormatPlain)) {
		return TurnFormatPlain
	}
	return TurnFormatSpeaker
}
