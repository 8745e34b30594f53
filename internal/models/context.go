package models

import (
	"encoding/json"
	"fmt"
)

// Stage is one of the three workflow stages of a conversation
type Stage string

const (
	StageGatheringRequirements Stage = "gathering_requirements"
	StageCodeGeneration        Stage = "code_generation"
	StageRefinementTesting     Stage = "refinement_testing"
)

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	switch s {
	case StageGatheringRequirements, StageCodeGeneration, StageRefinementTesting:
		return true
	}
	return false
}

// ParseStage converts a wire value into a Stage. An empty value maps to the initial stage.
func ParseStage(value string) (Stage, error) {
	if value == "" {
		return StageGatheringRequirements, nil
	}
	stage := Stage(value)
	if !stage.Valid() {
		return "", fmt.Errorf("unknown stage: %s", value)
	}
	return stage, nil
}

// Origin records where a device entry's data came from
type Origin string

const (
	OriginFile                  Origin = "file"
	OriginUserMessage           Origin = "user message"
	OriginInternet              Origin = "internet"
	OriginInternalKnowledgeBase Origin = "internal knowledge base"
	OriginOther                 Origin = "other"
)

// DeviceConstants maps a device name to its entry. Entries are normally
// {"data": {...}, "origin": "..."} but legacy plain maps and scalars are accepted.
type DeviceConstants map[string]interface{}

// ProjectContext is the structured project description accumulated across turns
type ProjectContext struct {
	DeviceConstants DeviceConstants `json:"device_constants"`
	Information     string          `json:"information"`
}

// NewDeviceEntry builds a canonical device entry
func NewDeviceEntry(data map[string]interface{}, origin Origin) map[string]interface{} {
	if data == nil {
		data = map[string]interface{}{}
	}
	return map[string]interface{}{
		"data":   data,
		"origin": string(origin),
	}
}

// IsEmpty reports whether the context carries no devices and no information
func (pc ProjectContext) IsEmpty() bool {
	return len(pc.DeviceConstants) == 0 && pc.Information == ""
}

// Clone returns a deep copy so callers can merge without aliasing the original
func (pc ProjectContext) Clone() ProjectContext {
	out := ProjectContext{
		DeviceConstants: make(DeviceConstants, len(pc.DeviceConstants)),
		Information:     pc.Information,
	}
	for k, v := range pc.DeviceConstants {
		out.DeviceConstants[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// UnmarshalJSON tolerates a null or missing device_constants object
func (pc *ProjectContext) UnmarshalJSON(data []byte) error {
	type alias ProjectContext
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.DeviceConstants == nil {
		raw.DeviceConstants = DeviceConstants{}
	}
	*pc = ProjectContext(raw)
	return nil
}

// FileProcessingResult is the per-file extraction outcome for one turn
type FileProcessingResult struct {
	FileName             string          `json:"file_name,omitempty"`
	ExtractedDevices     DeviceConstants `json:"extracted_devices"`
	ExtractedInformation string          `json:"extracted_information"`
	ProcessingSummary    string          `json:"processing_summary"`
	Degraded             bool            `json:"degraded,omitempty"`
}

// UploadedFile is one file attached to a context update
type UploadedFile struct {
	Name        string
	ContentType string
	Content     []byte
}

// ContextUpdateRequest is one conversational turn
type ContextUpdateRequest struct {
	ConversationID         string         `json:"conversation_id,omitempty"`
	Message                string         `json:"message,omitempty"`
	MCQResponses           []string       `json:"mcq_responses,omitempty"`
	PreviousCopilotMessage string         `json:"previous_copilot_message,omitempty"`
	CurrentContext         ProjectContext `json:"current_context"`
	CurrentStage           Stage          `json:"current_stage"`
	Files                  []UploadedFile `json:"-"`

	// ContinueFromStored replaces CurrentContext with the stored context, and an
	// empty CurrentStage with the stored stage, once the turn holds the conversation
	ContinueFromStored bool `json:"-"`
}

// ContextUpdateResponse is the engine's answer to one turn
type ContextUpdateResponse struct {
	ConversationID                         string                 `json:"conversation_id,omitempty"`
	UpdatedContext                         ProjectContext         `json:"updated_context"`
	ChatMessage                            string                 `json:"chat_message"`
	GatheringRequirementsEstimatedProgress *float64               `json:"gathering_requirements_estimated_progress,omitempty"`
	CurrentStage                           Stage                  `json:"current_stage"`
	IsMCQ                                  bool                   `json:"is_mcq"`
	IsMultiselect                          bool                   `json:"is_multiselect"`
	MCQQuestion                            *string                `json:"mcq_question,omitempty"`
	MCQOptions                             []string               `json:"mcq_options"`
	GeneratedCode                          *string                `json:"generated_code,omitempty"`
	FileExtractions                        []FileProcessingResult `json:"file_extractions,omitempty"`
}

// StageTransitionRequest asks to move a conversation to another stage
type StageTransitionRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	CurrentStage   Stage  `json:"current_stage,omitempty"`
	TargetStage    Stage  `json:"target_stage" binding:"required"`
	Force          bool   `json:"force"`
}

// StageTransitionResponse reports the outcome of a transition request
type StageTransitionResponse struct {
	NewStage Stage  `json:"new_stage"`
	Message  string `json:"message"`
	Success  bool   `json:"success"`
}
