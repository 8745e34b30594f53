package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bizmatters/plc-copilot/context-engine/internal/extraction"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const (
	maxFileDataChars  = 8000
	fileSeparator     = "\n\n--- FILE SEPARATOR ---\n\n"
	defaultUserPrompt = "Continue with the project."
)

const systemPrompt = `You are a PLC programming copilot. You help an operator specify an industrial
control program and write IEC 61131-3 Structured Text for it. You always answer with a single
JSON object that follows the schema you are given, with no prose around it.`

// BuildUserMessage joins the previous copilot message, the operator's text
// and any selected options into the turn's user message
func BuildUserMessage(req models.ContextUpdateRequest) string {
	var parts []string
	if prev := strings.TrimSpace(req.PreviousCopilotMessage); prev != "" {
		parts = append(parts, "Previous assistant message: "+prev)
	}
	if msg := strings.TrimSpace(req.Message); msg != "" {
		parts = append(parts, msg)
	}
	if len(req.MCQResponses) > 0 {
		parts = append(parts, "Selected options:")
		for i, option := range req.MCQResponses {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, option))
		}
	}
	if len(parts) == 0 {
		return defaultUserPrompt
	}
	return strings.Join(parts, "\n\n")
}

// buildTurnPrompt assembles the main-call prompt for a stage
func buildTurnPrompt(ctx models.ProjectContext, stage models.Stage, userMessage string, mcq []string, fileTexts []string) string {
	var b strings.Builder

	b.WriteString("=== PRIMARY CONTEXT ===\n\n")
	if ctx.IsEmpty() {
		b.WriteString("No project context has been gathered yet. This is the start of a new project.\n")
	} else {
		b.WriteString("Current project context:\n")
		b.WriteString(contextJSON(ctx))
		b.WriteString("\n")
	}

	b.WriteString("\nUSER INPUT (must be referenced in your answer):\n")
	b.WriteString(userMessage)
	b.WriteString("\n")
	if len(mcq) > 0 {
		b.WriteString("MCQ responses: ")
		b.WriteString(strings.Join(mcq, "; "))
		b.WriteString("\n")
	}

	b.WriteString(stageInstructions(stage))
	b.WriteString("\nTASK: Process the user input, update the project context and answer the user.\n\n")
	b.WriteString(responseSchema(stage))

	if section := fileDataSection(fileTexts); section != "" {
		b.WriteString(section)
	}
	return b.String()
}

// buildCorrectivePrompt restates the schema after an unparsable answer
func buildCorrectivePrompt(stage models.Stage, userMessage string, mcq []string, badOutput string) string {
	var b strings.Builder
	b.WriteString("Your previous answer could not be parsed as a JSON object.\n\n")
	b.WriteString("Previous answer (excerpt):\n")
	b.WriteString(extraction.Truncate(strings.TrimSpace(badOutput), 1000))
	b.WriteString("\n\nStage: ")
	b.WriteString(string(stage))
	b.WriteString("\nUser input:\n")
	b.WriteString(userMessage)
	b.WriteString("\n")
	if len(mcq) > 0 {
		b.WriteString("MCQ responses: ")
		b.WriteString(strings.Join(mcq, "; "))
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer again. Return ONLY a JSON object with this structure, with no code fences and no text around it:\n\n")
	b.WriteString(responseSchema(stage))
	return b.String()
}

// buildBackfillPrompt asks only for the user-facing message
func buildBackfillPrompt(ctx models.ProjectContext, stage models.Stage, userMessage string) string {
	return "The project context was just updated:\n" + contextJSON(ctx) +
		"\n\nStage: " + string(stage) +
		"\nUser input:\n" + userMessage +
		"\n\nWrite one or two short sentences to the user acknowledging the update and, if the stage is " +
		string(models.StageGatheringRequirements) + ", asking the next most useful question. Reply with plain text only."
}

func stageInstructions(stage models.Stage) string {
	switch stage {
	case models.StageCodeGeneration:
		return `
STAGE: Code Generation

Generate complete Structured Text (ST) code including variable declarations, function blocks and
programs, the main control logic with safety interlocks, and error handling with clear comments.
Structure: TYPE declarations, PROGRAM, VAR sections, main logic, safety and error handling.
The code must be escaped as a JSON string value in "generated_code".
`
	case models.StageRefinementTesting:
		return `
STAGE: Refinement and Testing

Help refine and test the generated code: suggest improvements, ask clarifying questions (use an
MCQ for standard choices), give technical guidance and help with test scenarios. Return revised
code in "generated_code" only when you changed it.
`
	default:
		return `
STAGE: Requirements Gathering

Ask the next focused question needed to specify the PLC program. Ask about missing items in
this order:
1. Safety requirements (emergency stops, protection)
2. I/O specifications (inputs, outputs, sensors, actuators)
3. Control sequence basics
4. PLC platform and hardware
5. Communication requirements

Use an MCQ for standardized choices (safety features, voltage levels, protocols).
Estimate how complete the requirements are as a number between 0 and 1 in
"gathering_requirements_estimated_progress".
`
	}
}

func responseSchema(stage models.Stage) string {
	code := `null`
	if stage != models.StageGatheringRequirements {
		code = `"PROGRAM Main\nVAR\nEND_VAR\nEND_PROGRAM" or null`
	}
	progress := ""
	if stage == models.StageGatheringRequirements {
		progress = "\n  \"gathering_requirements_estimated_progress\": 0.0,"
	}
	return `{
  "updated_context": {
    "device_constants": {
      "DeviceName": {"data": {"key": "value"}, "origin": "user message"}
    },
    "information": "Updated markdown summary that integrates the user input and file data"
  },
  "chat_message": "Your question or response to the user",
  "is_mcq": false,
  "is_multiselect": false,
  "mcq_question": null,
  "mcq_options": [],` + progress + `
  "generated_code": ` + code + `
}

Rules:
- updated_context must contain the complete context, including everything already known.
- origin is one of: file, user message, internet, internal knowledge base, other.
- For an MCQ set is_mcq to true and fill mcq_question and mcq_options.
- Keep the context concise.`
}

func fileDataSection(fileTexts []string) string {
	var nonEmpty []string
	for _, text := range fileTexts {
		if strings.TrimSpace(text) != "" {
			nonEmpty = append(nonEmpty, text)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	combined := extraction.Truncate(strings.Join(nonEmpty, fileSeparator), maxFileDataChars)
	return `

=== SUPPLEMENTARY FILE DATA ===
The user's message and MCQ responses above are more important than file content.
Use file content as additional context only.

Uploaded file content:
` + combined + "\n"
}

func contextJSON(ctx models.ProjectContext) string {
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", ctx)
	}
	return string(data)
}

const (
	suggestionHistory   = 10
	suggestionTurnChars = 600
)

// buildSuggestionPrompt asks for a stage classification of the recent turns
func buildSuggestionPrompt(state *models.ConversationState, reachable []models.Stage) string {
	history := state.History
	if len(history) > suggestionHistory {
		history = history[len(history)-suggestionHistory:]
	}
	var lines []string
	for _, turn := range history {
		lines = append(lines, strings.ToUpper(turn.Role)+": "+extraction.Truncate(turn.Content, suggestionTurnChars))
	}
	if len(lines) == 0 {
		lines = append(lines, "(no messages yet)")
	}
	options := make([]string, 0, len(reachable))
	for _, stage := range reachable {
		options = append(options, string(stage))
	}

	return `Classify which workflow stage this PLC copilot conversation should be in next.

CURRENT STAGE: ` + string(state.Stage) + `
REACHABLE STAGES: ` + strings.Join(options, ", ") + `

STAGES:
- ` + string(models.StageGatheringRequirements) + `: clarifying safety, I/O, sequence, platform and communication requirements
- ` + string(models.StageCodeGeneration) + `: writing the Structured Text program
- ` + string(models.StageRefinementTesting) + `: reviewing, modifying and testing generated code

PROJECT CONTEXT:
` + extraction.Truncate(contextJSON(state.Context), maxFileDataChars) + `

RECENT CONVERSATION:
` + strings.Join(lines, "\n") + `

Answer with a single JSON object and nothing else:
{
  "suggested_stage": "one of the reachable stages",
  "confidence": 0.0,
  "transition_ready": false,
  "reasoning": "one or two sentences",
  "required_actions": ["what the operator should still provide"]
}`
}
