package conversation

import (
	"math/rand/v2"
	"strings"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const (
	kickoffMessage  = "I'd be happy to help you with PLC programming! Here are some sample projects to get started:"
	kickoffQuestion = "Which type of project would you like to work on?"
	kickoffProgress = 0.1
	kickoffChoices  = 3
)

var smallTalk = map[string]struct{}{}

func init() {
	for _, phrase := range []string{
		"how are you", "how are you?",
		"how is it going", "how is it going?",
		"what's up", "what's up?", "whats up", "whats up?",
		"how's it going", "how's it going?", "hows it going", "hows it going?",
		"good morning", "good afternoon", "good evening", "good night",
		"hello there", "hi there", "hey there",
		"how do you do", "how do you do?",
		"nice to meet you", "pleased to meet you",
		"how have you been", "how have you been?",
		"long time no see",
		"what's new", "what's new?", "whats new", "whats new?",
		"how's everything", "how's everything?", "hows everything", "hows everything?",
		"how are things", "how are things?",
		".", "?", "!", "...",
		"test", "testing",
	} {
		smallTalk[phrase] = struct{}{}
	}
}

var sampleProjects = []string{
	"Conveyor Belt Control System with Safety Interlocks",
	"Motor Speed Control with VFD Integration",
	"Process Control with PID Temperature Regulation",
	"Automated Packaging Line with RFID Tracking",
	"Water Treatment Plant Control System",
	"Assembly Line Robot Integration",
	"HVAC Building Management System",
	"Batch Mixing Process Control",
	"Parking Garage Access Control",
	"Traffic Light Control System",
	"Warehouse Automated Storage and Retrieval",
	"Chemical Reactor Temperature and Pressure Control",
	"Elevator Control System with Safety Features",
	"Food Processing Line with Quality Control",
	"Solar Panel Tracking System",
	"Pump Station Control with Redundancy",
	"Machine Tool CNC Integration",
	"Power Distribution and Load Management",
	"Irrigation System with Soil Moisture Sensors",
	"Pharmaceutical Tablet Press Control",
	"Paint Booth Ventilation and Safety System",
	"Boiler Control with Steam Management",
	"Crane and Hoist Safety Control",
	"Textile Loom Automation",
	"Metal Cutting and Welding Line",
	"Brewery Fermentation Process Control",
	"Wind Turbine Control and Monitoring",
	"Mining Conveyor and Crusher Control",
	"Paper Mill Process Automation",
	"Automotive Paint Line Control",
	"Glass Manufacturing Temperature Control",
	"Oil Refinery Process Safety System",
	"Airport Baggage Handling System",
	"Hospital Patient Bed Management",
	"Data Center Environmental Control",
	"Greenhouse Climate Control System",
	"Fish Farm Water Quality Management",
	"Plastic Injection Molding Control",
	"Steel Mill Rolling Process Control",
	"Semiconductor Cleanroom Management",
}

// IsSmallTalk reports whether a message is a single word or a stock greeting
func IsSmallTalk(message string) bool {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return false
	}
	if !strings.Contains(trimmed, " ") {
		return true
	}
	_, ok := smallTalk[strings.ToLower(trimmed)]
	return ok
}

// isKickoff reports whether a turn should be answered with sample projects
// instead of a model call
func isKickoff(req models.ContextUpdateRequest, stage models.Stage) bool {
	return stage == models.StageGatheringRequirements &&
		req.CurrentContext.IsEmpty() &&
		len(req.MCQResponses) == 0 &&
		len(req.Files) == 0 &&
		IsSmallTalk(req.Message)
}

// pickSampleProjects returns n distinct sample projects
func pickSampleProjects(r *rand.Rand, n int) []string {
	var perm []int
	if r != nil {
		perm = r.Perm(len(sampleProjects))
	} else {
		perm = rand.Perm(len(sampleProjects))
	}
	out := make([]string, 0, n)
	for _, i := range perm[:n] {
		out = append(out, sampleProjects[i])
	}
	return out
}

func kickoffResponse(conversationID string, options []string) *models.ContextUpdateResponse {
	question := kickoffQuestion
	progress := kickoffProgress
	resp := &models.ContextUpdateResponse{
		ConversationID: conversationID,
		UpdatedContext: models.ProjectContext{DeviceConstants: models.DeviceConstants{}},
		ChatMessage:    kickoffMessage,
		CurrentStage:   models.StageGatheringRequirements,
		IsMCQ:          true,
		IsMultiselect:  false,
		MCQQuestion:    &question,
		MCQOptions:     options,
	}
	resp.GatheringRequirementsEstimatedProgress = &progress
	return resp
}
