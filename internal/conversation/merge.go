package conversation

import (
	"strings"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// ProposedContext is the updated_context a model answer carries. A nil field
// was absent from the answer.
type ProposedContext struct {
	DeviceConstants models.DeviceConstants
	Information     *string
}

// MergeExtraction folds one file result into base and returns the merged copy.
// base is never modified.
func MergeExtraction(base models.ProjectContext, result models.FileProcessingResult) models.ProjectContext {
	merged := base.Clone()
	mergeDevices(merged.DeviceConstants, result.ExtractedDevices)

	info := strings.TrimSpace(result.ExtractedInformation)
	if info == "" {
		return merged
	}
	section := "## File Upload: " + fileHeading(result) + "\n" + info
	if strings.TrimSpace(merged.Information) == "" {
		merged.Information = section
	} else {
		merged.Information = merged.Information + "\n\n" + section
	}
	return merged
}

// MergeProposed applies a model-proposed context on top of base. The proposed
// information replaces the stored text outright; proposed devices replace the
// entries they name. Devices the proposal leaves out are kept.
func MergeProposed(base models.ProjectContext, proposed *ProposedContext) models.ProjectContext {
	merged := base.Clone()
	if proposed == nil {
		return merged
	}
	for name, value := range proposed.DeviceConstants {
		if value == nil {
			continue
		}
		merged.DeviceConstants[name] = cloneAny(value)
	}
	if proposed.Information != nil {
		merged.Information = *proposed.Information
	}
	return merged
}

func fileHeading(result models.FileProcessingResult) string {
	if s := strings.TrimSpace(result.ProcessingSummary); s != "" {
		return s
	}
	if result.FileName != "" {
		return result.FileName
	}
	return "uploaded file"
}

// mergeDevices folds incoming into dst in place
func mergeDevices(dst, incoming models.DeviceConstants) {
	for name, value := range incoming {
		existing, ok := dst[name]
		if !ok {
			dst[name] = cloneAny(value)
			continue
		}
		dst[name] = mergeEntry(existing, value)
	}
}

// mergeEntry unions two device entries. Canonical {data, origin} entries
// union their data maps; other maps union at the top level. Anything else
// is replaced by incoming.
func mergeEntry(existing, incoming interface{}) interface{} {
	oldMap, oldOK := existing.(map[string]interface{})
	newMap, newOK := incoming.(map[string]interface{})
	if !oldOK || !newOK {
		return cloneAny(incoming)
	}

	oldData, oldCanonical := oldMap["data"].(map[string]interface{})
	newData, newCanonical := newMap["data"].(map[string]interface{})
	if oldCanonical && newCanonical {
		out := cloneAny(oldMap).(map[string]interface{})
		data := cloneAny(oldData).(map[string]interface{})
		for k, v := range newData {
			data[k] = cloneAny(v)
		}
		out["data"] = data
		for k, v := range newMap {
			if k != "data" {
				out[k] = cloneAny(v)
			}
		}
		return out
	}

	out := cloneAny(oldMap).(map[string]interface{})
	for k, v := range newMap {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = cloneAny(inner)
		}
		return m
	case models.DeviceConstants:
		return cloneAny(map[string]interface{}(t))
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = cloneAny(inner)
		}
		return s
	default:
		return v
	}
}
