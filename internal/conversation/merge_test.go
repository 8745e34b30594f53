package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

func TestMergeExtraction(t *testing.T) {
	t.Run("disjoint devices are unioned without touching existing entries", func(t *testing.T) {
		base := models.ProjectContext{
			DeviceConstants: models.DeviceConstants{
				"PLC": map[string]interface{}{"Model": "S7-1200"},
			},
		}
		result := models.FileProcessingResult{
			ExtractedDevices: models.DeviceConstants{
				"M1": map[string]interface{}{"Power": "2kW"},
			},
		}

		merged := MergeExtraction(base, result)

		assert.Equal(t, map[string]interface{}{"Model": "S7-1200"}, merged.DeviceConstants["PLC"])
		assert.Equal(t, map[string]interface{}{"Power": "2kW"}, merged.DeviceConstants["M1"])
		assert.Len(t, merged.DeviceConstants, 2)
	})

	t.Run("overlapping plain maps keep untouched fields", func(t *testing.T) {
		base := models.ProjectContext{
			DeviceConstants: models.DeviceConstants{
				"M1": map[string]interface{}{"Power": "2kW", "Voltage": "400V"},
			},
		}
		result := models.FileProcessingResult{
			ExtractedDevices: models.DeviceConstants{
				"M1": map[string]interface{}{"Power": "2.2kW", "RPM": int64(1450)},
			},
		}

		merged := MergeExtraction(base, result)

		assert.Equal(t, map[string]interface{}{
			"Power":   "2.2kW",
			"Voltage": "400V",
			"RPM":     int64(1450),
		}, merged.DeviceConstants["M1"])
	})

	t.Run("canonical entries union their data", func(t *testing.T) {
		base := models.ProjectContext{
			DeviceConstants: models.DeviceConstants{
				"Pump": models.NewDeviceEntry(map[string]interface{}{"Flow": "10 m3/h", "Head": "30 m"}, models.OriginUserMessage),
			},
		}
		result := models.FileProcessingResult{
			ExtractedDevices: models.DeviceConstants{
				"Pump": models.NewDeviceEntry(map[string]interface{}{"Flow": "12 m3/h"}, models.OriginFile),
			},
		}

		merged := MergeExtraction(base, result)

		entry := merged.DeviceConstants["Pump"].(map[string]interface{})
		assert.Equal(t, map[string]interface{}{"Flow": "12 m3/h", "Head": "30 m"}, entry["data"])
		assert.Equal(t, "file", entry["origin"])
	})

	t.Run("scalar is replaced wholesale", func(t *testing.T) {
		base := models.ProjectContext{DeviceConstants: models.DeviceConstants{"Count": int64(3)}}
		result := models.FileProcessingResult{ExtractedDevices: models.DeviceConstants{"Count": map[string]interface{}{"Value": int64(4)}}}

		merged := MergeExtraction(base, result)

		assert.Equal(t, map[string]interface{}{"Value": int64(4)}, merged.DeviceConstants["Count"])
	})

	t.Run("information becomes the whole value when empty", func(t *testing.T) {
		merged := MergeExtraction(models.ProjectContext{}, models.FileProcessingResult{
			ExtractedInformation: "2kW motor",
			ProcessingSummary:    "ok",
		})
		assert.Equal(t, "## File Upload: ok\n2kW motor", merged.Information)
	})

	t.Run("information is appended under a heading", func(t *testing.T) {
		base := models.ProjectContext{Information: "Existing notes"}
		merged := MergeExtraction(base, models.FileProcessingResult{
			ExtractedInformation: "Sensor list",
			ProcessingSummary:    "Extracted sensors",
		})
		assert.Equal(t, "Existing notes\n\n## File Upload: Extracted sensors\nSensor list", merged.Information)
	})

	t.Run("blank information leaves text alone", func(t *testing.T) {
		base := models.ProjectContext{Information: "Existing notes"}
		merged := MergeExtraction(base, models.FileProcessingResult{ExtractedInformation: "  ", ProcessingSummary: "nothing"})
		assert.Equal(t, "Existing notes", merged.Information)
	})

	t.Run("base is not mutated", func(t *testing.T) {
		base := models.ProjectContext{
			DeviceConstants: models.DeviceConstants{"M1": map[string]interface{}{"Power": "2kW"}},
			Information:     "notes",
		}
		MergeExtraction(base, models.FileProcessingResult{
			ExtractedDevices:     models.DeviceConstants{"M1": map[string]interface{}{"Power": "3kW"}},
			ExtractedInformation: "more",
		})
		assert.Equal(t, map[string]interface{}{"Power": "2kW"}, base.DeviceConstants["M1"])
		assert.Equal(t, "notes", base.Information)
	})
}

func TestMergeProposed(t *testing.T) {
	base := models.ProjectContext{
		DeviceConstants: models.DeviceConstants{
			"M1":  map[string]interface{}{"Power": "2kW"},
			"PLC": map[string]interface{}{"Model": "S7-1500"},
		},
		Information: "## File Upload: ok\n2kW motor",
	}

	t.Run("proposal replaces information and named devices", func(t *testing.T) {
		info := "Motor confirmed"
		merged := MergeProposed(base, &ProposedContext{
			DeviceConstants: models.DeviceConstants{
				"M1": map[string]interface{}{"Power": "2kW", "Voltage": "400V"},
			},
			Information: &info,
		})

		assert.Equal(t, "Motor confirmed", merged.Information)
		assert.Equal(t, map[string]interface{}{"Power": "2kW", "Voltage": "400V"}, merged.DeviceConstants["M1"])
		assert.Equal(t, map[string]interface{}{"Model": "S7-1500"}, merged.DeviceConstants["PLC"])
	})

	t.Run("absent fields keep the merged values", func(t *testing.T) {
		merged := MergeProposed(base, &ProposedContext{})
		assert.Equal(t, base.Information, merged.Information)
		assert.Equal(t, base.DeviceConstants, merged.DeviceConstants)
	})

	t.Run("nil proposal is a copy", func(t *testing.T) {
		merged := MergeProposed(base, nil)
		assert.Equal(t, base, merged)
	})

	t.Run("empty information is an explicit rewrite", func(t *testing.T) {
		empty := ""
		merged := MergeProposed(base, &ProposedContext{Information: &empty})
		assert.Equal(t, "", merged.Information)
	})
}
