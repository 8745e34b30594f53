package extraction

const documentSystemPrompt = `You extract PLC-relevant data from technical documents. Reply with a single JSON object and nothing else.`

// buildDocumentPrompt asks for {devices, information, summary}
func buildDocumentPrompt(text string) string {
	return `Extract PLC-relevant device specifications and requirements from this document.
Be selective and concise: keep only what matters for PLC programming.

Document content:
` + Truncate(text, maxPromptChars) + `

Return a JSON object with exactly this structure:
{
  "devices": {
    "DeviceName": {"Type": "device type", "Model": "model number", "Specifications": {"key": "value"}}
  },
  "information": "Brief markdown summary of PLC-relevant requirements and specifications",
  "summary": "One sentence describing what was extracted"
}

Focus on motors, sensors, PLCs and I/O modules, electrical ratings, I/O configuration,
safety requirements, control sequences and timing, and communication protocols.
Ignore installation procedures and non-technical content.`
}
