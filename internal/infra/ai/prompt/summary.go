package prompt

import "fmt"

// SummarySystem provides strict directions and schema for JSON output.
func SummarySystem() string {
	return `You are a senior malware and content analyst. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase verdict values: malicious, suspicious, clean, unknown.
- The input is an array of per-file probe result documents produced by analysis services.
- findings is an array of objects; include at least a title, verdict, and summary. Keep items concise.
- If a probe result document is empty or unparseable, treat it conservatively as unknown.

Schema (example with empty values):
{
  "verdict": "<malicious|suspicious|clean|unknown>",
  "findings": [
    {
      "title": "<string>",
      "verdict": "<malicious|suspicious|clean|unknown>",
      "summary": "<string>"
    }
  ],
  "advice": "<string>"
}`
}

// SummaryUser builds a compact user message around the collected results.
func SummaryUser(resultsJSON string) string {
	return fmt.Sprintf("Summarize these probe results and respond with the JSON per schema. Results: %s", resultsJSON)
}
