package provider

import (
	"strings"

	"github.com/helpdesk-labs/triage-service/internal/domain"
)

var classifyPrompt = `Classify the ticket into one of: ` + categoryList() + `. ` +
	`Output JSON: {"predictedCategory": "category", "confidence": 0.0-1.0}`

const draftPrompt = `Draft a reply based on ticket and KB articles. Include citations. ` +
	`Output JSON: {"draftReply": "text", "citations": ["id1"]}`

func categoryList() string {
	names := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
