package agent

import (
	"fmt"
	"strings"
	"time"
)

// BuildSystemPrompt synthesizes the system message for one run. It is
// regenerated every run and never persisted, so the current date and the
// current capability inventory are always accurate.
func BuildSystemPrompt(now time.Time, specs []CapabilitySpec) string {
	var b strings.Builder

	b.WriteString("You are Finsight, a financial research assistant. ")
	b.WriteString("You answer questions about markets, companies, and portfolios ")
	b.WriteString("by calling the available capabilities to gather data, then ")
	b.WriteString("synthesizing a clear, sourced answer.\n\n")

	fmt.Fprintf(&b, "Current date: %s\n\n", now.Format("Monday, January 2, 2006"))

	if len(specs) > 0 {
		b.WriteString("Available capabilities:\n")
		for _, spec := range specs {
			fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
		}
		b.WriteString("\nCall capabilities when you need data; do not guess prices or figures. ")
	}

	b.WriteString("When you have everything you need, reply with the final answer only.")
	return b.String()
}
