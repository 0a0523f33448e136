package agent

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// buildTurnPrompt renders the system-style prompt for one agent turn.
// research is inlined web-search output; empty omits the section.
func buildTurnPrompt(tc TurnContext, memories, research string) string {
	p := tc.Participant
	var b strings.Builder

	if tc.Opening {
		fmt.Fprintf(&b, "You are an AI travel planning agent representing %s.\n\n", p.DisplayName)
		b.WriteString("You are the first agent in this group chat. Propose an initial travel plan: ")
		b.WriteString("specific dates, destination, flight and hotel preferences, and a budget estimate. ")
		b.WriteString("Keep it to 3-5 sentences and open to adjustment.\n\n")
	} else {
		fmt.Fprintf(&b, "You are an AI travel planning agent representing %s in a group travel planning discussion.\n\n", p.DisplayName)
		b.WriteString("Advocate for your user's preferences while staying collaborative: ")
		b.WriteString("say what works, what needs adjustment, and what compromises you can make. ")
		b.WriteString("Keep it to 2-4 sentences.\n\n")
	}

	writeProfile(&b, p)

	fmt.Fprintf(&b, "\nUser memories:\n%s\n", memories)

	if research != "" {
		fmt.Fprintf(&b, "\nWeb research:\n%s\n", research)
	}

	if !tc.Opening {
		b.WriteString("\nRecent chat history:\n")
		b.WriteString(renderHistory(tc.Transcript, historyWindow))
	}

	if len(tc.Feedback) > 0 {
		b.WriteString("\nIMPORTANT: The previous plan was rejected with this feedback:\n")
		for _, f := range tc.Feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("Address these concerns in your response.\n")
	}

	b.WriteString("\nGenerate your message for the group chat.")
	return b.String()
}

// buildSynthesisPrompt renders the prompt for the plan-synthesis call.
// The model must answer with a single JSON document matching the plan shape.
func buildSynthesisPrompt(sc SynthesisContext) string {
	var b strings.Builder

	b.WriteString("You are a master travel planner synthesizing a group discussion into one final plan.\n\n")

	b.WriteString("Participants:\n")
	for _, p := range sc.Participants {
		fmt.Fprintf(&b, "- %s (budget $%d-$%d, style: %s)\n",
			p.DisplayName, p.Preferences.BudgetMin, p.Preferences.BudgetMax, p.Preferences.TravelStyle)
	}

	b.WriteString("\nComplete chat history:\n")
	b.WriteString(renderHistory(sc.Transcript, 0))

	b.WriteString(`
Create a final plan balancing all preferences, making reasonable compromises
where they conflict. Respond with ONLY valid JSON in this exact structure:

{
  "destination": "Primary destination",
  "departure_date": "YYYY-MM-DD",
  "return_date": "YYYY-MM-DD",
  "budget_per_person": 2000,
  "itinerary": [
    {"title": "activity or booking item", "notes": "details"}
  ],
  "compromises": ["how conflicting preferences were balanced"]
}

Respond only with the JSON, no other text.`)
	return b.String()
}

// writeProfile renders the participant preference block shared by both
// opening and critique prompts.
func writeProfile(b *strings.Builder, p registry.Participant) {
	fmt.Fprintf(b, "User profile:\n- Budget range: $%d - $%d\n- Travel style: %s\n",
		p.Preferences.BudgetMin, p.Preferences.BudgetMax, p.Preferences.TravelStyle)
	if len(p.Preferences.PreferredPlaces) > 0 {
		fmt.Fprintf(b, "- Preferred destinations: %s\n", strings.Join(p.Preferences.PreferredPlaces, ", "))
	}
	if len(p.Preferences.DietaryRestrictions) > 0 {
		fmt.Fprintf(b, "- Dietary restrictions: %s\n", strings.Join(p.Preferences.DietaryRestrictions, ", "))
	}
	if len(p.Preferences.Constraints) > 0 {
		fmt.Fprintf(b, "- Constraints: %s\n", strings.Join(p.Preferences.Constraints, ", "))
	}
}

// renderHistory renders the last window messages ("0 means all") as
// "sender: content" lines.
func renderHistory(msgs []transcript.Message, window int) string {
	if len(msgs) == 0 {
		return "No messages yet\n"
	}
	start := 0
	if window > 0 && len(msgs) > window {
		start = len(msgs) - window
	}
	var b strings.Builder
	for _, m := range msgs[start:] {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Content)
	}
	return b.String()
}
