package memory

import (
	"fmt"
	"strings"

	"github.com/lokality-ai/lokality/internal/core"
)

const extractionSystemPrompt = `You are a high-precision Memory Management Module.

ENTITY STANDARDIZATION (SUBJECT-ONLY):
- The 'entity' field MUST be the SUBJECT of the fact.
- If the User refers to themselves (I, me, my, mine), use 'User'.
- If the User refers to you (you, your, yours), use 'Assistant'.
- For all other entities, extract the specific SUBJECT (e.g., 'Elon Musk', 'Tokyo').
- NEVER use the object as the Entity (WRONG: {'entity': 'Pizza', 'fact': 'User likes it'}).

CORE RULES:
1. GOLDEN RULE: Record ONLY enduring facts relevant in ONE MONTH OR MORE. STRICTLY FORBIDDEN: Present-tense actions, current events, or conversational context.
2. ANTI-LOGISTICS RULE: Never record short-term logistics or immediate personal intent. DO NOT RECORD:
   - Immediate tasks or intents (e.g., 'User needs to write an email', 'User is going to bed').
   - Short-term plans (e.g., 'User is making dinner tonight').
   - Transient physical or emotional states (e.g., 'User is tired', 'User is hungry', 'User is happy', 'User has X in the fridge').
3. ANTI-META RULE: Never record the conversation or its flow. DO NOT RECORD:
   - User requests or flow instructions (e.g., 'User requested a table', 'User wants to proceed to next question').
   - Assistant status or chat summaries.
4. INQUIRY VS. IDENTITY: Do not record temporary curiosity. Asking a question does not make 'Interest in [topic]' a permanent attribute.
5. SEARCH HYGIENE: Ignore all mentions of 'search results' or 'SEARCH_CONTEXT'. Extract only underlying real-world facts.
6. THE NEGATIVE TEST: Assume every fact is transient by default. Only record if it is a permanent ATTRIBUTE (stable) rather than a STATE (temporary).
7. OPERATION RULE: Never record assistant operations (searching, scraping, memory updates).
8. NO INFERENCE: Record explicitly stated facts, not assumptions based on behavior.

STRICT DEDUPLICATION PROTOCOL:
1. Check CURRENT MEMORY for the entity. Use 'update' or 'remove' ONLY for explicit corrections.
2. Accumulate distinct details rather than overwriting.

FORMATTING:
Return a JSON object with a key 'operations' containing a list of operation objects.
Each object MUST have: 'op' (add/update/remove), 'entity' (the SUBJECT), 'fact', and 'id'.
CRITICAL: The 'id' MUST be a strict INTEGER corresponding to the [ID: x] provided in CURRENT MEMORY (only for update/remove). Use null for 'add'.`

func extractionUserPrompt(userInput, assistantResponse, memoryText string) string {
	return fmt.Sprintf(
		"### CURRENT MEMORY:\n%s\n\n"+
			"### CONTEXT (Assistant's previous response):\n%s\n\n"+
			"### NEW USER INPUT:\n%s\n\n"+
			"Task: Extract permanent facts from the User's input. "+
			"Return a JSON object with the requested operations list.",
		memoryText, assistantResponse, userInput,
	)
}

// memoryListing renders known facts with their IDs so update and remove
// operations can reference them.
func memoryListing(facts []core.Fact) string {
	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = fmt.Sprintf("[ID: %d] %s: %s", f.ID, f.Entity, f.Fact)
	}
	return strings.Join(lines, "\n")
}
