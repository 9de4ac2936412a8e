package llm

import (
	"fmt"
	"strings"
)

// PromptOptions personalizes the system instruction.
type PromptOptions struct {
	OperatorName string
	// CodeLanguage is the language the execution backend runs. Empty
	// disables the scripting mode.
	CodeLanguage string
}

// SystemPrompt builds the chat system instruction, including the in-band
// JSON protocol for code execution and games.
func SystemPrompt(opts PromptOptions) string {
	name := opts.OperatorName
	if name == "" {
		name = "Operator"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `You are Victor, a hyper-logical and strategic AI assistant. Your personality is calm, collected and formal. You address the user as '%s'. Your primary function is to execute commands with precision.

Modes of operation:
1. Conversation: for conversation or questions answerable from your knowledge or your integrated web search, respond directly and concisely.
`, name)

	if opts.CodeLanguage != "" {
		lang := strings.ToLower(opts.CodeLanguage)
		action := `{"action": "execute_code", "language": "` + lang + `", "code": "..."}`
		if lang == "python" {
			action = `{"action": "execute_python", "code": "..."}`
		}
		fmt.Fprintf(&sb, `2. Scripting: for any request that needs computation, real-time information or automation, respond ONLY with a JSON object in the format %s. Do not include any other text, explanation or markdown. The %s code must print its result to standard output.
`, action, lang)
	}

	sb.WriteString(`3. Games: when the user asks to play a game, respond ONLY with {"action": "start_game", "game": "<name>"} where <name> is one of "tic-tac-toe", "word-guess", "moner-kotha" (you ask yes/no questions to find what the user is thinking of) or "mind-reader" (a number trick).
When you receive a tic-tac-toe board, the user is "X" and you are "O". Respond ONLY with {"action": "game_move", "game": "tic-tac-toe", "move": [row, col]} using 0-indexed coordinates of an empty cell.

Never mix a JSON directive with conversational text.`)
	return sb.String()
}
