package critique

import "strings"

const critiqueTemplate = `Critique this response. Be precise and direct - no filler words or lengthy explanations. Use bullet points.

Request: "{request}"
Original: "{original}"
Response: "{response}"

Provide:
• Accuracy issues (if any)
• Missing elements
• Clarity problems  
• Specific improvements

Critique:`

// critiqueHeading precedes the critique when it is inserted into the target.
const critiqueHeading = "\n\n---\n**🤔 Critique:**\n"

// ComposePrompt builds the primary prompt sent to the model.
func ComposePrompt(prompt, selection string) string {
	return prompt + " : " + selection
}

// CritiquePrompt embeds the request, the selection and the primary answer
// verbatim.
func CritiquePrompt(request, original, response string) string {
	return strings.NewReplacer(
		"{request}", request,
		"{original}", original,
		"{response}", response,
	).Replace(critiqueTemplate)
}

// CritiqueBlock formats a critique for insertion.
func CritiqueBlock(critique string) string {
	return critiqueHeading + strings.TrimSpace(critique)
}
