package provider

// DefaultEstimatedOutputTokens is assumed when a request sets no MaxTokens.
const DefaultEstimatedOutputTokens = 1000

// EstimateTokens is the shared chars/4 heuristic used by every adapter:
// system prompt and message text, plus tool description and schema length
// when tools are supported, plus the requested (or default) output tokens.
func EstimateTokens(req *Request, supportsTools bool, defaultMaxTokens int) int {
	if req == nil {
		return 0
	}

	chars := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		chars += len(msg.Content)
	}
	tokens := chars / 4

	if supportsTools {
		for _, t := range req.Tools {
			tokens += (len(t.Description) + len(t.InputSchema)) / 4
		}
	}

	if req.MaxTokens != nil {
		tokens += *req.MaxTokens
	} else {
		tokens += defaultMaxTokens
	}
	return tokens
}
