package oracle

// Message is one chat turn. OpenAI and Ollama share this shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const systemPrompt = `You convert project update text into Notion API block format. Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown fences.`

const userPromptTemplate = `Convert the following project update into Notion blocks.

The content may contain plain text, URLs, markdown formatting and lists.

Return a JSON object of this shape and nothing else:

{"blocks": [{"object": "block", "type": "<type>", "<type>": {...}}]}

Allowed types: paragraph, heading_1, heading_2, heading_3, bulleted_list_item, numbered_list_item, embed.

Rules:
- Use paragraph blocks for normal text.
- Text blocks carry "rich_text": a list of {"type": "text", "text": {"content": "...", "link": {"url": "..."}}}. Omit "link" for plain spans.
- Any URL on linear.app goes inline as a linked span inside a paragraph, never as an embed.
- Video URLs (Loom, YouTube, Vimeo) become embed blocks: {"type": "embed", "embed": {"url": "..."}}.
- Other URLs go inline as linked spans.
- Preserve the structure and meaning of the original content.

Content to convert:
`

// BuildMessages constructs the chat messages for one conversion.
func BuildMessages(text string) []Message {
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPromptTemplate + text},
	}
}

// blocksSchema constrains Ollama structured output to the envelope shape.
var blocksSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"blocks": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "object"},
		},
	},
	"required": []string{"blocks"},
}
