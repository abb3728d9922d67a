package stream

import "github.com/tidwall/gjson"

// Shape recognizes one vendor envelope and extracts its text.
// Match must only inspect structure; Extract is called only after Match.
type Shape struct {
	Name    string
	Match   func(doc gjson.Result) bool
	Extract func(doc gjson.Result) string
}

// ChunkShape matches the custom incremental format: {"chunk": "..."}
var ChunkShape = Shape{
	Name: "chunk",
	Match: func(doc gjson.Result) bool {
		return doc.Get("chunk").Type == gjson.String
	},
	Extract: func(doc gjson.Result) string {
		return doc.Get("chunk").Str
	},
}

// ContentBlockDeltaShape matches content_block_delta events carrying a text_delta
var ContentBlockDeltaShape = Shape{
	Name: "content_block_delta",
	Match: func(doc gjson.Result) bool {
		return doc.Get("type").Str == "content_block_delta" &&
			doc.Get("delta.type").Str == "text_delta" &&
			doc.Get("delta.text").Type == gjson.String
	},
	Extract: func(doc gjson.Result) string {
		return doc.Get("delta.text").Str
	},
}

// ChoicesDeltaShape matches incremental choices: {"choices":[{"delta":{"content":"..."}}]}
var ChoicesDeltaShape = Shape{
	Name: "choices_delta",
	Match: func(doc gjson.Result) bool {
		return doc.Get("choices.0.delta.content").Type == gjson.String
	},
	Extract: func(doc gjson.Result) string {
		return doc.Get("choices.0.delta.content").Str
	},
}

// ChoicesMessageShape matches a complete message: {"choices":[{"message":{"content":"..."}}]}
var ChoicesMessageShape = Shape{
	Name: "choices_message",
	Match: func(doc gjson.Result) bool {
		return doc.Get("choices.0.message.content").Type == gjson.String
	},
	Extract: func(doc gjson.Result) string {
		return doc.Get("choices.0.message.content").Str
	},
}

// DefaultShapes returns the recognized envelopes in dispatch priority order.
// A fresh slice is returned on every call.
func DefaultShapes() []Shape {
	return []Shape{
		ChunkShape,
		ContentBlockDeltaShape,
		ChoicesDeltaShape,
		ChoicesMessageShape,
	}
}

// Dispatch runs shapes in order against a parsed JSON document and returns
// the name and text of the first match. ok is false when nothing matches.
func Dispatch(shapes []Shape, doc gjson.Result) (name, text string, ok bool) {
	if !doc.IsObject() {
		return "", "", false
	}
	for _, shape := range shapes {
		if shape.Match(doc) {
			return shape.Name, shape.Extract(doc), true
		}
	}
	return "", "", false
}
