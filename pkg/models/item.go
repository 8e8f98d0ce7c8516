package models

// Exercise categories served by the content bank.
const (
	CategoryWords    = "words"
	CategoryGrammar  = "grammar"
	CategoryReadings = "readings"
)

// Item represents a single exercise: a prompt with one correct answer and,
// optionally, pre-authored answer choices. Items are immutable after loading.
type Item struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Answer  string   `json:"answer"`
	Options []string `json:"options,omitempty"`
	Example string   `json:"example,omitempty"`
	Video   string   `json:"video,omitempty"`
}

// Passage is a reading text with an ordered list of comprehension questions.
// Questions are unlocked strictly in order.
type Passage struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Text      string     `json:"text"`
	Questions []Question `json:"questions"`
}

// Question is one comprehension question inside a passage.
type Question struct {
	Prompt  string   `json:"prompt"`
	Answer  string   `json:"answer"`
	Options []string `json:"options,omitempty"`
}

// Phrase is a phrase-of-the-day entry with its translation.
type Phrase struct {
	Kazakh  string `json:"kz"`
	Russian string `json:"ru"`
	Example string `json:"example,omitempty"`
}

// Topic groups external study links shown in the topics menu.
type Topic struct {
	Name  string      `json:"name"`
	Links []TopicLink `json:"links"`
}

// TopicLink is one labeled URL inside a topic.
type TopicLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}
