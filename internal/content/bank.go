// Package content holds the exercise banks. Everything is loaded once at
// process start and is read-only afterwards; there is no hot reload.
package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/anatilbot/pkg/models"
)

// File names expected inside the data directory. A missing file simply
// yields an empty bank for that category.
const (
	wordsFile    = "words.json"
	grammarFile  = "grammar.json"
	readingsFile = "readings.json"
	phrasesFile  = "phrases.json"
	topicsFile   = "topics.json"
)

// Bank is the immutable, process-wide collection of exercise content.
type Bank struct {
	items     map[string][]models.Item
	itemIndex map[string]map[string]int // category -> item id -> slice index
	passages  []models.Passage
	passIndex map[string]int
	phrases   []models.Phrase
	topics    []models.Topic
}

// Load reads all content files from dir and builds the lookup indexes.
func Load(dir string) (*Bank, error) {
	b := &Bank{
		items:     make(map[string][]models.Item),
		itemIndex: make(map[string]map[string]int),
		passIndex: make(map[string]int),
	}

	var words, grammar []models.Item
	if err := loadJSON(filepath.Join(dir, wordsFile), &words); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, grammarFile), &grammar); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, readingsFile), &b.passages); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, phrasesFile), &b.phrases); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, topicsFile), &b.topics); err != nil {
		return nil, err
	}

	b.addItems(models.CategoryWords, words)
	b.addItems(models.CategoryGrammar, grammar)

	for i, p := range b.passages {
		if p.ID == "" {
			return nil, fmt.Errorf("reading passage %d has no id", i)
		}
		b.passIndex[p.ID] = i
	}

	return b, nil
}

// loadJSON reads a JSON file into target. A missing file is not an error.
func loadJSON(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse %s: %v", path, err)
	}
	return nil
}

func (b *Bank) addItems(category string, items []models.Item) {
	index := make(map[string]int, len(items))
	for i := range items {
		// Authors may omit ids; the prompt is unique within a bank.
		if items[i].ID == "" {
			items[i].ID = items[i].Prompt
		}
		index[items[i].ID] = i
	}
	b.items[category] = items
	b.itemIndex[category] = index
}

// ItemsIn returns the ordered items of a category. An unknown category
// yields an empty slice, never an error: callers treat empty as "nothing
// to serve".
func (b *Bank) ItemsIn(category string) []models.Item {
	return b.items[category]
}

// ItemByID looks up one item by its stable id.
func (b *Bank) ItemByID(category, id string) (models.Item, bool) {
	idx, ok := b.itemIndex[category][id]
	if !ok {
		return models.Item{}, false
	}
	return b.items[category][idx], true
}

// Passages returns all reading passages in authored order.
func (b *Bank) Passages() []models.Passage {
	return b.passages
}

// PassageByID looks up one reading passage.
func (b *Bank) PassageByID(id string) (models.Passage, bool) {
	idx, ok := b.passIndex[id]
	if !ok {
		return models.Passage{}, false
	}
	return b.passages[idx], true
}

// Phrases returns the phrase-of-the-day pool.
func (b *Bank) Phrases() []models.Phrase {
	return b.phrases
}

// Topics returns the study link topics for the topics menu.
func (b *Bank) Topics() []models.Topic {
	return b.topics
}

// AnswerPool returns the correct answers of a category, used as the
// distractor pool for items without authored options.
func (b *Bank) AnswerPool(category string) []string {
	items := b.items[category]
	pool := make([]string, 0, len(items))
	for _, it := range items {
		pool = append(pool, it.Answer)
	}
	return pool
}
