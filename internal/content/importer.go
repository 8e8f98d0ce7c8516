package content

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/anatilbot/pkg/models"
)

// ImportConfig defines how a word list file is read.
type ImportConfig struct {
	FilePath      string // Path to the Excel or CSV file
	PromptColumn  string // Column with the Kazakh word
	AnswerColumn  string // Column with the translation
	ExampleColumn string // Column with an example sentence
	SheetName     string // Name of the sheet to import
	StartRow      int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration.
func DefaultImportConfig(path string) ImportConfig {
	return ImportConfig{
		FilePath:      path,
		PromptColumn:  "A",
		AnswerColumn:  "B",
		ExampleColumn: "C",
		SheetName:     "Sheet1",
		StartRow:      2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation.
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
}

// ImportWords reads a word list from an Excel or CSV file and merges it into
// the words bank file under dataDir. The bot reads content only at startup,
// so a restart is needed to pick up imported words.
func ImportWords(dataDir string, config ImportConfig) (*ImportResult, error) {
	var rows [][]string
	var err error

	ext := strings.ToLower(filepath.Ext(config.FilePath))
	if ext == ".csv" {
		rows, err = readCSVRows(config.FilePath)
	} else {
		rows, err = readExcelRows(config)
	}
	if err != nil {
		return nil, err
	}

	words, err := loadWordsFile(dataDir)
	if err != nil {
		return nil, err
	}

	// Index existing words by prompt for merge
	index := make(map[string]int, len(words))
	for i, w := range words {
		index[w.Prompt] = i
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		if i < config.StartRow-1 {
			continue
		}
		result.TotalProcessed++

		prompt := cell(row, columnIndex(config.PromptColumn))
		answer := cell(row, columnIndex(config.AnswerColumn))
		example := cell(row, columnIndex(config.ExampleColumn))

		if prompt == "" || answer == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: missing word or translation", i+1))
			continue
		}

		word := models.Item{ID: prompt, Prompt: prompt, Answer: answer, Example: example}
		if at, ok := index[prompt]; ok {
			words[at] = word
			result.Updated++
		} else {
			index[prompt] = len(words)
			words = append(words, word)
			result.Created++
		}
	}

	if err := saveWordsFile(dataDir, words); err != nil {
		return nil, err
	}
	return result, nil
}

// readExcelRows reads all rows of the configured sheet.
func readExcelRows(config ImportConfig) ([][]string, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %v", err)
	}
	return rows, nil
}

// readCSVRows reads all rows of a CSV file.
func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %v", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func loadWordsFile(dataDir string) ([]models.Item, error) {
	var words []models.Item
	if err := loadJSON(filepath.Join(dataDir, wordsFile), &words); err != nil {
		return nil, err
	}
	return words, nil
}

func saveWordsFile(dataDir string, words []models.Item) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %v", err)
	}
	data, err := json.MarshalIndent(words, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode words: %v", err)
	}
	path := filepath.Join(dataDir, wordsFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	return nil
}

// cell returns a trimmed cell value, tolerating short rows.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// columnIndex converts a spreadsheet column letter ("A", "B", ... "AA") to a
// zero-based index.
func columnIndex(column string) int {
	idx := 0
	for _, r := range strings.ToUpper(column) {
		if r < 'A' || r > 'Z' {
			return -1
		}
		idx = idx*26 + int(r-'A') + 1
	}
	return idx - 1
}
