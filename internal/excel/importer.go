// Package excel imports vocabulary catalogs from Excel or CSV files.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/lexisync/internal/database"
	"github.com/example/lexisync/pkg/models"
	"github.com/xuri/excelize/v2"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath          string // Path to the Excel or CSV file
	TermColumn        string // Column with the term
	TranslationColumn string // Column with the translation
	CategoryColumn    string // Column with the category
	LevelColumn       string // Column with the difficulty level (1-5)
	SheetName         string // Name of the sheet to import
	StartRow          int    // The row to start importing from (1-based index)
	DefaultCategory   string // Category used when the column is empty
	DefaultLevel      int    // Level used when the column is empty or invalid
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		TermColumn:        "A",
		TranslationColumn: "B",
		CategoryColumn:    "C",
		LevelColumn:       "D",
		SheetName:         "Sheet1",
		StartRow:          2, // By default, start from the second row (skip header)
		DefaultCategory:   "general",
		DefaultLevel:      3,
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
}

// ImportWords imports words from an Excel or CSV file into the catalog
func ImportWords(ctx context.Context, config ImportConfig) (*ImportResult, error) {
	ext := strings.ToLower(filepath.Ext(config.FilePath))
	if ext == ".csv" {
		return importFromCSV(ctx, config)
	}
	return importFromExcel(ctx, config)
}

// importFromExcel imports words from an Excel file
func importFromExcel(ctx context.Context, config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %v", err)
	}

	wordRepo := database.NewWordRepository()
	result := &ImportResult{Errors: make([]string, 0)}

	for i, row := range rows {
		if i < config.StartRow-1 {
			continue
		}

		result.TotalProcessed++

		var term, translation, category, level string
		if colIdx := columnToIndex(config.TermColumn); colIdx < len(row) {
			term = row[colIdx]
		}
		if colIdx := columnToIndex(config.TranslationColumn); colIdx < len(row) {
			translation = row[colIdx]
		}
		if colIdx := columnToIndex(config.CategoryColumn); colIdx < len(row) {
			category = row[colIdx]
		}
		if colIdx := columnToIndex(config.LevelColumn); colIdx < len(row) {
			level = row[colIdx]
		}

		if err := processWordData(ctx, term, translation, category, level, config, wordRepo, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		}
	}

	return result, nil
}

// importFromCSV imports words from a CSV file. A row holding only a
// value in its first column is treated as a category header for the
// rows below it.
func importFromCSV(ctx context.Context, config ImportConfig) (*ImportResult, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	wordRepo := database.NewWordRepository()
	result := &ImportResult{Errors: make([]string, 0)}

	rowNum := 0
	currentCategory := config.DefaultCategory

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %v", err)
		}

		rowNum++
		if rowNum < config.StartRow {
			continue
		}

		if len(row) >= 2 && strings.TrimSpace(row[0]) != "" && strings.TrimSpace(row[1]) == "" {
			header := strings.Trim(strings.TrimSpace(row[0]), "\"")
			if header != "" {
				currentCategory = header
				continue
			}
		}

		if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
			result.Skipped++
			continue
		}

		result.TotalProcessed++

		var term, translation, level string
		term = row[0]
		translation = row[1]
		if len(row) > 2 {
			level = row[2]
		}

		if err := processWordData(ctx, term, translation, currentCategory, level, config, wordRepo, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		}
	}

	return result, nil
}

// processWordData handles the common logic for one imported word. An
// existing (term, category) pair is updated, a new one is created.
func processWordData(ctx context.Context, term, translation, category, level string, config ImportConfig, wordRepo *database.WordRepository, result *ImportResult) error {
	term = cleanTerm(term)
	translation = strings.TrimSpace(translation)
	category = strings.TrimSpace(category)

	if term == "" || translation == "" {
		result.Skipped++
		return nil
	}
	if category == "" {
		category = config.DefaultCategory
	}

	levelValue := config.DefaultLevel
	if n, err := strconv.Atoi(strings.TrimSpace(level)); err == nil && n >= 1 && n <= 5 {
		levelValue = n
	}

	existing, err := wordRepo.GetByTermAndCategory(ctx, term, category)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.Translation == translation && existing.Level == levelValue && !existing.Deleted {
			result.Skipped++
			return nil
		}
		existing.Translation = translation
		existing.Level = levelValue
		existing.Deleted = false
		if err := wordRepo.Update(ctx, existing); err != nil {
			return err
		}
		result.Updated++
		return nil
	}

	word := &models.Word{
		Term:        term,
		Translation: translation,
		Category:    category,
		Level:       levelValue,
	}
	if err := wordRepo.Create(ctx, word); err != nil {
		return err
	}
	result.Created++
	return nil
}

// cleanTerm strips extra information in parentheses, e.g. "go (went, gone)"
func cleanTerm(term string) string {
	if idx := strings.Index(term, "("); idx > 0 {
		return strings.TrimSpace(term[:idx])
	}
	return strings.TrimSpace(term)
}

// columnToIndex converts a column letter (A, B, ..., Z, AA, ...) to a
// zero-based index.
func columnToIndex(column string) int {
	column = strings.ToUpper(strings.TrimSpace(column))
	index := 0
	for _, c := range column {
		if c < 'A' || c > 'Z' {
			return 0
		}
		index = index*26 + int(c-'A') + 1
	}
	if index == 0 {
		return 0
	}
	return index - 1
}
