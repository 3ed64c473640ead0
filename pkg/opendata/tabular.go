package opendata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/config"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/transitwpg/transitwpg/pkg/download"
	"github.com/transitwpg/transitwpg/pkg/gtfs"
)

// PageSize is the SODA page limit and the CSV insert chunk size.
const PageSize = 50_000

var columnCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeColumn converts a portal column header to snake_case.
func NormalizeColumn(name string) string {
	cleaned := columnCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")

	return strings.Trim(cleaned, "_")
}

// DateWindow resolves the inclusive date range for an operational dataset
// pull. With historical GTFS loaded the window starts at the historical
// feed's first service date so before/after comparisons see both sides;
// otherwise it covers the current feed's validity period, falling back to
// the PTN launch when no feed is loaded. The window never extends past
// today, since the portal only holds observed data.
func DateWindow(db *database.Database, window string) (string, string) {
	today := time.Now().Format("2006-01-02")

	if window == WindowFull {
		return "2010-01-01", today
	}

	if db.TableExists("raw_gtfs_calendar_pre_ptn") {
		var start string
		err := db.SQL.QueryRow("SELECT MIN(start_date) FROM raw_gtfs_calendar_pre_ptn").Scan(&start)
		if err == nil && start != "" {
			log.Debug().Str("start", start).Msg("Date window from historical feed")
			return start, today
		}
	}

	if start, _, err := gtfs.FeedDateRange(db); err == nil {
		log.Debug().Str("start", start).Msg("Date window from current feed")
		return start, today
	}

	return config.PTNLaunchDate, today
}

// WhereClause builds the SODA $where predicate for a dataset's date
// window, or "" when the dataset is not date filtered.
func WhereClause(db *database.Database, dataset Dataset) string {
	if dataset.DateColumn == "" || dataset.Window == WindowNone {
		return ""
	}

	start, end := DateWindow(db, dataset.Window)

	return fmt.Sprintf("%s >= '%s' AND %s <= '%s'", dataset.DateColumn, start, dataset.DateColumn, end)
}

// LoadTabular downloads a dataset's CSV export (cached under cacheDir) and
// loads it in chunks. The first chunk replaces the table, later chunks
// append, so a re-run never doubles the data. A positive limit caps the
// loaded rows.
func LoadTabular(db *database.Database, client *Client, dataset Dataset, cacheDir string, limit int) (int, error) {
	csvPath := filepath.Join(cacheDir, dataset.Resource+".csv")
	if _, err := download.Fetch(client.ExportCSVURL(dataset.Resource), csvPath, download.Options{
		Headers: client.Headers(),
	}); err != nil {
		return 0, err
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read %s header: %w", dataset.Table, err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = NormalizeColumn(name)
	}

	numeric := map[string]bool{}
	for _, column := range dataset.NumericColumns {
		numeric[column] = true
	}

	if err := createTabularTable(db, dataset.Table, columns, numeric); err != nil {
		return 0, err
	}

	insertSQL := buildInsertSQL(dataset.Table, len(columns))

	loaded := 0
	chunk := make([][]string, 0, PageSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := insertChunk(db, insertSQL, columns, numeric, chunk); err != nil {
			return err
		}
		loaded += len(chunk)
		chunk = chunk[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, fmt.Errorf("read %s: %w", dataset.Table, err)
		}

		chunk = append(chunk, record)
		if len(chunk) == PageSize {
			if err := flush(); err != nil {
				return loaded, err
			}
		}

		if limit > 0 && loaded+len(chunk) >= limit {
			chunk = chunk[:limit-loaded]
			break
		}
	}

	if err := flush(); err != nil {
		return loaded, err
	}

	log.Info().Str("table", dataset.Table).Int("rows", loaded).Msg("Loaded tabular dataset")

	return loaded, nil
}

func createTabularTable(db *database.Database, table string, columns []string, numeric map[string]bool) error {
	var defs []string
	for _, column := range columns {
		if err := database.ValidateIdentifier(column, "column"); err != nil {
			return err
		}

		columnType := "TEXT"
		if numeric[column] {
			columnType = "REAL"
		}
		defs = append(defs, fmt.Sprintf("%s %s", column, columnType))
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))

	return db.DropCreate(table, ddl)
}

func buildInsertSQL(table string, columnCount int) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", columnCount), ", ")

	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, placeholders)
}

func insertChunk(db *database.Database, insertSQL string, columns []string, numeric map[string]bool, rows [][]string) error {
	tx, err := db.SQL.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for _, row := range rows {
		for i, column := range columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}

			if numeric[column] {
				// Unparseable values become NULL, matching the
				// portal's own numeric coercion
				if parsed, err := strconv.ParseFloat(value, 64); err == nil {
					args[i] = parsed
				} else {
					args[i] = nil
				}
			} else {
				args[i] = value
			}
		}

		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
