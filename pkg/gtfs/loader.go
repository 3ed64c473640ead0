package gtfs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/archive"
	"github.com/transitwpg/transitwpg/pkg/config"
	"github.com/transitwpg/transitwpg/pkg/database"
)

const insertBatchSize = 5000

func init() {
	// Tolerate rows with missing trailing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		return r
	})
}

// Loader bulk-loads an extracted GTFS feed into raw_gtfs_* tables,
// replacing any previous contents.
type Loader struct {
	DB             *database.Database
	Dir            string
	Bounds         config.BoundingBox
	SkipValidation bool
}

type tableSpec struct {
	filename string
	table    string
	load     func(l *Loader, path string, table string) (int, error)
}

// Fixed logical table set; order matters only for log readability.
var tableSpecs = []tableSpec{
	{"stops.txt", "raw_gtfs_stops", (*Loader).loadStops},
	{"routes.txt", "raw_gtfs_routes", (*Loader).loadRoutes},
	{"trips.txt", "raw_gtfs_trips", (*Loader).loadTrips},
	{"stop_times.txt", "raw_gtfs_stop_times", (*Loader).loadStopTimes},
	{"calendar.txt", "raw_gtfs_calendar", (*Loader).loadCalendar},
	{"calendar_dates.txt", "raw_gtfs_calendar_dates", (*Loader).loadCalendarDates},
	{"shapes.txt", "raw_gtfs_shapes", (*Loader).loadShapes},
	{"feed_info.txt", "raw_gtfs_feed_info", (*Loader).loadFeedInfo},
}

// LoadAll loads every GTFS table found in the loader's directory. A missing
// file is a warning and counts as zero rows; a failing table does not stop
// the others, but all failures are reported together at the end.
//
// A non-empty suffix loads into suffixed tables (raw_gtfs_stops_pre_ptn)
// so historical feeds can coexist with the current one.
func (l *Loader) LoadAll(suffix string) (map[string]int, error) {
	if suffix != "" {
		if err := database.ValidateIdentifier(suffix, "suffix"); err != nil {
			return nil, err
		}
	}

	results := map[string]int{}
	var failed []string

	for _, spec := range tableSpecs {
		table := spec.table
		if suffix != "" {
			table = table + "_" + suffix
		}

		path := filepath.Join(l.Dir, spec.filename)
		if _, err := os.Stat(path); err != nil {
			log.Warn().Str("file", spec.filename).Msg("Skipping missing GTFS file")
			results[spec.filename] = 0
			continue
		}

		if err := archive.EnforceMaxFileSize(path); err != nil {
			log.Error().Err(err).Str("file", spec.filename).Msg("Skipping oversized GTFS file")
			failed = append(failed, spec.filename)
			continue
		}

		rows, err := spec.load(l, path, table)
		if err != nil {
			log.Error().Err(err).Str("file", spec.filename).Msg("Failed to load GTFS table")
			failed = append(failed, spec.filename)
			continue
		}

		results[spec.filename] = rows
		log.Info().Str("table", table).Int("rows", rows).Msg("Loaded GTFS table")
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("GTFS load incomplete, failed files: %s", strings.Join(failed, ", "))
	}

	return results, nil
}

// ValidateOnly parses the feed's validated files and runs every check
// without touching the database.
func (l *Loader) ValidateOnly() error {
	checks := []struct {
		filename string
		validate func(path string) error
	}{
		{"stops.txt", func(path string) error {
			stops, err := parseFile[Stop](path)
			if err != nil {
				return err
			}
			return ValidateStops(stops, l.Bounds)
		}},
		{"routes.txt", func(path string) error {
			routes, err := parseFile[Route](path)
			if err != nil {
				return err
			}
			return ValidateRoutes(routes)
		}},
		{"trips.txt", func(path string) error {
			trips, err := parseFile[Trip](path)
			if err != nil {
				return err
			}
			return ValidateTrips(trips)
		}},
		{"stop_times.txt", func(path string) error {
			stopTimes, err := parseFile[StopTime](path)
			if err != nil {
				return err
			}
			return ValidateStopTimes(stopTimes)
		}},
	}

	var failed []string
	for _, check := range checks {
		path := filepath.Join(l.Dir, check.filename)
		if _, err := os.Stat(path); err != nil {
			log.Warn().Str("file", check.filename).Msg("Skipping missing GTFS file")
			continue
		}

		if err := check.validate(path); err != nil {
			log.Error().Err(err).Str("file", check.filename).Msg("Validation failed")
			failed = append(failed, check.filename)
			continue
		}

		log.Info().Str("file", check.filename).Msg("Validation passed")
	}

	if len(failed) > 0 {
		return fmt.Errorf("validation failed for: %s", strings.Join(failed, ", "))
	}

	return nil
}

func parseFile[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []T
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	return rows, nil
}

// insertRows writes rows in fixed-size batches, each in its own
// transaction, to bound memory on the big tables (stop_times, shapes).
func insertRows[T any](db *database.Database, insertSQL string, rows []T, args func(T) []any) error {
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))

		tx, err := db.SQL.Begin()
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(insertSQL)
		if err != nil {
			tx.Rollback()
			return err
		}

		for _, row := range rows[start:end] {
			if _, err := stmt.Exec(args(row)...); err != nil {
				stmt.Close()
				tx.Rollback()
				return err
			}
		}

		stmt.Close()
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loader) loadStops(path string, table string) (int, error) {
	stops, err := parseFile[Stop](path)
	if err != nil {
		return 0, err
	}

	if !l.SkipValidation {
		if err := ValidateStops(stops, l.Bounds); err != nil {
			return 0, err
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		stop_id TEXT PRIMARY KEY,
		stop_code TEXT,
		stop_name TEXT,
		stop_lat REAL NOT NULL,
		stop_lon REAL NOT NULL
	)`, table)
	if err := l.DB.DropCreate(table, ddl); err != nil {
		return 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?)", table)
	err = insertRows(l.DB, insertSQL, stops, func(s Stop) []any {
		return []any{s.ID, s.Code, s.Name, s.Lat, s.Lon}
	})

	return len(stops), err
}

func (l *Loader) loadRoutes(path string, table string) (int, error) {
	routes, err := parseFile[Route](path)
	if err != nil {
		return 0, err
	}

	if !l.SkipValidation {
		if err := ValidateRoutes(routes); err != nil {
			return 0, err
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		route_id TEXT PRIMARY KEY,
		route_short_name TEXT,
		route_long_name TEXT,
		route_type INTEGER
	)`, table)
	if err := l.DB.DropCreate(table, ddl); err != nil {
		return 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", table)
	err = insertRows(l.DB, insertSQL, routes, func(r Route) []any {
		return []any{r.ID, r.ShortName, r.LongName, r.Type}
	})

	return len(routes), err
}

func (l *Loader) loadTrips(path string, table string) (int, error) {
	trips, err := parseFile[Trip](path)
	if err != nil {
		return 0, err
	}

	if !l.SkipValidation {
		if err := ValidateTrips(trips); err != nil {
			return 0, err
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		trip_id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		trip_headsign TEXT,
		direction_id INTEGER
	)`, table)
	if err := l.DB.DropCreate(table, ddl); err != nil {
		return 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?)", table)
	err = insertRows(l.DB, insertSQL, trips, func(t Trip) []any {
		return []any{t.ID, t.RouteID, t.ServiceID, t.Headsign, t.DirectionID}
	})

	return len(trips), err
}

func (l *Loader) loadStopTimes(path string, table string) (int, error) {
	stopTimes, err := parseFile[StopTime](path)
	if err != nil {
		return 0, err
	}

	if !l.SkipValidation {
		if err := ValidateStopTimes(stopTimes); err != nil {
			return 0, err
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		trip_id TEXT NOT NULL,
		arrival_time TEXT,
		departure_time TEXT,
		stop_id TEXT NOT NULL,
		stop_sequence INTEGER NOT NULL,
		PRIMARY KEY (trip_id, stop_sequence)
	)`, table)
	if err := l.DB.DropCreate(table, ddl); err != nil {
		return 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?)", table)
	err = insertRows(l.DB, insertSQL, stopTimes, func(st StopTime) []any {
		return []any{st.TripID, st.ArrivalTime, st.DepartureTime, st.StopID, st.StopSequence}
	})

	return len(stopTimes), err
}

func (l *Loader) loadCalendar(path string, table string) (int, error) {
	calendars, err := parseFile[Calendar](path)
	if err != nil {
		return 0, err
	}

	for i := range calendars {
		if calendars[i].StartDate, err = ParseDate(calendars[i].StartDate); err != nil {
			return 0, err
		}
		if calendars[i].EndDate, err = ParseDate(calendars[i].EndDate); err != nil {
			return 0, err
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		service_id TEXT PRIMARY KEY,
		sunday INTEGER NOT NULL,
		monday INTEGER NOT NULL,
		tuesday INTEGER NOT NULL,
		wednesday INTEGER NOT NULL,
		thursday INTEGER NOT NULL,
		friday INTEGER NOT NULL,
		saturday INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	)`, table)
	if err := l.DB.DropCreate(table, ddl); err != nil {
		return 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", table)
	err = insertRows(l.DB, insertSQL, calendars, func(c Calendar) []any {
		return []any{c.ServiceID, c.Sunday, c.Monday, c.Tuesday, c.Wednesday, c.Thursday, c.Friday, c.Saturday, c.StartDate, c.EndDate}
	})

	return len(calendars), err
}

func (l *Loader) loadCalendarDates(path string, table string) (int, error) {
	calendarDates, err := parseFile[CalendarDate](path)
	if err != nil {
		return 0, err
	}

	for i := range calendarDates {
		if calendarDates[i].Date, err = ParseDate(calendarDates[i].Date); err != nil {
			return 0, err
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		service_id TEXT NOT NULL,
		date TEXT NOT NULL,
		exception_type INTEGER NOT NULL,
		PRIMARY KEY (service_id, date)
	)`, table)
	if err := l.DB.DropCreate(table, ddl); err != nil {
		return 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?)", table)
	err = insertRows(l.DB, insertSQL, calendarDates, func(cd CalendarDate) []any {
		return []any{cd.ServiceID, cd.Date, cd.ExceptionType}
	})

	return len(calendarDates), err
}

func (l *Loader) loadShapes(path string, table string) (int, error) {
	shapes, err := parseFile[Shape](path)
	if err != nil {
		return 0, err
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		shape_id TEXT NOT NULL,
		shape_pt_lat REAL NOT NULL,
		shape_pt_lon REAL NOT NULL,
		shape_pt_sequence INTEGER NOT NULL,
		PRIMARY KEY (shape_id, shape_pt_sequence)
	)`, table)
	if err := l.DB.DropCreate(table, ddl); err != nil {
		return 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", table)
	err = insertRows(l.DB, insertSQL, shapes, func(s Shape) []any {
		return []any{s.ID, s.PointLat, s.PointLon, s.PointSequence}
	})

	return len(shapes), err
}

func (l *Loader) loadFeedInfo(path string, table string) (int, error) {
	feedInfos, err := parseFile[FeedInfo](path)
	if err != nil {
		return 0, err
	}

	for i := range feedInfos {
		if feedInfos[i].StartDate != "" {
			if feedInfos[i].StartDate, err = ParseDate(feedInfos[i].StartDate); err != nil {
				return 0, err
			}
		}
		if feedInfos[i].EndDate != "" {
			if feedInfos[i].EndDate, err = ParseDate(feedInfos[i].EndDate); err != nil {
				return 0, err
			}
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE %s (
		feed_publisher_name TEXT,
		feed_publisher_url TEXT,
		feed_lang TEXT,
		feed_contact_email TEXT,
		feed_start_date TEXT,
		feed_end_date TEXT
	)`, table)
	if err := l.DB.DropCreate(table, ddl); err != nil {
		return 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?)", table)
	err = insertRows(l.DB, insertSQL, feedInfos, func(fi FeedInfo) []any {
		return []any{fi.PublisherName, fi.PublisherURL, fi.Language, fi.ContactEmail, fi.StartDate, fi.EndDate}
	})

	return len(feedInfos), err
}

// FeedDateRange returns the loaded feed's validity window from feed_info,
// falling back to the calendar min/max.
func FeedDateRange(db *database.Database) (string, string, error) {
	if db.TableExists("raw_gtfs_feed_info") {
		var start, end string
		err := db.SQL.QueryRow(
			"SELECT feed_start_date, feed_end_date FROM raw_gtfs_feed_info LIMIT 1",
		).Scan(&start, &end)
		if err == nil && start != "" && end != "" {
			return start, end, nil
		}
	}

	if db.TableExists("raw_gtfs_calendar") {
		var start, end string
		err := db.SQL.QueryRow(
			"SELECT MIN(start_date), MAX(end_date) FROM raw_gtfs_calendar",
		).Scan(&start, &end)
		if err == nil && start != "" && end != "" {
			return start, end, nil
		}
	}

	return "", "", fmt.Errorf("no feed date range available: load GTFS first")
}
