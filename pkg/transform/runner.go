package transform

import (
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/transitwpg/transitwpg/pkg/database"
)

//go:embed sql/*.sql
var sqlScripts embed.FS

var placeholderPattern = regexp.MustCompile(`\{\{[^{}]+\}\}`)

// RunScript executes every statement of an embedded SQL script inside one
// transaction, so a failing script leaves the database untouched.
func RunScript(db *database.Database, name string) error {
	return RunTemplate(db, name, nil)
}

// RunTemplate is RunScript with {{placeholder}} substitution. Any token
// left unresolved after substitution aborts before anything executes.
func RunTemplate(db *database.Database, name string, replacements map[string]string) error {
	raw, err := sqlScripts.ReadFile("sql/" + name)
	if err != nil {
		return fmt.Errorf("unknown SQL script %s", name)
	}

	text := string(raw)
	for key, value := range replacements {
		text = strings.ReplaceAll(text, "{{"+key+"}}", value)
	}

	if unresolved := placeholderPattern.FindAllString(text, -1); len(unresolved) > 0 {
		sort.Strings(unresolved)
		return fmt.Errorf("unresolved placeholders in %s: %s", name, strings.Join(unique(unresolved), ", "))
	}

	tx, err := db.SQL.Begin()
	if err != nil {
		return err
	}

	for _, statement := range splitStatements(text) {
		if _, err := tx.Exec(statement); err != nil {
			tx.Rollback()
			return fmt.Errorf("script %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("script %s: %w", name, err)
	}

	log.Debug().Str("script", name).Msg("Executed SQL script")

	return nil
}

func splitStatements(text string) []string {
	var statements []string
	for _, chunk := range strings.Split(text, ";") {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}

	return statements
}

func unique(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, value := range values {
		if !seen[value] {
			seen[value] = true
			out = append(out, value)
		}
	}

	return out
}
