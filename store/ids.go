package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^0-9a-zA-Z]+`)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `_`, `\_`, `%`, `\%`)

// Slugify derives a script id candidate from a display name.
func Slugify(name string) string {
	return strings.ToLower(nonAlnum.ReplaceAllString(name, "_"))
}

// ScriptIDAvailable reports whether a script id is free.
func (s *Store) ScriptIDAvailable(ctx context.Context, id string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id FROM scripts WHERE id = ?`), id).Scan(&found)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// ProposeScriptID turns a name into a unique slug, appending a numeric
// suffix when the plain slug or earlier suffixed slugs are taken.
func (s *Store) ProposeScriptID(ctx context.Context, name string) (string, error) {
	slug := Slugify(name)

	free, err := s.ScriptIDAvailable(ctx, slug)
	if err != nil {
		return "", err
	}

	// sqlite LIKE has no default escape character, postgres uses backslash
	query := s.q(`SELECT id FROM scripts WHERE id LIKE ? ORDER BY id DESC`)
	if s.IsSQLite() {
		query = `SELECT id FROM scripts WHERE id LIKE ? ESCAPE '\' ORDER BY id DESC`
	}
	// underscores inside the slug must match literally, not as wildcards
	pattern := likeEscaper.Replace(slug) + `\_%`
	rows, err := s.db.QueryContext(ctx, query, pattern)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	maxNum := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		suffix := id[len(slug)+1:]
		if n, err := strconv.Atoi(suffix); err == nil && n > maxNum {
			maxNum = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case maxNum > 0:
		return fmt.Sprintf("%s_%d", slug, maxNum+1), nil
	case !free:
		return slug + "_1", nil
	default:
		return slug, nil
	}
}
