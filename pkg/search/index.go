package search

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mattsolo1/grove-wiki/pkg/frontmatter"
	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/tree"
)

// Index is the local knowledge index over documents marked for indexing.
type Index struct {
	db     *sql.DB
	useFTS bool
}

// Hit is one search result.
type Hit struct {
	ID      string
	Name    string
	Kind    models.Kind
	Path    string
	Snippet string
}

// NewIndex creates a new search index
func NewIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	idx := &Index{db: db}
	if err := idx.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return idx, nil
}

// init creates the database schema
func (idx *Index) init() error {
	// First, check if FTS5 is available
	idx.useFTS = idx.checkFTS5Support()

	metaSchema := `
	CREATE TABLE IF NOT EXISTS docs_meta (
		id TEXT PRIMARY KEY,
		name TEXT,
		kind TEXT,
		path TEXT,
		tags TEXT,
		content TEXT,
		indexed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_docs_meta_kind ON docs_meta(kind);
	`
	if _, err := idx.db.Exec(metaSchema); err != nil {
		return fmt.Errorf("create index schema: %w", err)
	}

	if idx.useFTS {
		ftsSchema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
			id UNINDEXED,
			name,
			path,
			tags,
			content,
			tokenize = 'porter unicode61'
		);
		`
		if _, err := idx.db.Exec(ftsSchema); err != nil {
			// If FTS creation fails, disable FTS and continue
			idx.useFTS = false
		}
	}

	return nil
}

// checkFTS5Support checks if FTS5 module is available
func (idx *Index) checkFTS5Support() bool {
	_, err := idx.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS fts5_test USING fts5(content)")
	if err != nil {
		return false
	}

	_, _ = idx.db.Exec("DROP TABLE IF EXISTS fts5_test")
	return true
}

// FullText reports whether the index uses FTS5 rather than LIKE matching.
func (idx *Index) FullText() bool {
	return idx.useFTS
}

type entry struct {
	id, name, kind, path, tags, content string
}

// entryFor returns the indexable form of n, or false when n should not be in
// the index.
func entryFor(n *models.Node, path []string) (entry, bool) {
	if n == nil || !n.InIndex || !n.Kind.IsDocument() {
		return entry{}, false
	}
	content := n.Content
	if n.Kind == models.KindMarkdown {
		content = PlainText(frontmatter.Body(content))
	}
	return entry{
		id:      n.ID,
		name:    n.Name,
		kind:    string(n.Kind),
		path:    strings.Join(path, "/"),
		tags:    strings.Join(n.Tags, " "),
		content: content,
	}, true
}

// IndexNode indexes or reindexes a document. path is the chain of names from
// the root down to the document. Folders and documents not marked for
// indexing are removed instead.
func (idx *Index) IndexNode(n *models.Node, path []string) error {
	e, ok := entryFor(n, path)
	if !ok {
		if n == nil {
			return nil
		}
		return idx.RemoveDocument(n.ID)
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := idx.deleteTx(tx, e.id); err != nil {
		return err
	}
	if err := idx.insertTx(tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// Reindex replaces the whole index with the indexed documents of t.
func (idx *Index) Reindex(t tree.Tree) (int, error) {
	ix := tree.NewIndex(t)

	tx, err := idx.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if idx.useFTS {
		if _, err := tx.Exec("DELETE FROM docs_fts"); err != nil {
			return 0, err
		}
	}
	if _, err := tx.Exec("DELETE FROM docs_meta"); err != nil {
		return 0, err
	}

	count := 0
	var walkErr error
	tree.Walk(t, func(n *models.Node, _ int) bool {
		e, ok := entryFor(n, ix.Path(n.ID))
		if !ok {
			return true
		}
		if walkErr = idx.insertTx(tx, e); walkErr != nil {
			return false
		}
		count++
		return true
	})
	if walkErr != nil {
		return 0, walkErr
	}
	return count, tx.Commit()
}

func (idx *Index) insertTx(tx *sql.Tx, e entry) error {
	if idx.useFTS {
		_, err := tx.Exec(`
			INSERT INTO docs_fts (id, name, path, tags, content)
			VALUES (?, ?, ?, ?, ?)
		`, e.id, e.name, e.path, e.tags, e.content)
		if err != nil {
			return err
		}
	}

	_, err := tx.Exec(`
		INSERT INTO docs_meta (id, name, kind, path, tags, content, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.id, e.name, e.kind, e.path, e.tags, e.content, time.Now())
	return err
}

func (idx *Index) deleteTx(tx *sql.Tx, id string) error {
	if idx.useFTS {
		if _, err := tx.Exec("DELETE FROM docs_fts WHERE id = ?", id); err != nil {
			return err
		}
	}
	_, err := tx.Exec("DELETE FROM docs_meta WHERE id = ?", id)
	return err
}

// Options for searching
type Options struct {
	Kind  models.Kind
	Limit int
}

// Search performs a full-text search
func (idx *Index) Search(query string, opts *Options) ([]Hit, error) {
	if opts == nil {
		opts = &Options{Limit: 50}
	}
	if opts.Limit == 0 {
		opts.Limit = 50
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}

	if idx.useFTS {
		return idx.searchWithFTS(terms, opts)
	}
	return idx.searchWithoutFTS(terms, opts)
}

// searchWithFTS performs search using FTS5
func (idx *Index) searchWithFTS(terms []string, opts *Options) ([]Hit, error) {
	var conditions []string
	var args []any

	if opts.Kind != "" {
		conditions = append(conditions, "m.kind = ?")
		args = append(args, string(opts.Kind))
	}
	conditions = append(conditions, "docs_fts MATCH ?")
	args = append(args, ftsQuery(terms), opts.Limit)

	searchQuery := fmt.Sprintf(`
		SELECT
			m.id, m.name, m.kind, m.path,
			snippet(docs_fts, 4, '[', ']', '...', 16) as snippet
		FROM docs_fts
		JOIN docs_meta m ON docs_fts.id = m.id
		WHERE %s
		ORDER BY rank
		LIMIT ?
	`, strings.Join(conditions, " AND "))

	rows, err := idx.db.Query(searchQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Name, &h.Kind, &h.Path, &h.Snippet); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// searchWithoutFTS matches every term with LIKE against name, tags and
// content.
func (idx *Index) searchWithoutFTS(terms []string, opts *Options) ([]Hit, error) {
	var conditions []string
	var args []any

	if opts.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(opts.Kind))
	}
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		conditions = append(conditions, `(name LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, opts.Limit)

	searchQuery := fmt.Sprintf(`
		SELECT id, name, kind, path, content
		FROM docs_meta
		WHERE %s
		ORDER BY name
		LIMIT ?
	`, strings.Join(conditions, " AND "))

	rows, err := idx.db.Query(searchQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Hit
	for rows.Next() {
		var h Hit
		var content string
		if err := rows.Scan(&h.ID, &h.Name, &h.Kind, &h.Path, &content); err != nil {
			return nil, err
		}
		h.Snippet = excerpt(content, terms[0], 48)
		results = append(results, h)
	}
	return results, rows.Err()
}

// RemoveDocument removes a document from the index
func (idx *Index) RemoveDocument(id string) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := idx.deleteTx(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the index
func (idx *Index) Close() error {
	return idx.db.Close()
}

// ftsQuery quotes every term so user input is never read as FTS syntax.
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// excerpt returns up to width bytes on each side of the first
// case-insensitive match of term.
func excerpt(content, term string, width int) string {
	i := strings.Index(strings.ToLower(content), strings.ToLower(term))
	if i < 0 {
		if len(content) > 2*width {
			return strings.ToValidUTF8(content[:2*width], "") + "..."
		}
		return content
	}
	start, end := max(0, i-width), min(len(content), i+len(term)+width)
	out := strings.ToValidUTF8(content[start:end], "")
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}
