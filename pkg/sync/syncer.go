package sync

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-wiki/pkg/frontmatter"
	"github.com/mattsolo1/grove-wiki/pkg/ledger"
	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/tree"
)

// Syncer reconciles the local tree with the remote listing.
type Syncer struct {
	provider Provider
	logger   *logrus.Entry
}

// NewSyncer creates a new Syncer.
func NewSyncer(provider Provider, logger *logrus.Entry) *Syncer {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &Syncer{provider: provider, logger: logger.WithField("component", "sync")}
}

// Result is the outcome of a refresh.
type Result struct {
	Tree    tree.Tree
	Records []models.DocumentRecord
	Report  *Report
}

// Refresh fetches the listing and merges it into local. local is not
// modified; on error the caller keeps its current tree.
func (s *Syncer) Refresh(ctx context.Context, local tree.Tree) (*Result, error) {
	records, err := s.provider.ListDocuments(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Refresh failed; keeping local tree")
		return nil, fmt.Errorf("list documents: %w", err)
	}

	res := s.Reconcile(local, records)
	s.logger.WithFields(logrus.Fields{
		"remote":  res.Report.Remote,
		"matched": res.Report.Matched,
		"added":   res.Report.Added,
		"pending": res.Report.PendingLocal,
		"invalid": res.Report.InvalidLedgers,
	}).Info("Refreshed document tree")
	return res, nil
}

// Reconcile merges an already fetched listing into local without calling the
// provider.
func (s *Syncer) Reconcile(local tree.Tree, records []models.DocumentRecord) *Result {
	report := &Report{Remote: len(records)}
	report.Tagged = applyFrontmatterTags(records)

	remote := tree.Build(records)
	report.InvalidLedgers = s.validateLedgers(remote)
	merged := tree.Merge(local, remote)
	count(report, local, remote)
	return &Result{Tree: merged, Records: records, Report: report}
}

// validateLedgers logs every document whose version ledger is inconsistent.
// Such documents are still merged; the ledger is only displayed.
func (s *Syncer) validateLedgers(remote tree.Tree) int {
	invalid := 0
	tree.Walk(remote, func(n *models.Node, _ int) bool {
		if err := ledger.Validate(n); err != nil {
			s.logger.WithError(err).WithField("document", n.ID).Warn("Invalid version ledger")
			invalid++
		}
		return true
	})
	return invalid
}

func count(report *Report, local, remote tree.Tree) {
	known := tree.NewIndex(local)
	tree.Walk(remote, func(n *models.Node, _ int) bool {
		if _, ok := known.Get(n.ID); ok {
			report.Matched++
		} else {
			report.Added++
		}
		return true
	})
	report.PendingLocal = known.Len() - report.Matched
}

// applyFrontmatterTags fills the tags of markdown records that carry none
// from their front matter and returns how many records changed.
func applyFrontmatterTags(records []models.DocumentRecord) int {
	n := 0
	for i := range records {
		r := &records[i]
		if r.Kind != models.KindMarkdown || len(r.Tags) > 0 || r.Content == "" {
			continue
		}
		if tags := frontmatter.Tags(r.Content); len(tags) > 0 {
			r.Tags = tags
			n++
		}
	}
	return n
}
