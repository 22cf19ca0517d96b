// Package search keeps a full-text index over analysed claims.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	_ "github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/ppiankov/islamcheck/internal/model"
	"github.com/ppiankov/islamcheck/internal/store"
)

const reindexPageSize = 500

// Index wraps a Bleve search index of claim records
type Index struct {
	index bleve.Index
}

// IndexedClaim is the document stored per claim
type IndexedClaim struct {
	ID             string
	Query          string
	Answer         string
	Sources        []string
	Classification string
}

// Hit is a single search result
type Hit struct {
	ID             string              `json:"id"`
	Query          string              `json:"query"`
	Classification string              `json:"classification"`
	Score          float64             `json:"score"`
	Fragments      map[string][]string `json:"fragments,omitempty"`
}

// Open opens or creates the index at path. An empty path builds a
// memory-only index.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// buildIndexMapping analyses claim text and answers in English; the
// classification is kept as an exact keyword for filtering
func buildIndexMapping() mapping.IndexMapping {
	englishText := bleve.NewTextFieldMapping()
	englishText.Analyzer = "en"

	keyword := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", keyword)
	docMapping.AddFieldMappingsAt("Query", englishText)
	docMapping.AddFieldMappingsAt("Answer", englishText)
	docMapping.AddFieldMappingsAt("Sources", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Classification", keyword)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// Add indexes or re-indexes a record
func (i *Index) Add(rec *model.ClaimRecord) error {
	return i.index.Index(rec.ID, toDocument(rec))
}

// Delete removes a record from the index
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Search matches text against claim queries (boosted) and answers.
// A non-empty classification restricts hits to that label.
func (i *Index) Search(text string, classification model.Classification, limit int) ([]*Hit, error) {
	queryMatch := bleve.NewMatchQuery(text)
	queryMatch.SetField("Query")
	queryMatch.SetBoost(2)

	answerMatch := bleve.NewMatchQuery(text)
	answerMatch.SetField("Answer")

	var q query.Query = bleve.NewDisjunctionQuery(queryMatch, answerMatch)
	if classification != "" {
		label := bleve.NewTermQuery(string(classification))
		label.SetField("Classification")
		q = bleve.NewConjunctionQuery(q, label)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Fields = []string{"Query", "Classification"}

	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]*Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		hit := &Hit{ID: h.ID, Score: h.Score, Fragments: h.Fragments}
		if v, ok := h.Fields["Query"].(string); ok {
			hit.Query = v
		}
		if v, ok := h.Fields["Classification"].(string); ok {
			hit.Classification = v
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// IndexFromStore rebuilds the index from every stored record
func (i *Index) IndexFromStore(ctx context.Context, s store.Store) (int, error) {
	indexed := 0
	for offset := 0; ; offset += reindexPageSize {
		records, err := s.ListPage(ctx, reindexPageSize, offset)
		if err != nil {
			return indexed, fmt.Errorf("list records: %w", err)
		}
		if len(records) == 0 {
			return indexed, nil
		}

		batch := i.index.NewBatch()
		for _, rec := range records {
			if err := batch.Index(rec.ID, toDocument(rec)); err != nil {
				return indexed, fmt.Errorf("batch index %s: %w", rec.ID, err)
			}
		}
		if err := i.index.Batch(batch); err != nil {
			return indexed, fmt.Errorf("commit batch: %w", err)
		}
		indexed += len(records)

		if len(records) < reindexPageSize {
			return indexed, nil
		}
	}
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

func toDocument(rec *model.ClaimRecord) *IndexedClaim {
	return &IndexedClaim{
		ID:             rec.ID,
		Query:          rec.Query,
		Answer:         rec.Answer,
		Sources:        rec.Sources,
		Classification: string(rec.Classification),
	}
}
