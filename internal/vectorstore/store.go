package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"marlin/internal/logging"
)

// EmbeddingFunc turns text into an embedding vector.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// Config holds the vector store connection block from settings.
type Config struct {
	ServerHost       string
	ServerHTTPPort   int
	PersistDirectory string
	Collection       string // defaults to "marlin"
}

// Endpoint returns the base URL of the configured chroma server.
func (c Config) Endpoint() string {
	return fmt.Sprintf("http://%s:%d", c.ServerHost, c.ServerHTTPPort)
}

// Document is one stored item.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// SearchResult pairs a document with its similarity to the query.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// Store manages documents and similarity search.
type Store interface {
	Add(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query string, topK int) ([]SearchResult, error)
	Count() int
	Close() error
}

type chromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     Config
}

// New opens a persistent store under the configured directory.
func New(config Config, embed EmbeddingFunc) (Store, error) {
	if config.Collection == "" {
		config.Collection = "marlin"
	}

	persistFile := filepath.Join(config.PersistDirectory, "chromem.gob")
	db, err := chromem.NewPersistentDB(persistFile, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", config.Collection, err)
	}

	return &chromemStore{db: db, collection: collection, config: config}, nil
}

func (s *chromemStore) Add(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		err := s.collection.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}
	return nil
}

func (s *chromemStore) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

func (s *chromemStore) Count() int {
	return s.collection.Count()
}

func (s *chromemStore) Close() error {
	return nil
}

type disabledStore struct{}

func (disabledStore) Add(context.Context, []Document) error { return nil }
func (disabledStore) Search(context.Context, string, int) ([]SearchResult, error) {
	return nil, nil
}
func (disabledStore) Count() int   { return 0 }
func (disabledStore) Close() error { return nil }

// Disabled returns a store that accepts writes and answers every search
// with no results.
func Disabled() Store {
	return disabledStore{}
}

// Open probes the configured persist directory and returns a persistent
// store when it is usable, falling back to a disabled store otherwise.
// Callers get a working Store either way.
func Open(config Config, embed EmbeddingFunc, logger logging.Logger) Store {
	log := logging.OrNop(logger)
	if config.PersistDirectory == "" {
		log.Warn("vector store disabled: no persist directory configured")
		return Disabled()
	}
	if err := os.MkdirAll(config.PersistDirectory, 0o755); err != nil {
		log.Warn("vector store disabled: %v", err)
		return Disabled()
	}

	store, err := New(config, embed)
	if err != nil {
		log.Warn("vector store disabled: %v", err)
		return Disabled()
	}
	return store
}

// Heartbeat checks whether the configured external chroma server is
// reachable. The embedded store never needs it; the doctor command uses
// it to validate the server settings.
func Heartbeat(ctx context.Context, config Config) error {
	url := config.Endpoint() + "/api/v1/heartbeat"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build heartbeat request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("chroma server at %s: %w", config.Endpoint(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chroma server at %s: status %d", config.Endpoint(), resp.StatusCode)
	}
	return nil
}
