package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/wetlandlabs/wetkb/internal/models"
	"github.com/wetlandlabs/wetkb/internal/types"
)

type VectorStoreConfig struct {
	ConnString   string
	TableName    string
	VectorDim    int
	BatchSize    int
	EmbedWorkers int
	SearchLimit  int
}

type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig, embedder types.Embedder) (*VectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // Gemini embedding-001 dimension
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.EmbedWorkers == 0 {
		config.EmbedWorkers = 4
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 8
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			title TEXT,
			content TEXT,
			chunk_index INTEGER,
			page INTEGER,
			content_type TEXT DEFAULT 'text',
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

type chunkRecord struct {
	id        string
	source    string
	title     string
	content   string
	index     int
	page      int
	kind      string
	metadata  map[string]interface{}
	embedding []float32
}

// Store embeds every chunk and upserts the batch in one transaction.
// Embeddings are computed concurrently, capped at EmbedWorkers in
// flight.
func (vs *VectorStore) Store(ctx context.Context, docs []models.ProcessedDocument) error {
	var records []*chunkRecord
	for _, doc := range docs {
		cleanTitle := sanitizeUTF8(doc.Title)
		kind := "text"
		if v, ok := doc.Metadata["type"].(string); ok && v != "" {
			kind = v
		}

		for i, chunk := range doc.Chunks {
			records = append(records, &chunkRecord{
				id:       fmt.Sprintf("%s_%d", doc.ID, i),
				source:   doc.Source,
				title:    cleanTitle,
				content:  sanitizeUTF8(chunk),
				index:    i,
				page:     doc.Page,
				kind:     kind,
				metadata: doc.Metadata,
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(vs.config.EmbedWorkers)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			embeddings, err := vs.embedder.CreateEmbedding(gctx, []string{rec.content})
			if err != nil {
				return fmt.Errorf("failed to create embeddings: %v", err)
			}
			rec.embedding = vs.embedder.FlattenEmbeddings(embeddings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, title, content, chunk_index, page, content_type, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)

	for _, rec := range records {
		_, err = tx.Exec(ctx, stmt,
			rec.id,
			rec.source,
			rec.title,
			rec.content,
			rec.index,
			rec.page,
			rec.kind,
			pgvector.NewVector(rec.embedding),
			rec.metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert document: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Query returns the chunks closest to the embedding by cosine distance.
func (vs *VectorStore) Query(ctx context.Context, queryEmbedding []float32, limit int) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT id, source, title, content, page, content_type, embedding <=> $1 AS distance
		FROM %s
		ORDER BY distance
		LIMIT $2`,
		vs.config.TableName)

	return vs.queryChunks(ctx, query, pgvector.NewVector(queryEmbedding), limit)
}

// QueryInDocument restricts the search to sources whose name contains
// the given fragment, case-insensitively.
func (vs *VectorStore) QueryInDocument(ctx context.Context, queryEmbedding []float32, source string, limit int) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT id, source, title, content, page, content_type, embedding <=> $1 AS distance
		FROM %s
		WHERE source ILIKE '%%' || $3 || '%%'
		ORDER BY distance
		LIMIT $2`,
		vs.config.TableName)

	return vs.queryChunks(ctx, query, pgvector.NewVector(queryEmbedding), limit, source)
}

func (vs *VectorStore) queryChunks(ctx context.Context, query string, args ...interface{}) ([]models.ScoredChunk, error) {
	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %v", err)
	}
	defer rows.Close()

	var chunks []models.ScoredChunk
	for rows.Next() {
		var chunk models.ScoredChunk
		var page *int
		err := rows.Scan(
			&chunk.ID,
			&chunk.Source,
			&chunk.Title,
			&chunk.Content,
			&page,
			&chunk.ContentType,
			&chunk.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		if page != nil {
			chunk.Page = *page
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// ListDocuments aggregates the knowledge base per source.
func (vs *VectorStore) ListDocuments(ctx context.Context) ([]models.DocumentInfo, error) {
	query := fmt.Sprintf(`
		SELECT source,
		       COUNT(*) AS total_chunks,
		       COUNT(DISTINCT page) AS page_count,
		       ARRAY_AGG(DISTINCT content_type) AS content_types
		FROM %s
		GROUP BY source
		ORDER BY source`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %v", err)
	}
	defer rows.Close()

	var infos []models.DocumentInfo
	for rows.Next() {
		var info models.DocumentInfo
		if err := rows.Scan(&info.Name, &info.ChunkCount, &info.PageCount, &info.ContentTypes); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		infos = append(infos, info)
	}

	return infos, rows.Err()
}

// DeleteDocument removes all chunks of a source and reports how many
// rows went away.
func (vs *VectorStore) DeleteDocument(ctx context.Context, source string) (int64, error) {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE source = $1", vs.config.TableName)

	tag, err := vs.pool.Exec(ctx, stmt, source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %v", err)
	}

	return tag.RowsAffected(), nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
