package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/ports"
)

const (
	defaultIndexPrefix = "docqa"
	indexNamespace     = "idx"
	clearBatchSize     = 500
)

// DocumentIndex implements ports.DocumentIndex on plain Redis data types.
// Similarity is computed client side over every stored embedding.
//
// Every key lives under "<prefix>:idx", so Clear never touches other data
// sharing the prefix, such as the token revocation list. Key layout (p is
// "<prefix>:idx"):
//
//	p:chunk:<id>       hash   text, embedding, metadata
//	p:chunks           set    all chunk ids
//	p:file:<name>      set    chunk ids of one file name
//	p:filedocs:<name>  set    document ids of one file name
//	p:doc:<id>         hash   document summary
//	p:docs             zset   document ids scored by upload time
type DocumentIndex struct {
	client   *redis.Client
	embedder ports.Embedder
	prefix   string
	now      func() time.Time
}

var _ ports.DocumentIndex = (*DocumentIndex)(nil)

// NewDocumentIndex creates a DocumentIndex. An empty prefix selects "docqa".
func NewDocumentIndex(client *redis.Client, embedder ports.Embedder, prefix string) *DocumentIndex {
	if prefix == "" {
		prefix = defaultIndexPrefix
	}
	return &DocumentIndex{client: client, embedder: embedder, prefix: prefix + ":" + indexNamespace, now: time.Now}
}

func (x *DocumentIndex) Add(ctx context.Context, chunks []domain.Chunk, ids []string) ([]string, error) {
	if len(chunks) != len(ids) {
		return nil, fmt.Errorf("index add: %d chunks but %d ids", len(chunks), len(ids))
	}
	if len(chunks) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := x.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("index add: embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("index add: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	uploadedAt := x.now().UTC()
	_, err = x.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, c := range chunks {
			emb, err := json.Marshal(vectors[i])
			if err != nil {
				return err
			}
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return err
			}
			fileName, _ := c.Metadata[domain.MetaFileName].(string)
			docID, _ := c.Metadata[domain.MetaDocumentID].(string)

			pipe.HSet(ctx, x.key("chunk", ids[i]), "text", c.Text, "embedding", emb, "metadata", meta)
			pipe.SAdd(ctx, x.key("chunks"), ids[i])
			pipe.SAdd(ctx, x.key("file", fileName), ids[i])
			if docID == "" {
				continue
			}
			pipe.HSet(ctx, x.key("doc", docID),
				"document_id", docID,
				"file_name", fileName,
				"file_type", metaString(c.Metadata, domain.MetaFileType),
				"total_pages", metaInt(c.Metadata, domain.MetaTotalPages),
				"uploaded_by", metaInt(c.Metadata, domain.MetaUploadedBy),
				"uploaded_at", uploadedAt.Format(time.RFC3339Nano),
			)
			pipe.HIncrBy(ctx, x.key("doc", docID), "chunks", 1)
			pipe.ZAddNX(ctx, x.key("docs"), redis.Z{Score: float64(uploadedAt.UnixNano()), Member: docID})
			pipe.SAdd(ctx, x.key("filedocs", fileName), docID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index add: %w", err)
	}
	return append([]string(nil), ids...), nil
}

func (x *DocumentIndex) Query(ctx context.Context, text string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	query, err := x.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("index query: embed: %w", err)
	}

	ids, err := x.client.SMembers(ctx, x.key("chunks")).Result()
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}
	if len(ids) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = x.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, x.key("chunk", id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}

	candidates := make([]domain.ScoredChunk, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		var emb []float32
		if err := json.Unmarshal([]byte(fields["embedding"]), &emb); err != nil {
			return nil, fmt.Errorf("index query: chunk %s: decode embedding: %w", ids[i], err)
		}
		meta := map[string]any{}
		if raw := fields["metadata"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return nil, fmt.Errorf("index query: chunk %s: decode metadata: %w", ids[i], err)
			}
		}
		candidates = append(candidates, domain.ScoredChunk{
			Chunk: domain.Chunk{ID: ids[i], Text: fields["text"], Metadata: meta},
			Score: cosineSimilarity(query, emb),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (x *DocumentIndex) Delete(ctx context.Context, fileName string) (int, error) {
	ids, err := x.client.SMembers(ctx, x.key("file", fileName)).Result()
	if err != nil {
		return 0, fmt.Errorf("index delete: %w", err)
	}
	if len(ids) == 0 {
		return 0, domain.ErrDocumentNotFound
	}
	docIDs, err := x.client.SMembers(ctx, x.key("filedocs", fileName)).Result()
	if err != nil {
		return 0, fmt.Errorf("index delete: %w", err)
	}

	_, err = x.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members := make([]any, len(ids))
		for i, id := range ids {
			pipe.Del(ctx, x.key("chunk", id))
			members[i] = id
		}
		pipe.SRem(ctx, x.key("chunks"), members...)
		pipe.Del(ctx, x.key("file", fileName), x.key("filedocs", fileName))
		for _, d := range docIDs {
			pipe.Del(ctx, x.key("doc", d))
			pipe.ZRem(ctx, x.key("docs"), d)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("index delete: %w", err)
	}
	return len(ids), nil
}

func (x *DocumentIndex) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	docIDs, err := x.client.ZRange(ctx, x.key("docs"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("index list: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(docIDs))
	_, err = x.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range docIDs {
			cmds[i] = pipe.HGetAll(ctx, x.key("doc", id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index list: %w", err)
	}

	out := make([]domain.DocumentSummary, 0, len(docIDs))
	for _, cmd := range cmds {
		f := cmd.Val()
		if len(f) == 0 {
			continue
		}
		s := domain.DocumentSummary{
			DocumentID: f["document_id"],
			FileName:   f["file_name"],
			FileType:   f["file_type"],
		}
		s.TotalPages, _ = strconv.Atoi(f["total_pages"])
		s.Chunks, _ = strconv.Atoi(f["chunks"])
		s.UploadedBy, _ = strconv.ParseInt(f["uploaded_by"], 10, 64)
		s.UploadedAt, _ = time.Parse(time.RFC3339Nano, f["uploaded_at"])
		out = append(out, s)
	}
	return out, nil
}

// Clear removes every key in the index namespace.
func (x *DocumentIndex) Clear(ctx context.Context) error {
	iter := x.client.Scan(ctx, 0, x.prefix+":*", clearBatchSize).Iterator()
	batch := make([]string, 0, clearBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearBatchSize {
			if err := x.client.Unlink(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("index clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("index clear: %w", err)
	}
	if len(batch) > 0 {
		if err := x.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("index clear: %w", err)
		}
	}
	return nil
}

func (x *DocumentIndex) key(parts ...string) string {
	k := x.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func metaInt(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
