package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/monad-ai/monad-core/pkg/models"
)

// MemoryScope narrows a memory search or reinforcement to one dimension of
// the calling context. An empty scope ID searches everything.
type MemoryScope struct {
	SessionID   string
	WorkspaceID string
	AgentID     string
}

// IndexMemory inserts or replaces a memory entry together with its embedding.
func (s *Store) IndexMemory(ctx context.Context, entry *models.MemoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal memory metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memory (id, session_id, workspace_id, agent_id, content, metadata, weight, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, nullString(entry.SessionID), nullString(entry.WorkspaceID), nullString(entry.AgentID),
		entry.Content, string(metadata), entry.Weight, encodeEmbedding(entry.Embedding), entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index memory: %w", err)
	}
	return nil
}

// SaveMemory upserts entry under a preventSimilar(threshold) policy: when
// entry.Embedding is non-empty, a size-1 similarity search at threshold
// runs first; if a different existing memory's cosine similarity exceeds
// threshold, SaveMemory returns that memory's id without writing anything
// (a fail-open dedup so callers never pay for a near-duplicate memory).
// Otherwise it upserts entry via IndexMemory and returns entry.ID.
func (s *Store) SaveMemory(ctx context.Context, entry *models.MemoryEntry, threshold float32) (string, error) {
	if len(entry.Embedding) > 0 {
		existingID, err := s.mostSimilarMemory(ctx, entry.ID, entry.Embedding, threshold)
		if err != nil {
			return "", err
		}
		if existingID != "" {
			return existingID, nil
		}
	}
	if err := s.IndexMemory(ctx, entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// mostSimilarMemory scans every memory with a non-empty embedding (other
// than excludeID) and returns the id of the closest one whose cosine
// similarity to embedding strictly exceeds threshold, or "" if none does.
func (s *Store) mostSimilarMemory(ctx context.Context, excludeID string, embedding []float32, threshold float32) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM memory`)
	if err != nil {
		return "", fmt.Errorf("query memories for similarity: %w", err)
	}
	defer rows.Close()

	var bestID string
	var bestScore float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return "", fmt.Errorf("scan memory for similarity: %w", err)
		}
		if id == excludeID {
			continue
		}
		candidate := decodeEmbedding(blob)
		if len(candidate) == 0 {
			continue
		}
		if score := cosineSimilarity(embedding, candidate); score > threshold && score > bestScore {
			bestScore = score
			bestID = id
		}
	}
	return bestID, rows.Err()
}

// VacuumMemories drops near-duplicate memories: scanning in creation order,
// it keeps the first occurrence of each embedding and deletes any later
// memory whose cosine similarity to an already-kept memory exceeds
// threshold. Memories with no embedding are never deleted (there is
// nothing to compare). Returns the number of memories deleted.
func (s *Store) VacuumMemories(ctx context.Context, threshold float32) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM memory ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return 0, fmt.Errorf("query memories for vacuum: %w", err)
	}
	type candidate struct {
		id        string
		embedding []float32
	}
	var all []candidate
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan memory for vacuum: %w", err)
		}
		all = append(all, candidate{id: id, embedding: decodeEmbedding(blob)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var kept []candidate
	var toDelete []string
	for _, c := range all {
		if len(c.embedding) == 0 {
			kept = append(kept, c)
			continue
		}
		duplicate := false
		for _, k := range kept {
			if len(k.embedding) == 0 {
				continue
			}
			if cosineSimilarity(c.embedding, k.embedding) > threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			toDelete = append(toDelete, c.id)
		} else {
			kept = append(kept, c)
		}
	}

	if len(toDelete) == 0 {
		return 0, nil
	}
	if err := s.DeleteMemories(ctx, toDelete); err != nil {
		return 0, err
	}
	return len(toDelete), nil
}

// SearchMemoriesByVector performs a brute-force cosine similarity search over
// every memory in scope. There is no vec0 extension loaded (this driver is
// pure Go, no CGO), so the comparison happens in application code.
func (s *Store) SearchMemoriesByVector(ctx context.Context, queryEmbedding []float32, scope MemoryScope, limit int, threshold float32) ([]*models.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, session_id, workspace_id, agent_id, content, metadata, weight, embedding, created_at, updated_at FROM memory WHERE 1=1`
	var args []any
	if scope.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, scope.SessionID)
	}
	if scope.WorkspaceID != "" {
		query += " AND workspace_id = ?"
		args = append(args, scope.WorkspaceID)
	}
	if scope.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, scope.AgentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		entry, embeddingBlob, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		embedding := decodeEmbedding(embeddingBlob)
		score := cosineSimilarity(queryEmbedding, embedding)
		if threshold > 0 && score < threshold {
			continue
		}
		results = append(results, &models.SearchResult{Entry: entry, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortByScoreDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchMemoriesByTags returns memories whose metadata tags intersect the
// given set, used alongside vector search by the RAG pipeline's tag pass.
func (s *Store) SearchMemoriesByTags(ctx context.Context, tags []string, scope MemoryScope, limit int) ([]*models.MemoryEntry, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, session_id, workspace_id, agent_id, content, metadata, weight, embedding, created_at, updated_at FROM memory WHERE 1=1`
	var args []any
	if scope.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, scope.SessionID)
	}
	if scope.WorkspaceID != "" {
		query += " AND workspace_id = ?"
		args = append(args, scope.WorkspaceID)
	}
	if scope.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, scope.AgentID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}

	var out []*models.MemoryEntry
	for rows.Next() {
		entry, embeddingBlob, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		for _, tag := range entry.Metadata.Tags {
			if want[tag] {
				entry.Embedding = decodeEmbedding(embeddingBlob)
				out = append(out, entry)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// ReinforceMemories nudges each evaluated memory's embedding toward the mean
// of the query vectors that retrieved it, scaled by that memory's
// helpfulness score (range [-1,1]) and the learning rate eta:
//
//	target = normalize(mean(queryVectors))
//	V'     = normalize(V + score * eta * (target - V))
//
// Memories with an empty embedding, or whose embedding dimensionality
// doesn't match the query vectors, are skipped rather than erroring, since a
// batch reinforcement call spans memories found through different embedding
// generations.
func (s *Store) ReinforceMemories(ctx context.Context, evaluations map[string]float32, queryVectors [][]float32, eta float32) error {
	if len(evaluations) == 0 || len(queryVectors) == 0 {
		return nil
	}
	target := normalize(meanVector(queryVectors))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for memoryID, score := range evaluations {
		row := tx.QueryRowContext(ctx, `SELECT weight, embedding FROM memory WHERE id = ?`, memoryID)
		var weight float32
		var embeddingBlob []byte
		if err := row.Scan(&weight, &embeddingBlob); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return fmt.Errorf("scan memory %s for reinforcement: %w", memoryID, err)
		}

		embedding := decodeEmbedding(embeddingBlob)
		if len(embedding) == 0 || len(embedding) != len(target) {
			continue
		}
		updated := make([]float32, len(embedding))
		for i := range embedding {
			updated[i] = embedding[i] + score*eta*(target[i]-embedding[i])
		}
		updated = normalize(updated)
		weight += score * eta

		if _, err := tx.ExecContext(ctx, `UPDATE memory SET weight = ?, embedding = ?, updated_at = ? WHERE id = ?`,
			weight, encodeEmbedding(updated), time.Now(), memoryID); err != nil {
			return fmt.Errorf("reinforce memory %s: %w", memoryID, err)
		}
	}
	return tx.Commit()
}

func meanVector(vectors [][]float32) []float32 {
	dim := len(vectors[0])
	mean := make([]float32, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			mean[i] += x
		}
		n++
	}
	if n == 0 {
		return mean
	}
	for i := range mean {
		mean[i] /= float32(n)
	}
	return mean
}

// DeleteMemories removes memory entries by id.
func (s *Store) DeleteMemories(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM memory WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete memory %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func scanMemoryRow(rows *sql.Rows) (*models.MemoryEntry, []byte, error) {
	var entry models.MemoryEntry
	var sessionID, workspaceID, agentID sql.NullString
	var metadataJSON string
	var embeddingBlob []byte

	err := rows.Scan(&entry.ID, &sessionID, &workspaceID, &agentID, &entry.Content, &metadataJSON, &entry.Weight, &embeddingBlob, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("scan memory: %w", err)
	}
	entry.SessionID = sessionID.String
	entry.WorkspaceID = workspaceID.String
	entry.AgentID = agentID.String
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
			return nil, nil, fmt.Errorf("unmarshal memory metadata: %w", err)
		}
	}
	return &entry, embeddingBlob, nil
}

// encodeEmbedding converts []float32 to bytes for BLOB storage using raw
// IEEE-754 bit patterns, four bytes per component.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (sqrt32(normA) * sqrt32(normB))
}

func normalize(v []float32) []float32 {
	var normSq float32
	for _, x := range v {
		normSq += x * x
	}
	if normSq == 0 {
		return v
	}
	n := sqrt32(normSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func sortByScoreDesc(results []*models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
