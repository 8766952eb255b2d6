package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ucengine/uce/internal/parser"
)

// QdrantStore implements Store against a Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore connects to Qdrant and ensures the collection exists
// with the given vector size.
func NewQdrantStore(ctx context.Context, host, collection string, vectorSize int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	s := &QdrantStore{client: client, collection: collection}
	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Add implements Store.
func (s *QdrantStore) Add(ctx context.Context, items []Embedded) error {
	if len(items) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(items))
	for i, it := range items {
		c := it.Chunk
		payload := map[string]interface{}{
			"file":           c.File,
			"start_line":     c.StartLine,
			"end_line":       c.EndLine,
			"content":        c.Content,
			"primary_symbol": c.PrimarySymbol,
			"language":       c.Language,
			"kind":           c.Kind,
			"token_count":    c.TokenCount,
			"is_test":        c.IsTest,
			"has_secrets":    c.HasSecrets,
			"weight":         c.Weight,
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(c.ID),
			Vectors: qdrant.NewVectors(it.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	return err
}

// Search implements Store. Qdrant cosine scores already live in
// [0,1]-ish range for normalized vectors; they pass through as-is.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]Result, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	results := make([]Result, len(points))
	for i, p := range points {
		results[i] = Result{
			ID:    p.Id.GetUuid(),
			Score: float64(p.Score),
			Chunk: payloadToChunk(p.Id.GetUuid(), p.Payload),
		}
	}
	return results, nil
}

// Delete implements Store.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	return err
}

// DeleteByFile implements Store.
func (s *QdrantStore) DeleteByFile(ctx context.Context, path string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(
			buildFilter(map[string]string{"file": path}),
		),
	})
	return err
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Clear implements Store.
func (s *QdrantStore) Clear(ctx context.Context) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{}),
	})
	return err
}

func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	var must []*qdrant.Condition
	for key, value := range filter {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: must}
}

func payloadToChunk(id string, payload map[string]*qdrant.Value) parser.Chunk {
	getString := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(key string) int {
		if v, ok := payload[key]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}
	getBool := func(key string) bool {
		if v, ok := payload[key]; ok {
			return v.GetBoolValue()
		}
		return false
	}
	getFloat := func(key string) float64 {
		if v, ok := payload[key]; ok {
			return v.GetDoubleValue()
		}
		return 0
	}

	return parser.Chunk{
		ID:            id,
		File:          getString("file"),
		StartLine:     getInt("start_line"),
		EndLine:       getInt("end_line"),
		Content:       getString("content"),
		PrimarySymbol: getString("primary_symbol"),
		Language:      getString("language"),
		Kind:          getString("kind"),
		TokenCount:    getInt("token_count"),
		IsTest:        getBool("is_test"),
		HasSecrets:    getBool("has_secrets"),
		Weight:        getFloat("weight"),
	}
}
