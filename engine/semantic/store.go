// Package semantic is the sole gateway to the Qdrant vector store. Every
// other component routes collection lifecycle, point writes, searches, and
// payload patches through VectorStore.
package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload field names.
const (
	FieldContent     = "content"
	FieldContentType = "content_type"
	FieldContentID   = "content_id"
	FieldUserID      = "user_id"
	FieldOrgID       = "organization_id"
	FieldProjectID   = "project_id"
)

// indexedKeywordFields get keyword payload indices for fast tenant filtering.
var indexedKeywordFields = []string{FieldUserID, FieldOrgID, FieldProjectID, FieldContentType, FieldContentID}

// pointsAPI is the subset of the Qdrant points client the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	SetPayload(ctx context.Context, in *pb.SetPayloadPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of the Qdrant collections client the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients creates a VectorStore with injected clients, for tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection and its payload indices if absent.
// Idempotent and safe to call on every request path; callers must not
// proceed to search or ingest when it fails.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}

	wait := true
	for _, field := range indexedKeywordFields {
		ft := pb.FieldType_FieldTypeKeyword
		_, err = v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: v.collection,
			FieldName:      field,
			FieldType:      &ft,
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("semantic: index %s: %w", field, err)
		}
	}
	// Text index over content for lexical matching.
	ft := pb.FieldType_FieldTypeText
	_, err = v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: v.collection,
		FieldName:      FieldContent,
		FieldType:      &ft,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("semantic: index %s: %w", FieldContent, err)
	}
	return nil
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores records into Qdrant. Writes are idempotent per point id;
// the caller batches (engine/rag chunks in groups of 100).
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, val := range r.Payload {
			switch tv := val.(type) {
			case string:
				payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
			case int:
				payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
			case int64:
				payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
			case float64:
				payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
			case bool:
				payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
			default:
				payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
			}
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Search performs filtered k-NN similarity search.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, limit int, filter *Filter) ([]domain.SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         filter.proto(),
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]domain.SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = resultFromPayload(r.GetId().GetUuid(), r.GetScore(), r.GetPayload())
	}
	return results, nil
}

// KeywordSearch retrieves points whose content text-matches the query terms
// within the same scoped filter, ranked by lexical term overlap. The
// mechanism is store-dependent; here it is a full-text payload condition
// plus client-side overlap scoring.
func (v *VectorStore) KeywordSearch(ctx context.Context, query string, limit int, filter *Filter) ([]domain.SearchResult, error) {
	f := filter.Clone().MatchText(FieldContent, query)

	// Over-fetch so local ranking has candidates to choose from.
	fetch := uint32(limit * 4)
	if fetch < 32 {
		fetch = 32
	}
	resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: v.collection,
		Filter:         f.proto(),
		Limit:          &fetch,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: keyword search: %w", err)
	}

	terms := queryTerms(query)
	results := make([]domain.SearchResult, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		r := resultFromPayload(p.GetId().GetUuid(), 0, p.GetPayload())
		r.Similarity = lexicalScore(terms, r.ContentText)
		if r.Similarity > 0 {
			results = append(results, r)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Scroll performs an unordered bulk read. Used for statistics and auditing,
// never on the query-latency path.
func (v *VectorStore) Scroll(ctx context.Context, filter *Filter, limit int) ([]domain.SearchResult, error) {
	l := uint32(limit)
	resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: v.collection,
		Filter:         filter.proto(),
		Limit:          &l,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: scroll: %w", err)
	}
	results := make([]domain.SearchResult, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		results[i] = resultFromPayload(p.GetId().GetUuid(), 0, p.GetPayload())
	}
	return results, nil
}

// Count returns the number of points matching the filter.
func (v *VectorStore) Count(ctx context.Context, filter *Filter) (uint64, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{
		CollectionName: v.collection,
		Filter:         filter.proto(),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: count: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}

// DeleteByFilter removes every point matching the filter. Used for tenant
// erasure and content-type purges.
func (v *VectorStore) DeleteByFilter(ctx context.Context, filter *Filter) error {
	if filter.Empty() {
		return fmt.Errorf("semantic: delete by filter: refusing unfiltered delete")
	}
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter.proto()},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by filter: %w", err)
	}
	return nil
}

// SetPayload patches payload fields on matching points without touching
// their vectors.
func (v *VectorStore) SetPayload(ctx context.Context, payload map[string]string, filter *Filter) error {
	if filter.Empty() {
		return fmt.Errorf("semantic: set payload: refusing unfiltered patch")
	}
	vals := make(map[string]*pb.Value, len(payload))
	for k, s := range payload {
		vals[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
	}
	wait := true
	_, err := v.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Payload:        vals,
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter.proto()},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: set payload: %w", err)
	}
	return nil
}

// resultFromPayload maps a Qdrant payload into a domain SearchResult.
func resultFromPayload(id string, score float32, payload map[string]*pb.Value) domain.SearchResult {
	sr := domain.SearchResult{
		ID:         id,
		Similarity: score,
		Metadata:   make(map[string]string),
	}
	for k, val := range payload {
		s := val.GetStringValue()
		if s == "" {
			if iv, ok := val.GetKind().(*pb.Value_IntegerValue); ok {
				s = fmt.Sprint(iv.IntegerValue)
			}
		}
		switch k {
		case FieldContent:
			sr.ContentText = s
		case FieldContentType:
			sr.ContentType = domain.ContentType(s)
		case FieldContentID:
			sr.ContentID = s
		default:
			sr.Metadata[k] = s
		}
	}
	return sr
}

// queryTerms lowercases and tokenizes a query for lexical scoring.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "?.,!;:'\"()")
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}

// lexicalScore is the fraction of query terms present in the content.
func lexicalScore(terms []string, content string) float32 {
	if len(terms) == 0 {
		return 0
	}
	lc := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lc, t) {
			hits++
		}
	}
	return float32(hits) / float32(len(terms))
}
