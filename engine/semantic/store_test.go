package semantic

import (
	"context"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

type fakePoints struct {
	upserts     []*pb.UpsertPoints
	searches    []*pb.SearchPoints
	scrolls     []*pb.ScrollPoints
	deletes     []*pb.DeletePoints
	setPayloads []*pb.SetPayloadPoints
	counts      []*pb.CountPoints
	indices     []*pb.CreateFieldIndexCollection

	searchResp *pb.SearchResponse
	scrollResp *pb.ScrollResponse
	countResp  *pb.CountResponse
}

func (f *fakePoints) Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.searches = append(f.searches, in)
	if f.searchResp != nil {
		return f.searchResp, nil
	}
	return &pb.SearchResponse{}, nil
}

func (f *fakePoints) Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error) {
	f.scrolls = append(f.scrolls, in)
	if f.scrollResp != nil {
		return f.scrollResp, nil
	}
	return &pb.ScrollResponse{}, nil
}

func (f *fakePoints) Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.deletes = append(f.deletes, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) SetPayload(ctx context.Context, in *pb.SetPayloadPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.setPayloads = append(f.setPayloads, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error) {
	f.counts = append(f.counts, in)
	if f.countResp != nil {
		return f.countResp, nil
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: 0}}, nil
}

func (f *fakePoints) CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.indices = append(f.indices, in)
	return &pb.PointsOperationResponse{}, nil
}

type fakeCollections struct {
	existing []string
	creates  []*pb.CreateCollection
	deletes  []*pb.DeleteCollection
}

func (f *fakeCollections) List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	descs := make([]*pb.CollectionDescription, len(f.existing))
	for i, name := range f.existing {
		descs[i] = &pb.CollectionDescription{Name: name}
	}
	return &pb.ListCollectionsResponse{Collections: descs}, nil
}

func (f *fakeCollections) Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.creates = append(f.creates, in)
	f.existing = append(f.existing, in.GetCollectionName())
	return &pb.CollectionOperationResponse{}, nil
}

func (f *fakeCollections) Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.deletes = append(f.deletes, in)
	return &pb.CollectionOperationResponse{}, nil
}

func scoredPoint(id string, score float32, payload map[string]*pb.Value) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		Score:   score,
		Payload: payload,
	}
}

func retrievedPoint(id string, payload map[string]*pb.Value) *pb.RetrievedPoint {
	return &pb.RetrievedPoint{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		Payload: payload,
	}
}

func strVal(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func TestEnsureCollectionCreatesOnce(t *testing.T) {
	points := &fakePoints{}
	cols := &fakeCollections{}
	store := NewWithClients(points, cols, "minute")

	if err := store.EnsureCollection(context.Background(), 1536); err != nil {
		t.Fatal(err)
	}
	if len(cols.creates) != 1 {
		t.Fatalf("expected one create, got %d", len(cols.creates))
	}
	params := cols.creates[0].GetVectorsConfig().GetParams()
	if params.GetSize() != 1536 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("unexpected vector params: size=%d distance=%v", params.GetSize(), params.GetDistance())
	}
	// Keyword indices for each tenant field plus a text index on content.
	if len(points.indices) != len(indexedKeywordFields)+1 {
		t.Fatalf("expected %d field indices, got %d", len(indexedKeywordFields)+1, len(points.indices))
	}
	last := points.indices[len(points.indices)-1]
	if last.GetFieldName() != FieldContent || last.GetFieldType() != pb.FieldType_FieldTypeText {
		t.Errorf("expected text index on content, got %s %v", last.GetFieldName(), last.GetFieldType())
	}

	// Second call sees the collection and does nothing.
	if err := store.EnsureCollection(context.Background(), 1536); err != nil {
		t.Fatal(err)
	}
	if len(cols.creates) != 1 {
		t.Errorf("expected ensure to be idempotent, got %d creates", len(cols.creates))
	}
}

func TestUpsertPayloadConversion(t *testing.T) {
	points := &fakePoints{}
	store := NewWithClients(points, &fakeCollections{}, "minute")

	err := store.Upsert(context.Background(), []VectorRecord{{
		ID:        "11111111-1111-1111-1111-111111111111",
		Embedding: []float32{0.1, 0.2},
		Payload: map[string]any{
			"content":     "hello",
			"chunk_index": 3,
			"score":       0.5,
			"archived":    true,
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(points.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(points.upserts))
	}
	req := points.upserts[0]
	if req.GetWait() != true {
		t.Error("upserts must wait for durability")
	}
	payload := req.GetPoints()[0].GetPayload()
	if payload["content"].GetStringValue() != "hello" {
		t.Error("string payload lost")
	}
	if payload["chunk_index"].GetIntegerValue() != 3 {
		t.Error("int payload lost")
	}
	if payload["score"].GetDoubleValue() != 0.5 {
		t.Error("float payload lost")
	}
	if payload["archived"].GetBoolValue() != true {
		t.Error("bool payload lost")
	}
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	points := &fakePoints{}
	store := NewWithClients(points, &fakeCollections{}, "minute")
	if err := store.Upsert(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(points.upserts) != 0 {
		t.Error("empty upsert should not hit the store")
	}
}

func TestSearchMapsPayload(t *testing.T) {
	points := &fakePoints{
		searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
			scoredPoint("id-1", 0.87, map[string]*pb.Value{
				"content":      strVal("quarterly numbers"),
				"content_type": strVal("summary"),
				"content_id":   strVal("rec-9"),
				"title":        strVal("Q4 Review"),
			}),
		}},
	}
	store := NewWithClients(points, &fakeCollections{}, "minute")

	filter := NewFilter().Match(FieldUserID, "u1")
	results, err := store.Search(context.Background(), []float32{0.1}, 5, filter)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	r := results[0]
	if r.ID != "id-1" || r.Similarity != 0.87 {
		t.Errorf("id/score mapping wrong: %+v", r)
	}
	if r.ContentText != "quarterly numbers" || string(r.ContentType) != "summary" || r.ContentID != "rec-9" {
		t.Errorf("payload mapping wrong: %+v", r)
	}
	if r.Metadata["title"] != "Q4 Review" {
		t.Errorf("display metadata lost: %+v", r.Metadata)
	}
	if _, ok := r.Metadata["content"]; ok {
		t.Error("content must not be duplicated in metadata")
	}

	if points.searches[0].GetFilter() == nil {
		t.Error("scoped filter must reach the store")
	}
}

func TestKeywordSearchRanksByOverlap(t *testing.T) {
	points := &fakePoints{
		scrollResp: &pb.ScrollResponse{Result: []*pb.RetrievedPoint{
			retrievedPoint("a", map[string]*pb.Value{"content": strVal("revenue grew strongly")}),
			retrievedPoint("b", map[string]*pb.Value{"content": strVal("quarterly revenue grew 12%")}),
			retrievedPoint("c", map[string]*pb.Value{"content": strVal("unrelated meeting notes")}),
		}},
	}
	store := NewWithClients(points, &fakeCollections{}, "minute")

	results, err := store.KeywordSearch(context.Background(), "quarterly revenue grew", 10, NewFilter())
	if err != nil {
		t.Fatal(err)
	}
	// c matches no terms and is dropped; b matches all three and outranks a.
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "b" || results[1].ID != "a" {
		t.Errorf("expected overlap ranking b,a got %s,%s", results[0].ID, results[1].ID)
	}
	if results[0].Similarity != 1.0 {
		t.Errorf("full overlap should score 1.0, got %f", results[0].Similarity)
	}

	// The scroll condition adds a text match without mutating the caller filter.
	scroll := points.scrolls[0]
	if scroll.GetFilter() == nil || len(scroll.GetFilter().GetMust()) != 1 {
		t.Error("expected a single text-match condition")
	}
}

func TestKeywordSearchDoesNotMutateFilter(t *testing.T) {
	points := &fakePoints{}
	store := NewWithClients(points, &fakeCollections{}, "minute")

	filter := NewFilter().Match(FieldUserID, "u1")
	if _, err := store.KeywordSearch(context.Background(), "anything", 5, filter); err != nil {
		t.Fatal(err)
	}
	if len(filter.Conditions()) != 1 {
		t.Errorf("caller filter grew to %d conditions", len(filter.Conditions()))
	}
}

func TestDeleteByFilterRefusesEmpty(t *testing.T) {
	points := &fakePoints{}
	store := NewWithClients(points, &fakeCollections{}, "minute")

	if err := store.DeleteByFilter(context.Background(), NewFilter()); err == nil {
		t.Fatal("unfiltered delete must be refused")
	}
	if len(points.deletes) != 0 {
		t.Error("refused delete must not reach the store")
	}

	f := NewFilter().Match(FieldUserID, "u1")
	if err := store.DeleteByFilter(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if len(points.deletes) != 1 {
		t.Error("scoped delete should reach the store")
	}
}

func TestSetPayloadRefusesEmpty(t *testing.T) {
	points := &fakePoints{}
	store := NewWithClients(points, &fakeCollections{}, "minute")

	err := store.SetPayload(context.Background(), map[string]string{"project_id": "p2"}, NewFilter())
	if err == nil {
		t.Fatal("unfiltered payload patch must be refused")
	}

	f := NewFilter().Match(FieldContentID, "c1")
	if err := store.SetPayload(context.Background(), map[string]string{"project_id": "p2"}, f); err != nil {
		t.Fatal(err)
	}
	patch := points.setPayloads[0]
	if patch.GetPayload()["project_id"].GetStringValue() != "p2" {
		t.Error("payload patch value lost")
	}
}

func TestCountExact(t *testing.T) {
	points := &fakePoints{countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 42}}}
	store := NewWithClients(points, &fakeCollections{}, "minute")

	n, err := store.Count(context.Background(), NewFilter().Match(FieldOrgID, "org1"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
	if !points.counts[0].GetExact() {
		t.Error("counts must be exact")
	}
}

func TestQueryTerms(t *testing.T) {
	terms := queryTerms("What drove Q4 revenue growth?")
	want := []string{"what", "drove", "q4", "revenue", "growth"}
	if len(terms) != len(want) {
		t.Fatalf("expected %v, got %v", want, terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("term %d: expected %s, got %s", i, want[i], terms[i])
		}
	}
}
