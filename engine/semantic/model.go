package semantic

import pb "github.com/qdrant/go-client/qdrant"

// VectorRecord represents a single point to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // content, content_type, content_id, tenant + display keys
}

// Filter is a conjunctive (must) list of payload conditions.
type Filter struct {
	must []*pb.Condition
}

// NewFilter creates an empty filter.
func NewFilter() *Filter { return &Filter{} }

// Match adds an exact keyword match condition.
func (f *Filter) Match(key, value string) *Filter {
	f.must = append(f.must, fieldMatch(key, value))
	return f
}

// MatchAny adds an any-of keyword condition.
func (f *Filter) MatchAny(key string, values []string) *Filter {
	f.must = append(f.must, &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keywords{
						Keywords: &pb.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	})
	return f
}

// MatchText adds a full-text match condition against an indexed text field.
func (f *Filter) MatchText(key, text string) *Filter {
	f.must = append(f.must, &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Text{Text: text},
				},
			},
		},
	})
	return f
}

// Empty reports whether the filter has no conditions.
func (f *Filter) Empty() bool { return f == nil || len(f.must) == 0 }

// Conditions exposes the conjunctive condition list. Fakes standing in for
// the store use it to apply filters to in-memory payloads.
func (f *Filter) Conditions() []*pb.Condition {
	if f == nil {
		return nil
	}
	return f.must
}

// Clone returns a copy that can be extended without mutating the original.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return NewFilter()
	}
	c := &Filter{must: make([]*pb.Condition, len(f.must))}
	copy(c.must, f.must)
	return c
}

func (f *Filter) proto() *pb.Filter {
	if f.Empty() {
		return nil
	}
	return &pb.Filter{Must: f.must}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
