package semantic

import (
	"context"
	"fmt"

	"github.com/briefly-ai/briefly/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// pointsAPI is the slice of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsAPI is the slice of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Qdrant is an Index backed by a Qdrant collection with cosine distance.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

var _ Index = (*Qdrant)(nil)

// NewQdrant connects to Qdrant at the given gRPC address.
func NewQdrant(addr, collection string) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewQdrantWithClients wires explicit clients, for tests.
func NewQdrantWithClients(points pointsAPI, collections collectionsAPI, collection string) *Qdrant {
	return &Qdrant{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// Ensure creates the collection if it does not exist.
func (q *Qdrant) Ensure(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert stores the article's vector. Article IDs are UUIDs, so they double
// as point IDs and re-upserting replaces the previous vector.
func (q *Qdrant) Upsert(ctx context.Context, articleID string, vec domain.Vector) error {
	wait := true
	point := &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: articleID}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}},
		},
		Payload: map[string]*pb.Value{
			"article_id": {Kind: &pb.Value_StringValue{StringValue: articleID}},
		},
	}
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert point %s: %w", articleID, err)
	}
	return nil
}

// Delete removes the article's vector.
func (q *Qdrant) Delete(ctx context.Context, articleID string) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: articleID}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete point %s: %w", articleID, err)
	}
	return nil
}

// Search returns the nearest articles by cosine similarity.
func (q *Qdrant) Search(ctx context.Context, vec domain.Vector, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		id := r.GetPayload()["article_id"].GetStringValue()
		if id == "" {
			id = r.GetId().GetUuid()
		}
		hits = append(hits, Hit{ArticleID: id, Score: r.GetScore()})
	}
	return hits, nil
}

// Count reports the number of points in the collection.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: count points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}
