// Package facestore owns all Qdrant operations for the face collection.
// The store handle is safe for concurrent use by the ingestion worker and
// the search service; Qdrant's gRPC clients carry their own synchronization.
package facestore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload field keys. The gallery filter and the search service's dedup
// both key off these.
const (
	keyImageID   = "image_id"
	keyGalleryID = "gallery_id"
	keySourceURL = "file_url"
	keyFaceIndex = "face_index"
)

// PointsAPI abstracts the Qdrant point operations used by VectorStore.
// The generated pb.PointsClient satisfies this interface.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI abstracts the Qdrant collection operations used by
// VectorStore. The generated pb.CollectionsClient satisfies this interface.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of the face collection in Qdrant.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
	dims        int
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("facestore: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients creates a VectorStore from pre-built clients. Used in tests.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection with the given vector dimension
// if it doesn't exist. Must be called before either the write or the read
// path starts; a failure here is fatal for the process.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("facestore: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			v.dims = dims
			return nil
		}
	}
	if err := v.create(ctx, dims); err != nil {
		return err
	}
	v.dims = dims
	return nil
}

// RecreateCollection drops the collection if present and creates it fresh.
// All indexed faces are lost; used only by out-of-band reindex tooling.
func (v *VectorStore) RecreateCollection(ctx context.Context, dims int) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("facestore: delete collection %s: %w", v.collection, err)
	}
	if err := v.create(ctx, dims); err != nil {
		return err
	}
	v.dims = dims
	return nil
}

func (v *VectorStore) create(ctx context.Context, dims int) error {
	d := uint64(dims)
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
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
		return fmt.Errorf("facestore: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores face records in one batched call. Re-upserting the same
// point ids overwrites in place, so deterministic ids make re-processing
// idempotent.
func (v *VectorStore) Upsert(ctx context.Context, records []FaceRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		if v.dims > 0 && len(r.Vector) != v.dims {
			return fmt.Errorf("facestore: point %s: vector dim %d, collection dim %d", r.ID, len(r.Vector), v.dims)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: encodePayload(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("facestore: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Search performs k-NN similarity search, optionally filtered to one
// gallery. Results come back ranked by descending score.
func (v *VectorStore) Search(ctx context.Context, vector []float32, limit int, galleryID string) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if galleryID != "" {
		req.Filter = &pb.Filter{Must: []*pb.Condition{fieldMatch(keyGalleryID, galleryID)}}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("facestore: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{
			ID:      r.GetId().GetUuid(),
			Score:   r.GetScore(),
			Payload: decodePayload(r.GetPayload()),
		}
	}
	return hits, nil
}

func encodePayload(p FacePayload) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		keyImageID:   {Kind: &pb.Value_StringValue{StringValue: p.ImageID}},
		keySourceURL: {Kind: &pb.Value_StringValue{StringValue: p.SourceURL}},
		keyFaceIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.FaceIndex)}},
	}
	if p.GalleryID != "" {
		payload[keyGalleryID] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: p.GalleryID}}
	}
	return payload
}

func decodePayload(m map[string]*pb.Value) FacePayload {
	return FacePayload{
		ImageID:   m[keyImageID].GetStringValue(),
		GalleryID: m[keyGalleryID].GetStringValue(),
		SourceURL: m[keySourceURL].GetStringValue(),
		FaceIndex: int(m[keyFaceIndex].GetIntegerValue()),
	}
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
