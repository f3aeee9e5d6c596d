// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adaptive-crawler/pkg/vectorstore"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Store implements vectorstore.Store for Qdrant over gRPC.
type Store struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
	conn        *grpc.ClientConn
	config      *vectorstore.Config
}

// NewStore connects to a Qdrant server.
// address: Qdrant gRPC address (e.g., "localhost:6334").
func NewStore(address string, config *vectorstore.Config) (*Store, error) {
	if address == "" {
		return nil, errors.New("Qdrant address is required")
	}

	if config == nil {
		config = &vectorstore.Config{
			Type:              "qdrant",
			Address:           address,
			TimeoutSeconds:    30,
			DefaultCollection: "crawl_knowledge",
		}
	}

	// Note: in production, use proper TLS credentials.
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	return &Store{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		conn:        conn,
		config:      config,
	}, nil
}

// EnsureCollection creates the collection with cosine distance if missing.
func (s *Store) EnsureCollection(ctx context.Context, name string, vectorDim int) error {
	if name == "" {
		name = s.config.DefaultCollection
	}
	if vectorDim <= 0 {
		return errors.New("vector dimension must be positive")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(vectorDim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return nil
}

// Insert upserts documents into the store.
func (s *Store) Insert(ctx context.Context, req *vectorstore.InsertRequest) (*vectorstore.InsertResponse, error) {
	if req == nil {
		return nil, errors.New("insert request cannot be nil")
	}
	if len(req.Documents) == 0 {
		return nil, errors.New("no documents to insert")
	}

	collectionName := req.CollectionName
	if collectionName == "" {
		collectionName = s.config.DefaultCollection
	}

	points := make([]*pb.PointStruct, 0, len(req.Documents))
	insertedIDs := make([]string, 0, len(req.Documents))

	for _, doc := range req.Documents {
		id := doc.ID
		if id == "" {
			id = uuid.New().String()
		}

		payload := map[string]*pb.Value{
			"content": {Kind: &pb.Value_StringValue{StringValue: doc.Content}},
		}
		for k, v := range doc.Metadata {
			payload[k] = convertToQdrantValue(v)
		}

		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: id},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: doc.Embedding},
				},
			},
			Payload: payload,
		})
		insertedIDs = append(insertedIDs, id)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collectionName,
		Points:         points,
	}); err != nil {
		return nil, fmt.Errorf("failed to insert documents: %w", err)
	}

	return &vectorstore.InsertResponse{InsertedIDs: insertedIDs}, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.TimeoutSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(s.config.TimeoutSeconds)*time.Second)
}

// convertToQdrantValue maps metadata values onto Qdrant payload values.
func convertToQdrantValue(v interface{}) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}
