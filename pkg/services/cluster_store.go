package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sales-insight-api/pkg/models"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// ErrClusterStoreUnavailable is returned while the breaker around Qdrant is open.
var ErrClusterStoreUnavailable = errors.New("cluster store is temporarily unavailable")

// ClusterStore exports clustering snapshots to a Qdrant collection so that
// segments can be looked up by customer and compared across runs.
// Each customer becomes one point whose vector is its standardized spend.
type ClusterStore struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	breaker     *gobreaker.CircuitBreaker
	logger      *slog.Logger

	ensureMu sync.Mutex
	ensured  bool
}

// NewClusterStore dials Qdrant over gRPC. With an API key the connection uses TLS
// and sends the key on every call (Qdrant Cloud); otherwise it is plaintext (local).
func NewClusterStore(qdrantURL, qdrantAPIKey, collection string, logger *slog.Logger) (*ClusterStore, error) {
	if qdrantURL == "" {
		return nil, errors.New("qdrant URL is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var dialOpts []grpc.DialOption
	if qdrantAPIKey != "" {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		authInterceptor := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			ctx = metadata.AppendToOutgoingContext(ctx, "api-key", qdrantAPIKey)
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(authInterceptor))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(qdrantURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("QdrantへのgRPCクライアント作成に失敗しました: %w", err)
	}

	return newClusterStore(qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), collection, logger), nil
}

func newClusterStore(points qdrant.PointsClient, collections qdrant.CollectionsClient, collection string, logger *slog.Logger) *ClusterStore {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "qdrant-cluster-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("⚡ circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &ClusterStore{
		points:      points,
		collections: collections,
		collection:  collection,
		breaker:     breaker,
		logger:      logger,
	}
}

// ensureCollection creates the collection when it does not exist.
// Only a successful check is remembered; failures are retried on the next call.
func (s *ClusterStore) ensureCollection(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}

	res, err := s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("Qdrantのコレクションリスト取得に失敗: %w", err)
	}
	for _, c := range res.GetCollections() {
		if c.GetName() == s.collection {
			s.ensured = true
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     1,
					Distance: qdrant.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("Qdrantのコレクション作成に失敗: %w", err)
	}
	s.logger.Info("コレクションを作成しました", "collection", s.collection)
	s.ensured = true
	return nil
}

// SaveSnapshot upserts one point per customer and returns the run id stamped on them.
func (s *ClusterStore) SaveSnapshot(ctx context.Context, result *models.ClusterResult) (string, error) {
	runID := uuid.New().String()
	points := BuildClusterPoints(runID, time.Now().UTC(), result)
	if len(points) == 0 {
		return runID, nil
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		if err := s.ensureCollection(ctx); err != nil {
			return nil, err
		}
		wait := true
		return s.points.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
			Wait:           &wait,
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrClusterStoreUnavailable
	}
	if err != nil {
		return "", fmt.Errorf("Qdrantへのクラスタ保存に失敗: %w", err)
	}

	s.logger.Info("🧩 cluster snapshot saved", "run_id", runID, "points", len(points), "collection", s.collection)
	return runID, nil
}

// BuildClusterPoints converts a clustering result into Qdrant points.
// Point ids are random UUIDs; the payload carries the run id and the customer's aggregates.
func BuildClusterPoints(runID string, at time.Time, result *models.ClusterResult) []*qdrant.PointStruct {
	if result == nil {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(result.Customers))
	for _, c := range result.Customers {
		payload := map[string]*qdrant.Value{
			"run_id":      {Kind: &qdrant.Value_StringValue{StringValue: runID}},
			"name":        {Kind: &qdrant.Value_StringValue{StringValue: c.Name}},
			"cluster":     {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.Cluster)}},
			"k":           {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(result.K)}},
			"amount":      {Kind: &qdrant.Value_DoubleValue{DoubleValue: c.Amount}},
			"qty":         {Kind: &qdrant.Value_DoubleValue{DoubleValue: c.Qty}},
			"sales_price": {Kind: &qdrant.Value_DoubleValue{DoubleValue: c.SalesPrice}},
			"created_at":  {Kind: &qdrant.Value_StringValue{StringValue: at.Format(time.RFC3339)}},
		}
		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.New().String()},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: []float32{float32(c.ScaledAmount)}},
				},
			},
			Payload: payload,
		})
	}
	return points
}
