package index

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

const qdrantUpsertBatch = 256

type QdrantConfig struct {
	Host   string
	Port   int
	Prefix string
}

// QdrantStore writes each build into a fresh collection and then moves the
// document's alias onto it in one UpdateAliases call. Queries go through
// the alias, so they always hit a complete collection.
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	prefix      string
	log         *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewQdrantStore(cfg QdrantConfig, log *zap.Logger) (*QdrantStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		prefix:      cfg.Prefix,
		log:         log,
		locks:       map[string]*sync.Mutex{},
	}, nil
}

// writer serializes builds of one document within this process.
func (s *QdrantStore) writer(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

// aliasName maps a document name to a valid, collision-free alias.
func (s *QdrantStore) aliasName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("%s%s_%08x", s.prefix, b.String(), h.Sum32())
}

func (s *QdrantStore) Build(ctx context.Context, name string, chunks []rag.Chunk, vectors [][]float32) error {
	dim, err := checkBuild(name, chunks, vectors)
	if err != nil {
		return err
	}

	l := s.writer(name)
	l.Lock()
	defer l.Unlock()

	alias := s.aliasName(name)
	collection := alias + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}

	if err := s.upsert(ctx, collection, name, chunks, vectors); err != nil {
		s.dropCollection(ctx, collection)
		return err
	}

	previous, err := s.swapAlias(ctx, alias, collection)
	if err != nil {
		s.dropCollection(ctx, collection)
		return err
	}

	if previous != "" && previous != collection {
		s.dropCollection(ctx, previous)
	}

	s.log.Debug("index written",
		zap.String("file", name),
		zap.String("collection", collection),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

func (s *QdrantStore) upsert(ctx context.Context, collection, name string, chunks []rag.Chunk, vectors [][]float32) error {
	wait := true
	for start := 0; start < len(chunks); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, len(chunks))

		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			c := chunks[i]
			points = append(points, &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(i)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}}},
				Payload: map[string]*pb.Value{
					"document": {Kind: &pb.Value_StringValue{StringValue: name}},
					"text":     {Kind: &pb.Value_StringValue{StringValue: c.Text}},
					"page":     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Page)}},
					"index":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Index)}},
				},
			})
		}

		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upsert points into %s: %w", collection, err)
		}
	}
	return nil
}

// swapAlias points alias at collection and returns the collection it
// pointed at before, or "". If the alias moved between the lookup and the
// update, the swap is retried once against the new target.
func (s *QdrantStore) swapAlias(ctx context.Context, alias, collection string) (string, error) {
	previous, err := s.resolve(ctx, alias)
	if err != nil {
		return "", err
	}
	_, err = s.collections.UpdateAliases(ctx, aliasActions(alias, collection, previous))
	if err == nil {
		return previous, nil
	}

	latest, rerr := s.resolve(ctx, alias)
	if rerr != nil || latest == previous {
		return "", fmt.Errorf("swap alias %s: %w", alias, err)
	}
	if _, err := s.collections.UpdateAliases(ctx, aliasActions(alias, collection, latest)); err != nil {
		return "", fmt.Errorf("swap alias %s: %w", alias, err)
	}
	return latest, nil
}

func aliasActions(alias, collection, previous string) *pb.ChangeAliases {
	actions := make([]*pb.AliasOperations, 0, 2)
	if previous != "" {
		actions = append(actions, &pb.AliasOperations{
			Action: &pb.AliasOperations_DeleteAlias{DeleteAlias: &pb.DeleteAlias{AliasName: alias}},
		})
	}
	actions = append(actions, &pb.AliasOperations{
		Action: &pb.AliasOperations_CreateAlias{CreateAlias: &pb.CreateAlias{
			CollectionName: collection,
			AliasName:      alias,
		}},
	})
	return &pb.ChangeAliases{Actions: actions}
}

// resolve returns the collection behind alias, or "" if the alias is unset.
func (s *QdrantStore) resolve(ctx context.Context, alias string) (string, error) {
	resp, err := s.collections.ListAliases(ctx, &pb.ListAliasesRequest{})
	if err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range resp.GetAliases() {
		if a.GetAliasName() == alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (s *QdrantStore) dropCollection(ctx context.Context, collection string) {
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection}); err != nil {
		s.log.Warn("drop collection failed", zap.String("collection", collection), zap.Error(err))
	}
}

func (s *QdrantStore) Query(ctx context.Context, name string, vector []float32, k int) ([]rag.ScoredChunk, error) {
	if err := rag.ValidateName(name); err != nil {
		return nil, err
	}

	alias := s.aliasName(name)
	current, err := s.resolve(ctx, alias)
	if err != nil {
		return nil, err
	}
	if current == "" {
		return nil, &rag.NotFoundError{File: name}
	}
	if k <= 0 {
		return []rag.ScoredChunk{}, nil
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: alias,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", alias, err)
	}

	hits := make([]rag.ScoredChunk, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		hits = append(hits, rag.ScoredChunk{
			Chunk: rag.Chunk{
				Text:  p.GetPayload()["text"].GetStringValue(),
				Page:  int(p.GetPayload()["page"].GetIntegerValue()),
				Index: int(p.GetPayload()["index"].GetIntegerValue()),
			},
			// Euclid scores are plain distances
			Distance: p.GetScore() * p.GetScore(),
		})
	}
	sortHits(hits)
	return hits, nil
}

var _ rag.IndexStore = (*QdrantStore)(nil)
