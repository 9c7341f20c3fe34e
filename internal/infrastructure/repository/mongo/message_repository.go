package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxUpdateRetries = 3
)

type messageDocument struct {
	ID             string                    `bson:"_id"`
	SourceType     string                    `bson:"source_type"`
	RawInput       string                    `bson:"raw_input"`
	NormalizedText string                    `bson:"normalized_text"`
	Extraction     *domain.MedicalExtraction `bson:"extraction,omitempty"`
	Status         string                    `bson:"status"`
	ErrorDetail    string                    `bson:"error_detail"`
	CreatedAt      time.Time                 `bson:"created_at"`
	UpdatedAt      time.Time                 `bson:"updated_at"`
}

func toDocument(msg *domain.Message) messageDocument {
	return messageDocument{
		ID:             msg.ID,
		SourceType:     string(msg.SourceType),
		RawInput:       msg.RawInput,
		NormalizedText: msg.NormalizedText,
		Extraction:     msg.Extraction,
		Status:         string(msg.Status),
		ErrorDetail:    msg.ErrorDetail,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
}

func (d messageDocument) toDomain() *domain.Message {
	return &domain.Message{
		ID:             d.ID,
		SourceType:     domain.SourceType(d.SourceType),
		RawInput:       d.RawInput,
		NormalizedText: d.NormalizedText,
		Extraction:     d.Extraction,
		Status:         domain.MessageStatus(d.Status),
		ErrorDetail:    d.ErrorDetail,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MessageRepository stores one document per message, keyed by _id.
type MessageRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMessageRepository(coll *mongo.Collection) *MessageRepository {
	return &MessageRepository{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Connect dials the deployment and waits for a primary with exponential backoff.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.RetryNotify(
		func() error { return client.Ping(ctx, readpref.Primary()) },
		backoff.WithContext(policy, ctx),
		func(err error, wait time.Duration) {
			slog.Warn("db_ping_retry", "driver", "mongo", "backoff_ms", wait.Milliseconds(), "error", err)
		},
	)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (string, error) {
	doc := toDocument(msg)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now()
	}
	doc.UpdatedAt = doc.CreatedAt
	doc.Status = string(domain.StatusReceived)
	doc.Extraction = nil
	doc.ErrorDetail = ""

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", domain.WrapError(domain.ErrDuplicateID, "create message", fmt.Errorf("id %s already exists", doc.ID))
		}
		return "", fmt.Errorf("insert message: %w", err)
	}
	return doc.ID, nil
}

// Update is a compare-and-swap on (status, updated_at) so a concurrent writer
// cannot move a message out of a terminal status between read and write.
func (r *MessageRepository) Update(ctx context.Context, id string, upd domain.MessageUpdate) error {
	for attempt := 1; attempt <= maxUpdateRetries; attempt++ {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		prevStatus, prevUpdatedAt := current.Status, current.UpdatedAt

		if err := current.Apply(upd, r.now()); err != nil {
			return err
		}

		filter := bson.D{
			{Key: "_id", Value: id},
			{Key: "status", Value: string(prevStatus)},
			{Key: "updated_at", Value: prevUpdatedAt},
		}
		res, err := r.coll.ReplaceOne(ctx, filter, toDocument(current))
		if err != nil {
			return fmt.Errorf("replace message: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
		slog.Warn("message_update_conflict", "message_id", id, "attempt", attempt)
	}
	return fmt.Errorf("update message %s: concurrent modification", id)
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	var doc messageDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.WrapError(domain.ErrNotFound, "get message", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MessageRepository) List(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	query := bson.D{}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "status", Value: string(filter.Status)})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	out := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		out = append(out, *doc.toDomain())
	}
	return out, nil
}

func (r *MessageRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}
