package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messageSequence = "messages"

// MongoMessageRepository implements MessageRepository for MongoDB. Numeric ids
// come from a counters collection so ordering ties break the same way as in
// PostgreSQL.
type MongoMessageRepository struct {
	collection *mongo.Collection
	counters   *mongo.Collection
}

// NewMongoMessageRepository creates a new MongoMessageRepository
func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{
		collection: db.Collection("messages"),
		counters:   db.Collection("counters"),
	}
}

// EnsureIndexes creates the (conversation_id, created_at, _id) index used by listing
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	})
	return err
}

func (r *MongoMessageRepository) nextID(ctx context.Context) (uint, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	return uint(counter.Seq), nil
}

// CreateMessage assigns the next id and inserts the message
func (r *MongoMessageRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	message.ID = id
	_, err = r.collection.InsertOne(ctx, message)
	return err
}

func (r *MongoMessageRepository) GetConversationMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	messages := []models.Message{}
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": conversationID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MongoMessageRepository) GetLatestMessages(ctx context.Context, conversationIDs []uint) (map[uint]models.Message, error) {
	latest := make(map[uint]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"conversation_id": bson.M{"$in": conversationIDs}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{"_id": "$conversation_id", "message": bson.M{"$first": "$$ROOT"}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			Message models.Message `bson:"message"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		latest[row.Message.ConversationID] = row.Message
	}
	return latest, cursor.Err()
}
