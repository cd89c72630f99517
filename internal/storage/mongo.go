package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatline/backend/internal/config"
	"chatline/backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// reaction toggles retry this many times when a concurrent writer changed
// the list between read and write.
const maxToggleAttempts = 32

// MongoStore is the document-database driver.
type MongoStore struct {
	client    *mongo.Client
	users     *mongo.Collection
	messages  *mongo.Collection
	opTimeout time.Duration
}

// OpenMongo connects with the configured pool and timeouts and ensures the
// indexes exist.
func OpenMongo(ctx context.Context, cfg config.StoreConfig) (*MongoStore, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	}
	if cfg.SocketTimeout > 0 {
		opts.SetSocketTimeout(cfg.SocketTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:    client,
		users:     db.Collection("users"),
		messages:  db.Collection("messages"),
		opTimeout: cfg.OpTimeout,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("pair_created"),
		},
		{
			Keys:    bson.D{{Key: "receiverId", Value: 1}, {Key: "isSeen", Value: 1}},
			Options: options.Index().SetName("receiver_seen"),
		},
	})
	if err != nil {
		return fmt.Errorf("create messages indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, s.opTimeout)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if err := u.BeforeCreate(nil); err != nil {
		return err
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var u models.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, noDocuments(err)
	}
	return &u, nil
}

func (s *MongoStore) UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var u models.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"profilePic": url, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return nil, noDocuments(err)
	}
	return &u, nil
}

func (s *MongoStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	res, err := s.users.UpdateByID(ctx, id, bson.M{"$set": bson.M{"lastSeen": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListContacts joins every other user with their latest message with the
// viewer in one aggregation.
func (s *MongoStore) ListContacts(ctx context.Context, viewerID string) ([]models.Contact, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$ne": viewerID}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from": "messages",
			"let":  bson.M{"peer": "$_id"},
			"pipeline": mongo.Pipeline{
				{{Key: "$match", Value: bson.M{"$expr": bson.M{"$or": bson.A{
					bson.M{"$and": bson.A{
						bson.M{"$eq": bson.A{"$senderId", viewerID}},
						bson.M{"$eq": bson.A{"$receiverId", "$$peer"}},
					}},
					bson.M{"$and": bson.A{
						bson.M{"$eq": bson.A{"$senderId", "$$peer"}},
						bson.M{"$eq": bson.A{"$receiverId", viewerID}},
					}},
				}}}}},
				{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
				{{Key: "$limit", Value: 1}},
				{{Key: "$project", Value: bson.M{"text": 1, "image": 1, "senderId": 1, "createdAt": 1}}},
			},
			"as": "lastMessage",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$lastMessage", "preserveNullAndEmptyArrays": true}}},
	}

	cur, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	contacts := []models.Contact{}
	if err := cur.All(ctx, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (s *MongoStore) CreateMessage(ctx context.Context, m *models.Message) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if err := m.BeforeCreate(nil); err != nil {
		return err
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := s.messages.InsertOne(ctx, m)
	return err
}

func (s *MongoStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var m models.Message
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, noDocuments(err)
	}
	return &m, nil
}

func (s *MongoStore) GetMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findMessages(ctx, bson.M{"_id": bson.M{"$in": ids}}, nil)
}

func (s *MongoStore) ListConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	return s.findMessages(ctx, pairFilter(a, b),
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
}

func (s *MongoStore) findMessages(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Message, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cur, err := s.messages.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *MongoStore) MarkSeen(ctx context.Context, senderID, receiverID string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"senderId": senderID, "receiverId": receiverID, "isSeen": false},
		bson.M{"$set": bson.M{"isSeen": true, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) UpdateText(ctx context.Context, id, senderID, text string) (*models.Message, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var m models.Message
	err := s.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "senderId": senderID},
		bson.M{"$set": bson.M{"text": text, "isEdited": true, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, noDocuments(err)
	}
	return &m, nil
}

// ToggleReaction is a compare-and-swap on the reaction list: the write only
// lands if the list is still the one the toggle was computed from.
func (s *MongoStore) ToggleReaction(ctx context.Context, id, userID, emoji string) (*models.Message, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		var m models.Message
		if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
			return nil, noDocuments(err)
		}
		current := m.Reactions
		if current == nil {
			current = []models.Reaction{}
		}
		next := models.ToggleReaction(current, userID, emoji)
		now := time.Now().UTC()

		res, err := s.messages.UpdateOne(ctx,
			bson.M{"_id": id, "reactions": current},
			bson.M{"$set": bson.M{"reactions": next, "updatedAt": now}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			m.Reactions = next
			m.UpdatedAt = now
			return &m, nil
		}
	}
	return nil, fmt.Errorf("toggle reaction on %s: too much contention", id)
}

func (s *MongoStore) DeleteMessage(ctx context.Context, id string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	res, err := s.messages.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteConversation(ctx context.Context, a, b string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	res, err := s.messages.DeleteMany(ctx, pairFilter(a, b))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"senderId": a, "receiverId": b},
		bson.M{"senderId": b, "receiverId": a},
	}}
}

func noDocuments(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
