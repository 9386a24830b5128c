package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collUsers    = "users"
	collResults  = "results"
	collRequests = "requests"
	collTariffs  = "tariffs"
	collMessages = "messages"
)

var errNoMongo = errors.New("mongo repository is not initialized")

const reopenTimeout = 5 * time.Second

// MongoRepository stores every entity in its own collection. Approval
// checks the user first, then runs a conditional update on the request and
// the subscription update; a failed subscription write reopens the request.
// No replica set is needed.
type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db}
}

func (r *MongoRepository) coll(name string) (*mongo.Collection, error) {
	if r.db == nil {
		return nil, errNoMongo
	}
	return r.db.Collection(name), nil
}

func (r *MongoRepository) Init(ctx context.Context) error {
	if r.db == nil {
		return errNoMongo
	}

	names, err := r.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("list mongo collections: %w", err)
	}
	exists := make(map[string]struct{}, len(names))
	for _, name := range names {
		exists[name] = struct{}{}
	}
	for _, name := range []string{collUsers, collResults, collRequests, collTariffs, collMessages} {
		if _, ok := exists[name]; ok {
			continue
		}
		if err := r.db.CreateCollection(ctx, name); err != nil {
			return fmt.Errorf("create %s collection: %w", name, err)
		}
	}

	indexes := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "telegram_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collResults: {
			{Keys: bson.D{{Key: "telegram_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collRequests: {
			{Keys: bson.D{{Key: "telegram_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "viewed", Value: 1}}},
		},
		collTariffs: {
			{Keys: bson.D{{Key: "days", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := r.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (r *MongoRepository) UpsertUser(ctx context.Context, user *User) error {
	if user == nil {
		return errors.New("user is nil")
	}
	coll, err := r.coll(collUsers)
	if err != nil {
		return err
	}
	ensureUserDefaults(user)

	filter := bson.M{"telegram_id": user.TelegramID}
	update := bson.M{
		"$set":         bson.M{"username": user.Username, "name": user.Name},
		"$setOnInsert": bson.M{"_id": user.ID, "created_at": user.CreatedAt},
	}
	if _, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return err
	}
	var stored User
	if err := coll.FindOne(ctx, filter).Decode(&stored); err != nil {
		return err
	}
	*user = stored
	return nil
}

func (r *MongoRepository) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	coll, err := r.coll(collUsers)
	if err != nil {
		return nil, err
	}
	var user User
	if err := coll.FindOne(ctx, bson.M{"telegram_id": telegramID}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *MongoRepository) ListUsers(ctx context.Context, page Page) ([]User, int64, error) {
	coll, err := r.coll(collUsers)
	if err != nil {
		return nil, 0, err
	}
	var users []User
	total, err := findPage(ctx, coll, bson.M{}, bson.D{{Key: "created_at", Value: 1}}, page, &users)
	return users, total, err
}

func (r *MongoRepository) AddResult(ctx context.Context, result *Result) error {
	if result == nil {
		return errors.New("result is nil")
	}
	coll, err := r.coll(collResults)
	if err != nil {
		return err
	}
	ensureResultDefaults(result)
	_, err = coll.InsertOne(ctx, result)
	return err
}

func (r *MongoRepository) ListResults(ctx context.Context, telegramID int64, limit int) ([]Result, error) {
	coll, err := r.coll(collResults)
	if err != nil {
		return nil, err
	}
	limit = Page{Limit: limit}.normalize().Limit

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := coll.Find(ctx, bson.M{"telegram_id": telegramID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var results []Result
	if err := cur.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *MongoRepository) CreateRequest(ctx context.Context, req *PaymentRequest) error {
	if req == nil {
		return errors.New("request is nil")
	}
	coll, err := r.coll(collRequests)
	if err != nil {
		return err
	}
	ensureRequestDefaults(req)
	_, err = coll.InsertOne(ctx, req)
	return err
}

func (r *MongoRepository) GetRequest(ctx context.Context, id string) (*PaymentRequest, error) {
	coll, err := r.coll(collRequests)
	if err != nil {
		return nil, err
	}
	var req PaymentRequest
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *MongoRepository) ListRequests(ctx context.Context, telegramID int64, page Page) ([]PaymentRequest, int64, error) {
	coll, err := r.coll(collRequests)
	if err != nil {
		return nil, 0, err
	}
	var reqs []PaymentRequest
	total, err := findPage(ctx, coll, bson.M{"telegram_id": telegramID}, bson.D{{Key: "created_at", Value: -1}}, page, &reqs)
	return reqs, total, err
}

func (r *MongoRepository) ListPendingRequests(ctx context.Context, page Page) ([]PaymentRequest, int64, error) {
	coll, err := r.coll(collRequests)
	if err != nil {
		return nil, 0, err
	}
	var reqs []PaymentRequest
	total, err := findPage(ctx, coll, bson.M{"viewed": false}, bson.D{{Key: "created_at", Value: -1}}, page, &reqs)
	return reqs, total, err
}

func (r *MongoRepository) ResolveRequest(ctx context.Context, id string, approve bool, today time.Time) (*Resolution, error) {
	requests, err := r.coll(collRequests)
	if err != nil {
		return nil, err
	}
	if !approve {
		return markResolved(ctx, requests, id, false)
	}

	pending, err := r.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending.Viewed {
		return nil, ErrAlreadyResolved
	}
	user, err := r.GetUser(ctx, pending.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", pending.TelegramID, err)
	}
	users, err := r.coll(collUsers)
	if err != nil {
		return nil, err
	}

	out, err := markResolved(ctx, requests, id, true)
	if err != nil {
		return nil, err
	}
	end := ExtendSubscription(user.SubscriptionEnd, today, out.Request.Days)
	if _, err := users.UpdateByID(ctx, user.ID, bson.M{"$set": bson.M{"subscription_end": end}}); err != nil {
		return nil, reopenRequest(ctx, requests, id, err)
	}
	user.SubscriptionEnd = &end
	out.User = user
	return out, nil
}

// markResolved flips a pending request to viewed. Only one caller wins.
func markResolved(ctx context.Context, requests *mongo.Collection, id string, approve bool) (*Resolution, error) {
	var out Resolution
	err := requests.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "viewed": false},
		bson.M{"$set": bson.M{"viewed": true, "status": approve}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out.Request)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := requests.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return nil, cerr
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// reopenRequest puts an approved request back in the queue after the
// subscription write failed, so the admin can approve it again.
func reopenRequest(ctx context.Context, requests *mongo.Collection, id string, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reopenTimeout)
	defer cancel()
	_, err := requests.UpdateOne(ctx,
		bson.M{"_id": id, "viewed": true, "status": true},
		bson.M{"$set": bson.M{"viewed": false, "status": false}},
	)
	if err != nil {
		return fmt.Errorf("extend subscription: %w (reopen request %s: %v)", cause, id, err)
	}
	return fmt.Errorf("extend subscription: %w", cause)
}

func (r *MongoRepository) CreateTariff(ctx context.Context, tariff *Tariff) error {
	if tariff == nil {
		return errors.New("tariff is nil")
	}
	coll, err := r.coll(collTariffs)
	if err != nil {
		return err
	}
	ensureTariffDefaults(tariff)
	_, err = coll.InsertOne(ctx, tariff)
	return err
}

func (r *MongoRepository) GetTariff(ctx context.Context, id string) (*Tariff, error) {
	coll, err := r.coll(collTariffs)
	if err != nil {
		return nil, err
	}
	var tariff Tariff
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&tariff); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tariff, nil
}

func (r *MongoRepository) ListTariffs(ctx context.Context) ([]Tariff, error) {
	coll, err := r.coll(collTariffs)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "days", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var tariffs []Tariff
	if err := cur.All(ctx, &tariffs); err != nil {
		return nil, err
	}
	return tariffs, nil
}

func (r *MongoRepository) DeleteTariff(ctx context.Context, id string) error {
	coll, err := r.coll(collTariffs)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) GetMessage(ctx context.Context, tag string) (*Message, error) {
	coll, err := r.coll(collMessages)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := coll.FindOne(ctx, bson.M{"_id": tag}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MongoRepository) PutMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	if msg.Tag == "" {
		return errors.New("message tag is required")
	}
	coll, err := r.coll(collMessages)
	if err != nil {
		return err
	}
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": msg.Tag}, msg, options.Replace().SetUpsert(true))
	return err
}

func findPage(ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D, page Page, out any) (int64, error) {
	page = page.normalize()
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	opts := options.Find().SetSort(sort).SetSkip(int64(page.Offset)).SetLimit(int64(page.Limit))
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return 0, err
	}
	return total, nil
}

var (
	_ Repository = (*SQLRepository)(nil)
	_ Repository = (*MongoRepository)(nil)
)
