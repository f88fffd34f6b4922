package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/kart-cart/internal/domain/cart"
)

type lineDocument struct {
	ProductID string    `bson:"_id"`
	Quantity  int64     `bson:"quantity"`
	CreatedAt time.Time `bson:"created_at"`
}

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by a MongoDB collection with one
// document per product. Increments are a single upserting
// findAndModify, so concurrent adds for the same product never lose an
// update.
type CartStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewCartStore returns a CartStore over the cart collection of db.
func NewCartStore(db *mongo.Database) *CartStore {
	return &CartStore{
		collection: db.Collection(cartCollection),
		now:        time.Now,
	}
}

// UpsertIncrement creates the line or adds delta to its quantity.
func (s *CartStore) UpsertIncrement(ctx context.Context, productID string, delta int64) (cart.Upsert, error) {
	if err := cart.ValidateDelta(delta); err != nil {
		return cart.Upsert{}, err
	}

	filter := bson.M{"_id": productID}
	update := bson.M{
		"$inc":         bson.M{"quantity": delta},
		"$setOnInsert": bson.M{"created_at": s.now().UTC()},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc lineDocument
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced on insert; the loser retries as an update.
		err = s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	}
	if err != nil {
		return cart.Upsert{}, fmt.Errorf("upserting cart line %q: %w", productID, err)
	}

	// Stored quantities are at least 1, so an existing line always ends
	// above delta.
	return cart.Upsert{
		Created:  doc.Quantity == delta,
		Quantity: doc.Quantity,
	}, nil
}

// Remove deletes the line for productID.
func (s *CartStore) Remove(ctx context.Context, productID string) (bool, error) {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": productID})
	if err != nil {
		return false, fmt.Errorf("deleting cart line %q: %w", productID, err)
	}
	return res.DeletedCount > 0, nil
}

// List returns every line ordered by creation time.
func (s *CartStore) List(ctx context.Context) ([]cart.Line, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing cart lines: %w", err)
	}

	var docs []lineDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("listing cart lines: %w", err)
	}

	lines := make([]cart.Line, 0, len(docs))
	for _, doc := range docs {
		lines = append(lines, cart.Line{
			ProductID: doc.ProductID,
			Quantity:  doc.Quantity,
			CreatedAt: doc.CreatedAt,
		})
	}
	return lines, nil
}
