package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/kart-cart/internal/domain/apperr"
	"github.com/xenking/kart-cart/internal/domain/product"
)

type productDocument struct {
	ID        string               `bson:"_id"`
	Name      string               `bson:"name"`
	Price     primitive.Decimal128 `bson:"price"`
	CreatedAt time.Time            `bson:"created_at"`
}

func (d productDocument) product() (product.Product, error) {
	price, err := decimal.NewFromString(d.Price.String())
	if err != nil {
		return product.Product{}, fmt.Errorf("decoding price of %q: %w", d.ID, err)
	}
	return product.Product{
		ID:        d.ID,
		Name:      d.Name,
		Price:     price,
		CreatedAt: d.CreatedAt,
	}, nil
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by a MongoDB
// collection keyed by product ID. Prices are stored as Decimal128.
type ProductRepository struct {
	collection *mongo.Collection
}

// NewProductRepository returns a ProductRepository over the products
// collection of db.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{collection: db.Collection(productsCollection)}
}

// newProductDocument converts p for storage. Prices that do not fit a
// Decimal128 are rejected as caller input.
func newProductDocument(p product.Product) (productDocument, error) {
	if err := product.ValidatePrice(p.Price); err != nil {
		return productDocument{}, err
	}
	price, err := primitive.ParseDecimal128(p.Price.String())
	if err != nil {
		return productDocument{}, apperr.Validation("price", "price is out of range")
	}
	return productDocument{
		ID:        p.ID,
		Name:      p.Name,
		Price:     price,
		CreatedAt: p.CreatedAt,
	}, nil
}

// Create inserts a new product document.
func (r *ProductRepository) Create(ctx context.Context, p product.Product) error {
	doc, err := newProductDocument(p)
	if err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var doc productDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	p, err := doc.product()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, nil)
}

// List returns all products in creation order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{}, opts)
}

func (r *ProductRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]product.Product, error) {
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cursor, err := r.collection.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, fmt.Errorf("finding products: %w", err)
	}

	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding products: %w", err)
	}

	products := make([]product.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.product()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}
