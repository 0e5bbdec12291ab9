package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/forever-store/api/internal/domain"
	pfirestore "github.com/forever-store/api/internal/platform/firestore"
)

const productsCollection = "products"

// ProductStockRepository reads and writes the sizes array of catalog product documents.
// Catalog fields owned by the product admin are never rewritten.
type ProductStockRepository struct {
	base  *pfirestore.BaseRepository[productStockDocument]
	clock func() time.Time
}

// NewProductStockRepository constructs a Firestore-backed product stock repository.
func NewProductStockRepository(provider *pfirestore.Provider) (*ProductStockRepository, error) {
	if provider == nil {
		return nil, errors.New("product stock repository requires firestore provider")
	}
	return &ProductStockRepository{
		base:  pfirestore.NewBaseRepository[productStockDocument](provider, productsCollection),
		clock: time.Now,
	}, nil
}

func (r *ProductStockRepository) FindStock(ctx context.Context, productIDs []string) (map[string]domain.ProductStock, error) {
	docs, err := r.base.GetAll(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.ProductStock, len(docs))
	for _, doc := range docs {
		out[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return out, nil
}

func (r *ProductStockRepository) SaveStock(ctx context.Context, product domain.ProductStock) error {
	sizes := make([]sizeStockDocument, 0, len(product.Sizes))
	for _, size := range product.Sizes {
		sizes = append(sizes, sizeStockDocument(size))
	}
	return r.base.Update(ctx, product.ID, []firestore.Update{
		{Path: "sizes", Value: sizes},
		{Path: "updatedAt", Value: r.clock().UTC()},
	})
}

type productStockDocument struct {
	Name  string              `firestore:"name"`
	Sizes []sizeStockDocument `firestore:"sizes"`
}

type sizeStockDocument struct {
	Size  string `firestore:"size"`
	Stock int    `firestore:"stock"`
}

func (d productStockDocument) toDomain(id string) domain.ProductStock {
	sizes := make([]domain.SizeStock, 0, len(d.Sizes))
	for _, size := range d.Sizes {
		sizes = append(sizes, domain.SizeStock(size))
	}
	return domain.ProductStock{ID: id, Name: d.Name, Sizes: sizes}
}
