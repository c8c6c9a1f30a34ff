package repository

import (
	"context"
	"strings"

	"github.com/rangefront/armory/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetByUPC(ctx context.Context, db *gorm.DB, upc string) (*domain.Product, error) {
	upc = strings.TrimSpace(upc)
	if upc == "" {
		return nil, nil
	}
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM products WHERE upc = ? LIMIT 1`,
		upc,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}

func (r *repo) GetByMPNOrSKU(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM products WHERE mpn = ? OR sku = ? LIMIT 1`,
		id,
		id,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}
