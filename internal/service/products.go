package service

import (
	"context"
	"strings"

	"github.com/boddenberg/burger-place-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Products
// ============================================================

// ListProducts returns the menu, newest first.
func (s *Store) ListProducts(ctx context.Context) []domain.Product {
	var out []domain.Product
	s.view(ctx, func(st *domain.State) {
		out = append([]domain.Product{}, st.Products...)
	})
	return out
}

// GetProduct returns the product with id.
func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var found *domain.Product
	s.view(ctx, func(st *domain.State) {
		if i := productIndex(st, id); i >= 0 {
			p := st.Products[i]
			found = &p
		}
	})
	if found == nil {
		return nil, &domain.ErrNotFound{Resource: "product", ID: formatID(id)}
	}
	return found, nil
}

// CreateProduct validates the input, assigns the next id and prepends the product.
func (s *Store) CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Store.CreateProduct")
	defer span.End()

	in = normalizeProductInput(in)
	if err := s.checkProduct(in); err != nil {
		return nil, err
	}

	var created domain.Product
	err := s.update(ctx, "create_product", func(st *domain.State) (bool, error) {
		created = domain.Product{
			ID:          st.Sequences.Product,
			Category:    in.Category,
			Name:        in.Name,
			Price:       in.Price,
			Description: in.Description,
			ImageData:   in.ImageData,
		}
		st.Sequences.Product++
		st.Products = append([]domain.Product{created}, st.Products...)
		st.Activities = s.feed.Append(st.Activities, domain.ActivityNew, "Product created", "Product: "+created.Name)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrMutation("product", "create")
	s.logger.Info("product created", zap.Int64("product_id", created.ID), zap.String("name", created.Name))
	return &created, nil
}

// UpdateProduct edits a product in place. Orders keep their snapshots.
// A missing id is a no-op and returns nil.
func (s *Store) UpdateProduct(ctx context.Context, id int64, in domain.ProductInput) (*domain.Product, error) {
	in = normalizeProductInput(in)
	if err := s.checkProduct(in); err != nil {
		return nil, err
	}

	var updated *domain.Product
	err := s.update(ctx, "update_product", func(st *domain.State) (bool, error) {
		i := productIndex(st, id)
		if i < 0 {
			return false, nil
		}
		p := &st.Products[i]
		p.Category = in.Category
		p.Name = in.Name
		p.Price = in.Price
		p.Description = in.Description
		p.ImageData = in.ImageData
		cp := *p
		updated = &cp
		st.Activities = s.feed.Append(st.Activities, domain.ActivityNew, "Product updated", "Product: "+p.Name)
		return true, nil
	})
	if err != nil || updated == nil {
		return nil, err
	}

	s.metrics.IncrMutation("product", "update")
	s.logger.Info("product updated", zap.Int64("product_id", id))
	return updated, nil
}

// DeleteProduct removes the product if present. Historical orders are not
// affected because their lines carry snapshots.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	removed := false
	err := s.update(ctx, "delete_product", func(st *domain.State) (bool, error) {
		i := productIndex(st, id)
		if i < 0 {
			return false, nil
		}
		name := st.Products[i].Name
		st.Products = append(st.Products[:i:i], st.Products[i+1:]...)
		st.Activities = s.feed.Append(st.Activities, domain.ActivityNew, "Product removed", "Product: "+name)
		removed = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if removed {
		s.metrics.IncrMutation("product", "delete")
		s.logger.Info("product deleted", zap.Int64("product_id", id))
	}
	return nil
}

func (s *Store) checkProduct(in domain.ProductInput) error {
	if err := s.checkStruct(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return &domain.ErrValidation{Field: "price", Message: "must not be negative"}
	}
	return nil
}

func normalizeProductInput(in domain.ProductInput) domain.ProductInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func productIndex(st *domain.State, id int64) int {
	for i := range st.Products {
		if st.Products[i].ID == id {
			return i
		}
	}
	return -1
}
