package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrSKUExists is returned when creating a product whose SKU collides
// case-insensitively with an existing row.
var ErrSKUExists = errors.New("sku already exists")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BatchUpsertProducts inserts or updates products in one atomic statement,
// keyed on lower(sku). Existing rows get name/description/active overwritten
// and updated_at bumped. Re-applying an identical batch changes nothing
// beyond the first application; this is the idempotence the task queue's
// at-least-once delivery relies on.
//
// Callers must not pass two entries colliding case-insensitively in the same
// batch; ON CONFLICT cannot update the same row twice in one statement.
func (s *Store) BatchUpsertProducts(ctx context.Context, products []models.ProductUpsert) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(products))
	args := make([]interface{}, 0, len(products)*4)
	for i, p := range products {
		n := i * 4
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4))
		args = append(args, p.SKU, p.Name, p.Description, p.Active)
	}

	query := fmt.Sprintf(`
		INSERT INTO products (sku, name, description, active)
		VALUES %s
		ON CONFLICT (lower(sku)) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			updated_at = NOW()`, strings.Join(placeholders, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to batch upsert products: %w", err)
	}
	return res.RowsAffected()
}

// DeleteProductBatch deletes up to limit products ordered by id. Ordering by
// the stable primary key guarantees forward progress across batches; deleting
// already-absent rows is a no-op, so redelivered delete tasks are safe.
func (s *Store) DeleteProductBatch(ctx context.Context, limit int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM products
		 WHERE id IN (SELECT id FROM products ORDER BY id LIMIT $1)`, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete product batch: %w", err)
	}
	return res.RowsAffected()
}

// CountProducts returns the total number of product rows.
func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM products")
	return count, err
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductBySKU retrieves a product by SKU (case-insensitive).
func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM products WHERE lower(sku) = lower($1)", sku)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ProductFilter holds optional list filters; text filters match partially and
// case-insensitively.
type ProductFilter struct {
	SKU         string
	Name        string
	Description string
	Active      *bool
}

// ListProducts retrieves a filtered, paginated product page plus the total count.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter, page, pageSize int) ([]models.Product, int64, error) {
	where := []string{"TRUE"}
	args := []interface{}{}

	addLike := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, "%"+value+"%")
		where = append(where, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
	}
	addLike("sku", filter.SKU)
	addLike("name", filter.Name)
	addLike("description", filter.Description)
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products WHERE %s", whereClause)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, pageSize, (page-1)*pageSize)
	listQuery := fmt.Sprintf(
		"SELECT * FROM products WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		whereClause, len(args)-1, len(args))

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, listQuery, args...); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// CreateProduct inserts a new product through the batch upsert primitive.
// A case-insensitive SKU collision is rejected with ErrSKUExists rather than
// silently overwriting.
func (s *Store) CreateProduct(ctx context.Context, p models.ProductUpsert) (*models.Product, error) {
	existing, err := s.GetProductBySKU(ctx, p.SKU)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSKUExists
	}

	if _, err := s.BatchUpsertProducts(ctx, []models.ProductUpsert{p}); err != nil {
		return nil, err
	}
	return s.GetProductBySKU(ctx, p.SKU)
}

// UpdateProduct overwrites a product's fields by id. When the SKU is
// unchanged the write goes through the upsert primitive; an SKU change is a
// guarded rename that must not collide with another row.
func (s *Store) UpdateProduct(ctx context.Context, id int64, p models.ProductUpsert) (*models.Product, error) {
	current, err := s.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(current.SKU, p.SKU) {
		other, err := s.GetProductBySKU(ctx, p.SKU)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, ErrSKUExists
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE products SET sku = $1, name = $2, description = $3, active = $4, updated_at = NOW()
			 WHERE id = $5`,
			p.SKU, p.Name, p.Description, p.Active, id)
		if err != nil {
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
		return s.GetProductByID(ctx, id)
	}

	if _, err := s.BatchUpsertProducts(ctx, []models.ProductUpsert{p}); err != nil {
		return nil, err
	}
	return s.GetProductByID(ctx, id)
}

// DeleteProduct removes a single product by id.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
