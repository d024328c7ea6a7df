package gormclient

import (
	"context"

	"gorm.io/gorm"
)

// ModelAccessor gives scoped access to one declared model.
type ModelAccessor struct {
	name   string
	schema any
	client *Client
}

// Name returns the declared model name.
func (m *ModelAccessor) Name() string { return m.name }

// Schema returns the gorm model the accessor is scoped to.
func (m *ModelAccessor) Schema() any { return m.schema }

// Query returns a handle scoped to the model.
func (m *ModelAccessor) Query(ctx context.Context) (*gorm.DB, error) {
	db, err := m.client.DB(ctx)
	if err != nil {
		return nil, err
	}
	return db.Model(m.schema), nil
}

// Create inserts value, which must be a pointer to the model or a slice of them.
func (m *ModelAccessor) Create(ctx context.Context, value any) error {
	db, err := m.client.DB(ctx)
	if err != nil {
		return err
	}
	return db.Create(value).Error
}

// Find loads the records matching conds into dest.
func (m *ModelAccessor) Find(ctx context.Context, dest any, conds ...any) error {
	q, err := m.Query(ctx)
	if err != nil {
		return err
	}
	return q.Find(dest, conds...).Error
}

// Count returns the number of rows of the model.
func (m *ModelAccessor) Count(ctx context.Context) (int64, error) {
	q, err := m.Query(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
