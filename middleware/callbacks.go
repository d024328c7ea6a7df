// Package middleware provides stock data client middlewares implemented as gorm plugins.
package middleware

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type registerFunc func(name string, fn func(*gorm.DB)) error

type hookPoint struct {
	op     string
	before registerFunc
	after  registerFunc
}

// hookPoints lists the gorm processors wrapped by the stock middlewares.
func hookPoints(db *gorm.DB) []hookPoint {
	cb := db.Callback()
	return []hookPoint{
		{
			op:     "create",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Create().Before("gorm:create").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Create().After("gorm:create").Register(n, fn) },
		},
		{
			op:     "query",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Query().Before("gorm:query").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Query().After("gorm:query").Register(n, fn) },
		},
		{
			op:     "update",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Update().Before("gorm:update").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Update().After("gorm:update").Register(n, fn) },
		},
		{
			op:     "delete",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Delete().Before("gorm:delete").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Delete().After("gorm:delete").Register(n, fn) },
		},
		{
			op:     "row",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Row().Before("gorm:row").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Row().After("gorm:row").Register(n, fn) },
		},
		{
			op:     "raw",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Raw().Before("gorm:raw").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Raw().After("gorm:raw").Register(n, fn) },
		},
	}
}

// registerAround installs a start-time recorder before, and observe after, every hook point.
func registerAround(db *gorm.DB, prefix string, observe func(op string, db *gorm.DB, elapsed time.Duration)) error {
	startKey := prefix + ":start"

	for _, hp := range hookPoints(db) {
		op := hp.op
		if err := hp.before(fmt.Sprintf("%s:before_%s", prefix, op), func(db *gorm.DB) {
			db.InstanceSet(startKey, time.Now())
		}); err != nil {
			return fmt.Errorf("register before_%s: %w", op, err)
		}

		if err := hp.after(fmt.Sprintf("%s:after_%s", prefix, op), func(db *gorm.DB) {
			var elapsed time.Duration
			if v, ok := db.InstanceGet(startKey); ok {
				if start, ok := v.(time.Time); ok {
					elapsed = time.Since(start)
				}
			}
			observe(op, db, elapsed)
		}); err != nil {
			return fmt.Errorf("register after_%s: %w", op, err)
		}
	}
	return nil
}
