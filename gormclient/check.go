package gormclient

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/callbacks"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// checkDialector backs a handle with the default callback chain and no
// connection pool. Middlewares are initialized against it before they are
// queued on a disconnected client.
type checkDialector struct {
	name string
}

func (d checkDialector) Name() string { return d.name }

func (d checkDialector) Initialize(db *gorm.DB) error {
	callbacks.RegisterDefaultCallbacks(db, &callbacks.Config{})
	return nil
}

func (checkDialector) Migrator(*gorm.DB) gorm.Migrator { return nil }

func (checkDialector) DataTypeOf(*schema.Field) string { return "" }

func (checkDialector) DefaultValueOf(*schema.Field) clause.Expression {
	return clause.Expr{SQL: "DEFAULT"}
}

func (checkDialector) BindVarTo(writer clause.Writer, _ *gorm.Statement, _ any) {
	writer.WriteByte('?')
}

func (checkDialector) QuoteTo(writer clause.Writer, str string) {
	writer.WriteByte('"')
	writer.WriteString(str)
	writer.WriteByte('"')
}

func (checkDialector) Explain(sql string, _ ...any) string { return sql }

// checkMiddleware initializes mw on a throwaway handle.
func (c *Client) checkMiddleware(mw gorm.Plugin) error {
	db, err := gorm.Open(checkDialector{name: string(c.cfg.Driver)}, &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return fmt.Errorf("prepare middleware check: %w", err)
	}
	return db.Use(mw)
}
