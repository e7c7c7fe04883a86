// Package pg provides PostgreSQL connection management with migrations and
// health checking for services built on the channel layer, such as the
// delayed-message dispatcher.
//
// It wraps the pgx driver with connection verification, retry logic, and
// goose-based migrations.
//
// # Configuration
//
// All configuration is handled through the Config struct with environment
// variable mapping:
//
//	cfg := pg.Config{}
//	config.MustLoad(&cfg)
//
// # Usage Example
//
//	ctx := context.Background()
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, delay.Migrations, delay.MigrationsDir); err != nil {
//	    log.Fatal(err)
//	}
//
//	storage, err := delay.NewPostgresStorage(pool)
//
// # Transactions
//
// WithTx and TxFromContext carry a pgx.Tx through a context so storage
// operations can join an enclosing transaction without changing their
// signatures.
package pg
