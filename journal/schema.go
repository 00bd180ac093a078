package journal

// Decimals are stored as TEXT to keep them exact. Timestamps are stored
// as INTEGER unix nanoseconds (UTC) so comparisons and ordering do not
// depend on the driver's time formatting.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	kind TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	price TEXT,
	stop_price TEXT,
	status TEXT NOT NULL,
	filled_quantity INTEGER NOT NULL DEFAULT 0 CHECK (filled_quantity >= 0 AND filled_quantity <= quantity),
	average_fill_price TEXT,
	time_in_force TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER,
	closed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL UNIQUE REFERENCES orders(id),
	owner_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	price TEXT NOT NULL,
	commission TEXT NOT NULL,
	executed_at INTEGER NOT NULL,
	settlement_date INTEGER
);

CREATE INDEX IF NOT EXISTS idx_trades_owner ON trades(owner_id, symbol, executed_at);

CREATE TABLE IF NOT EXISTS positions (
	owner_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	average_cost TEXT NOT NULL,
	market_value TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (owner_id, symbol)
);
`
