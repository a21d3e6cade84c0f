package sqlite

// schema mirrors migrations/000001_legal_journal.up.sql for single-register
// deployments. Timestamps are stored as UTC millisecond ISO-8601 text and
// amounts as two-decimal text, so both compare and round-trip exactly.
const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	sequence_number  INTEGER PRIMARY KEY,
	transaction_type TEXT    NOT NULL CHECK (transaction_type IN ('SALE','REFUND','CORRECTION','CLOSURE','ARCHIVE')),
	order_id         INTEGER,
	amount           TEXT    NOT NULL,
	vat_amount       TEXT    NOT NULL,
	payment_method   TEXT    NOT NULL,
	transaction_data TEXT    NOT NULL DEFAULT '{}',
	previous_hash    TEXT    NOT NULL,
	current_hash     TEXT    NOT NULL,
	timestamp        TEXT    NOT NULL,
	user_id          TEXT,
	register_id      TEXT    NOT NULL,
	created_at       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_entries_timestamp ON journal_entries (timestamp);

CREATE TRIGGER IF NOT EXISTS journal_entries_no_update
BEFORE UPDATE ON journal_entries
BEGIN
	SELECT RAISE(ABORT, 'journal entries are immutable');
END;

CREATE TRIGGER IF NOT EXISTS journal_entries_no_delete
BEFORE DELETE ON journal_entries
BEGIN
	SELECT RAISE(ABORT, 'journal entries are immutable');
END;

CREATE TABLE IF NOT EXISTS closure_bulletins (
	closure_id                TEXT    PRIMARY KEY,
	closure_type              TEXT    NOT NULL CHECK (closure_type IN ('DAILY','WEEKLY','MONTHLY','ANNUAL')),
	period_start              TEXT    NOT NULL,
	period_end                TEXT    NOT NULL,
	total_transactions        INTEGER NOT NULL,
	total_amount              TEXT    NOT NULL,
	total_vat                 TEXT    NOT NULL,
	vat_breakdown             TEXT    NOT NULL,
	payment_methods_breakdown TEXT    NOT NULL,
	tips_total                TEXT    NOT NULL,
	change_total              TEXT    NOT NULL,
	first_sequence            INTEGER NOT NULL,
	last_sequence             INTEGER NOT NULL,
	closure_hash              TEXT    NOT NULL,
	is_closed                 INTEGER NOT NULL,
	closed_at                 TEXT    NOT NULL,
	created_at                TEXT    NOT NULL,
	UNIQUE (closure_type, period_start, period_end)
);

CREATE TABLE IF NOT EXISTS journal_integrity_exceptions (
	sequence_number      INTEGER PRIMARY KEY,
	reason               TEXT    NOT NULL,
	remediation_entry_id INTEGER NOT NULL,
	created_at           TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id             INTEGER PRIMARY KEY,
	total_amount   TEXT,
	total_tax      TEXT,
	tax_amount     TEXT,
	payment_method TEXT NOT NULL DEFAULT '',
	items          TEXT NOT NULL DEFAULT '[]',
	tips           TEXT,
	change_amount  TEXT,
	status         TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at);
`
