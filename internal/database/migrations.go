package database

const schema = `
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uid INTEGER NOT NULL,
    name TEXT,
    subject TEXT,
    owner_id TEXT,
    sub_owner_id TEXT,
    image BLOB,
    analysis TEXT NOT NULL DEFAULT '',
    backend_tags TEXT NOT NULL DEFAULT '',
    email_date DATETIME NOT NULL,
    added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(uid, name)
);

CREATE TABLE IF NOT EXISTS watermarks (
    mailbox TEXT PRIMARY KEY,
    messages_count INTEGER NOT NULL DEFAULT 0,
    total_size INTEGER NOT NULL DEFAULT 0,
    last_uid INTEGER,
    last_seen DATETIME,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alert_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '',
    remove_keywords TEXT,
    owner_id TEXT,
    sub_owner_id TEXT,
    send_to TEXT NOT NULL DEFAULT '',
    text_to TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS owner_mappings (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    filter TEXT NOT NULL,
    key TEXT,
    sub_filter TEXT,
    value TEXT,
    sub_value TEXT
);

CREATE INDEX IF NOT EXISTS idx_images_email_date ON images(email_date);
CREATE INDEX IF NOT EXISTS idx_images_owner ON images(owner_id);
CREATE INDEX IF NOT EXISTS idx_alert_rules_owner ON alert_rules(owner_id);
CREATE INDEX IF NOT EXISTS idx_owner_mappings_filter ON owner_mappings(filter);
`
