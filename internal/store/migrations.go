package store

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    label TEXT NOT NULL,
    username TEXT,
    password TEXT,
    cookie TEXT,
    base_url TEXT,
    mirror_urls TEXT,
    user_agent TEXT,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS checkin_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    day TEXT NOT NULL,
    outcome TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(account_id, day)
);

CREATE INDEX IF NOT EXISTS idx_checkin_records_account ON checkin_records(account_id, day);

CREATE TABLE IF NOT EXISTS run_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    run_id TEXT,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    line TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_logs_account ON run_logs(account_id);

CREATE TABLE IF NOT EXISTS account_profile (
    account_id INTEGER PRIMARY KEY REFERENCES accounts(id),
    user_group TEXT,
    points INTEGER,
    money INTEGER,
    secoin INTEGER,
    score INTEGER,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS used_threads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    fid INTEGER NOT NULL,
    tid INTEGER NOT NULL,
    url TEXT,
    used_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(fid, tid)
);
`
