package storage

// The assigned_to_id UNIQUE constraint is what keeps two concurrent draws
// from committing the same recipient; NULLs do not collide in either dialect.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		phone_number TEXT NOT NULL UNIQUE,
		phone_last_four TEXT NOT NULL,
		assigned_to_id INTEGER UNIQUE REFERENCES participants(id),
		has_picked BOOLEAN NOT NULL DEFAULT FALSE,
		picked_at TIMESTAMP,
		sms_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_assignment BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_wishlist_update BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_game_start BOOLEAN NOT NULL DEFAULT TRUE,
		notify_reminders BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		CHECK (assigned_to_id IS NULL OR assigned_to_id <> id),
		CHECK ((assigned_to_id IS NULL) = (NOT has_picked))
	)`,
	`CREATE TABLE IF NOT EXISTS exclusion_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		participant_id INTEGER NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		excluded_participant_id INTEGER NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		reason TEXT,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (participant_id, excluded_participant_id),
		CHECK (participant_id <> excluded_participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS non_participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		managed_by_participant_id INTEGER NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wish_list_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		participant_id INTEGER REFERENCES participants(id) ON DELETE CASCADE,
		non_participant_id INTEGER REFERENCES non_participants(id) ON DELETE CASCADE,
		item_name TEXT NOT NULL,
		description TEXT,
		link TEXT,
		price_range TEXT,
		priority INTEGER NOT NULL DEFAULT 2 CHECK (priority BETWEEN 1 AND 3),
		display_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		CHECK ((participant_id IS NULL) <> (non_participant_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS wish_list_purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wish_list_item_id INTEGER NOT NULL REFERENCES wish_list_items(id) ON DELETE CASCADE,
		santa_participant_id INTEGER NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		purchased_at TIMESTAMP NOT NULL,
		UNIQUE (wish_list_item_id, santa_participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sms_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		participant_id INTEGER NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		phone_number TEXT NOT NULL,
		message_type TEXT NOT NULL,
		message_body TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 5,
		scheduled_for TIMESTAMP NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		processed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sms_queue_pending ON sms_queue (processed, priority, scheduled_for)`,
	`CREATE TABLE IF NOT EXISTS sms_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		participant_id INTEGER NOT NULL,
		phone_number TEXT NOT NULL,
		message_type TEXT NOT NULL,
		message_body TEXT NOT NULL,
		provider_message_id TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		sent_at TIMESTAMP NOT NULL,
		delivered_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sms_logs_provider ON sms_logs (provider_message_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		id BIGSERIAL PRIMARY KEY,
		first_name TEXT NOT NULL,
		phone_number TEXT NOT NULL UNIQUE,
		phone_last_four TEXT NOT NULL,
		assigned_to_id BIGINT UNIQUE REFERENCES participants(id),
		has_picked BOOLEAN NOT NULL DEFAULT FALSE,
		picked_at TIMESTAMPTZ,
		sms_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_assignment BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_wishlist_update BOOLEAN NOT NULL DEFAULT TRUE,
		notify_on_game_start BOOLEAN NOT NULL DEFAULT TRUE,
		notify_reminders BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		CHECK (assigned_to_id IS NULL OR assigned_to_id <> id),
		CHECK ((assigned_to_id IS NULL) = (NOT has_picked))
	)`,
	`CREATE TABLE IF NOT EXISTS exclusion_rules (
		id BIGSERIAL PRIMARY KEY,
		participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		excluded_participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		reason TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (participant_id, excluded_participant_id),
		CHECK (participant_id <> excluded_participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS non_participants (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		managed_by_participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wish_list_items (
		id BIGSERIAL PRIMARY KEY,
		participant_id BIGINT REFERENCES participants(id) ON DELETE CASCADE,
		non_participant_id BIGINT REFERENCES non_participants(id) ON DELETE CASCADE,
		item_name TEXT NOT NULL,
		description TEXT,
		link TEXT,
		price_range TEXT,
		priority INTEGER NOT NULL DEFAULT 2 CHECK (priority BETWEEN 1 AND 3),
		display_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		CHECK ((participant_id IS NULL) <> (non_participant_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS wish_list_purchases (
		id BIGSERIAL PRIMARY KEY,
		wish_list_item_id BIGINT NOT NULL REFERENCES wish_list_items(id) ON DELETE CASCADE,
		santa_participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		purchased_at TIMESTAMPTZ NOT NULL,
		UNIQUE (wish_list_item_id, santa_participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sms_queue (
		id BIGSERIAL PRIMARY KEY,
		participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		phone_number TEXT NOT NULL,
		message_type TEXT NOT NULL,
		message_body TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 5,
		scheduled_for TIMESTAMPTZ NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sms_queue_pending ON sms_queue (processed, priority, scheduled_for)`,
	`CREATE TABLE IF NOT EXISTS sms_logs (
		id BIGSERIAL PRIMARY KEY,
		participant_id BIGINT NOT NULL,
		phone_number TEXT NOT NULL,
		message_type TEXT NOT NULL,
		message_body TEXT NOT NULL,
		provider_message_id TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		sent_at TIMESTAMPTZ NOT NULL,
		delivered_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sms_logs_provider ON sms_logs (provider_message_id)`,
}
