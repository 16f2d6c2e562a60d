package store

// Schema is applied at open. One append-only table; the (room, created_at)
// index serves history replay, the room index serves the distinct-room
// aggregate.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	user       TEXT NOT NULL,
	room       TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages(room, created_at);
`
