// Package postgres implements the store interfaces on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunir/lunir/internal/domain"
	"github.com/lunir/lunir/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_rooms (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_private  BOOLEAN NOT NULL DEFAULT FALSE,
	created_by  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id      TEXT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	username     TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url   TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL DEFAULT 'member',
	joined_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	room_id      TEXT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	username     TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url   TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	message_type TEXT NOT NULL DEFAULT 'text',
	parent_id    TEXT NOT NULL DEFAULT '',
	has_latex    BOOLEAN NOT NULL DEFAULT FALSE,
	has_code     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);
`

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL and ensures the schema exists.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Stores returns the store bundle, this instance serving every interface.
func (s *Store) Stores() store.Stores {
	return store.Stores{Rooms: s, Membership: s, Messages: s}
}

func (s *Store) Create(ctx context.Context, name, description string, private bool, creator domain.User) (domain.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Room{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	room := domain.Room{
		ID:          domain.RoomID(uuid.NewString()),
		Name:        name,
		Description: description,
		Private:     private,
		CreatedBy:   creator.ID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO chat_rooms (id, name, description, is_private, created_by)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		room.ID, room.Name, room.Description, room.Private, room.CreatedBy,
	).Scan(&room.CreatedAt)
	if err != nil {
		return domain.Room{}, fmt.Errorf("insert room: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id, username, display_name, avatar_url, role)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		room.ID, creator.ID, creator.Username, creator.DisplayName, creator.AvatarURL, domain.RoleAdmin,
	)
	if err != nil {
		return domain.Room{}, fmt.Errorf("insert creator membership: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Room{}, fmt.Errorf("commit: %w", err)
	}
	return room, nil
}

func (s *Store) Get(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, is_private, created_by, created_at
		 FROM chat_rooms WHERE id = $1`, roomID,
	).Scan(&room.ID, &room.Name, &room.Description, &room.Private, &room.CreatedBy, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("select room: %w", err)
	}
	return room, nil
}

func (s *Store) ListForUser(ctx context.Context, userID domain.UserID) ([]store.RoomSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.name, r.description, r.is_private, r.created_by, r.created_at,
		        (SELECT count(*) FROM room_members c WHERE c.room_id = r.id)
		 FROM chat_rooms r
		 JOIN room_members m ON m.room_id = r.id
		 WHERE m.user_id = $1
		 ORDER BY r.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	defer rows.Close()

	out := make([]store.RoomSummary, 0)
	for rows.Next() {
		var rs store.RoomSummary
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.Description, &rs.Private,
			&rs.CreatedBy, &rs.CreatedAt, &rs.MemberCount); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (s *Store) IsMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select membership: %w", err)
	}
	return exists, nil
}

func (s *Store) Members(ctx context.Context, roomID domain.RoomID) ([]domain.RoomMember, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, username, display_name, avatar_url, role, joined_at
		 FROM room_members WHERE room_id = $1 ORDER BY joined_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RoomMember, 0)
	for rows.Next() {
		var m domain.RoomMember
		if err := rows.Scan(&m.User.ID, &m.User.Username, &m.User.DisplayName,
			&m.User.AvatarURL, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Join(ctx context.Context, user domain.User, roomID domain.RoomID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id, username, display_name, avatar_url, role)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, user.ID, user.Username, user.DisplayName, user.AvatarURL, domain.RoleMember)
	if err != nil {
		return false, fmt.Errorf("insert membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Leave(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.ID = domain.MessageID(uuid.NewString())
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, room_id, user_id, username, display_name, avatar_url,
		                       content, message_type, parent_id, has_latex, has_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING created_at`,
		msg.ID, msg.RoomID, msg.User.ID, msg.User.Username, msg.User.DisplayName,
		msg.User.AvatarURL, msg.Content, msg.Type, msg.ParentID, msg.HasLatex, msg.HasCode,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *Store) ListRoom(ctx context.Context, roomID domain.RoomID, limit int, beforeID domain.MessageID) ([]domain.Message, error) {
	query := `SELECT id, room_id, user_id, username, display_name, avatar_url,
	                 content, message_type, parent_id, has_latex, has_code, created_at
	          FROM messages WHERE room_id = $1`
	args := []any{roomID}
	if beforeID != "" {
		// Unknown before_id falls back to the newest page instead of
		// comparing against NULL and returning nothing.
		query += ` AND created_at < COALESCE((SELECT created_at FROM messages WHERE id = $2), 'infinity'::timestamptz)`
		args = append(args, beforeID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.User.ID, &m.User.Username,
			&m.User.DisplayName, &m.User.AvatarURL, &m.Content, &m.Type,
			&m.ParentID, &m.HasLatex, &m.HasCode, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query runs newest-first for the LIMIT; callers expect chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
