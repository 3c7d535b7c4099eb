package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taleweave/backend/internal/db"
	"github.com/taleweave/backend/internal/logging"
	"github.com/taleweave/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for mirrored users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record. Empty name/email are stored as NULL so
// the partial uniqueness constraints only bite on real values.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, identity_id, name, email, avatar_url, bio, created_at, updated_at)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)
    `, user.ID, user.IdentityID, user.Name, user.Email, user.AvatarURL, user.Bio, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user by local id.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByIdentityID fetches a user by their identity-provider id.
func (r *PostgresUserRepository) FindByIdentityID(ctx context.Context, identityID string) (models.User, error) {
	return r.findOne(ctx, `WHERE identity_id = $1`, identityID)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, identity_id, COALESCE(name, ''), COALESCE(email, ''), avatar_url, bio, created_at, updated_at
        FROM users
    `+where, arg)

	var user models.User
	if err := row.Scan(&user.ID, &user.IdentityID, &user.Name, &user.Email, &user.AvatarURL, &user.Bio, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// Update overwrites the mirrored and editable fields of an existing user.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET name = NULLIF($2, ''), email = NULLIF($3, ''), avatar_url = $4, bio = $5, updated_at = $6
        WHERE id = $1
    `, user.ID, user.Name, user.Email, user.AvatarURL, user.Bio, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ProfilesByIDs resolves display name and avatar for the provided local
// user ids.
func (r *PostgresUserRepository) ProfilesByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	profiles := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, COALESCE(name, ''), avatar_url
        FROM users
        WHERE id = ANY($1)
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query user profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Name, &user.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan user profile: %w", err)
		}
		profiles[user.ID] = user
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user profiles: %w", err)
	}

	return profiles, nil
}

// DeleteCascade removes the user's account in a single transaction: stories
// they authored, their identity-id in every like/bookmark set, comments they
// wrote on surviving stories, and finally the user row itself. crdbpgx
// retries the whole closure on serialization failures.
func (r *PostgresUserRepository) DeleteCascade(ctx context.Context, user models.User) error {
	ctx, span := logging.StartSpan(ctx, "account-cascade")
	defer span.End()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := time.Now().UTC()

	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM stories WHERE author_id = $1`, user.ID); err != nil {
			return fmt.Errorf("delete authored stories: %w", err)
		}

		if _, err := tx.Exec(ctx, `
            UPDATE stories
            SET likes = array_remove(likes, $1),
                bookmarks = array_remove(bookmarks, $1),
                updated_at = $2
            WHERE $1 = ANY(likes) OR $1 = ANY(bookmarks)
        `, user.IdentityID, now); err != nil {
			return fmt.Errorf("strip likes and bookmarks: %w", err)
		}

		if _, err := tx.Exec(ctx, `
            UPDATE stories
            SET comments = COALESCE(
                    (SELECT jsonb_agg(c) FROM jsonb_array_elements(comments) AS c WHERE c->>'userId' <> $1),
                    '[]'::JSONB),
                updated_at = $2
            WHERE EXISTS (SELECT 1 FROM jsonb_array_elements(comments) AS c WHERE c->>'userId' = $1)
        `, user.ID, now); err != nil {
			return fmt.Errorf("strip authored comments: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("cascade delete user: %w", err)
	}

	return nil
}

// PostgresStoryRepository provides PostgreSQL-backed persistence for stories.
type PostgresStoryRepository struct {
	pool db.Pool
}

// NewPostgresStoryRepository constructs a story repository backed by PostgreSQL.
func NewPostgresStoryRepository(pool db.Pool) *PostgresStoryRepository {
	return &PostgresStoryRepository{pool: pool}
}

const storyColumns = `
        id, author_id, author_name, author_avatar, title, body, category,
        image_url, audio_url, video_url, likes, bookmarks, comments,
        created_at, updated_at`

// Create stores a new story record.
func (r *PostgresStoryRepository) Create(ctx context.Context, story models.Story) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	comments, err := marshalComments(story.Comments)
	if err != nil {
		return err
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO stories (id, author_id, author_name, author_avatar, title, body, category,
                             image_url, audio_url, video_url, likes, bookmarks, comments,
                             created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `, story.ID, story.AuthorID, story.AuthorName, story.AuthorAvatar, story.Title, story.Body,
		story.Category, story.ImageURL, story.AudioURL, story.VideoURL,
		emptyIfNil(story.Likes), emptyIfNil(story.Bookmarks), comments,
		story.CreatedAt, story.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert story: %w", err)
	}

	return nil
}

// FindByID fetches a single story.
func (r *PostgresStoryRepository) FindByID(ctx context.Context, id string) (models.Story, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Story{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT`+storyColumns+` FROM stories WHERE id = $1`, id)

	story, err := scanStory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Story{}, ErrNotFound
		}
		return models.Story{}, fmt.Errorf("select story: %w", err)
	}

	return story, nil
}

// ListAll returns every story, newest first.
func (r *PostgresStoryRepository) ListAll(ctx context.Context) ([]models.Story, error) {
	return r.list(ctx, ``)
}

// ListByAuthor returns stories authored by the given local user, newest first.
func (r *PostgresStoryRepository) ListByAuthor(ctx context.Context, authorID string) ([]models.Story, error) {
	return r.list(ctx, `WHERE author_id = $1`, authorID)
}

// ListBookmarkedBy returns stories whose bookmark set contains the
// identity-provider id, newest first.
func (r *PostgresStoryRepository) ListBookmarkedBy(ctx context.Context, identityID string) ([]models.Story, error) {
	return r.list(ctx, `WHERE $1 = ANY(bookmarks)`, identityID)
}

func (r *PostgresStoryRepository) list(ctx context.Context, where string, args ...any) ([]models.Story, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT`+storyColumns+` FROM stories `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	var stories []models.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, story)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}

	return stories, nil
}

// Update overwrites a story's mutable fields. The author reference is
// immutable after creation and deliberately absent from the SET list.
func (r *PostgresStoryRepository) Update(ctx context.Context, story models.Story) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE stories
        SET title = $2, body = $3, category = $4,
            image_url = $5, audio_url = $6, video_url = $7,
            updated_at = $8
        WHERE id = $1
    `, story.ID, story.Title, story.Body, story.Category,
		story.ImageURL, story.AudioURL, story.VideoURL, story.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update story: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a story. Embedded comments go with it; no cascade needed.
func (r *PostgresStoryRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete story: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ToggleLike flips membership of the identity-id in the story's like set.
func (r *PostgresStoryRepository) ToggleLike(ctx context.Context, storyID, identityID string, at time.Time) error {
	return r.toggle(ctx, "likes", storyID, identityID, at)
}

// ToggleBookmark flips membership of the identity-id in the story's bookmark set.
func (r *PostgresStoryRepository) ToggleBookmark(ctx context.Context, storyID, identityID string, at time.Time) error {
	return r.toggle(ctx, "bookmarks", storyID, identityID, at)
}

func (r *PostgresStoryRepository) toggle(ctx context.Context, column, storyID, identityID string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// column is one of two trusted literals, never caller input.
	tag, err := conn.Exec(ctx, fmt.Sprintf(`
        UPDATE stories
        SET %[1]s = CASE
                WHEN $2::TEXT = ANY(%[1]s) THEN array_remove(%[1]s, $2::TEXT)
                ELSE array_append(%[1]s, $2::TEXT)
            END,
            updated_at = $3
        WHERE id = $1
    `, column), storyID, identityID, at)
	if err != nil {
		return fmt.Errorf("toggle %s: %w", column, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AppendComment adds a comment to the end of the story's embedded list.
func (r *PostgresStoryRepository) AppendComment(ctx context.Context, storyID string, comment models.Comment, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	payload, err := marshalComments([]models.Comment{comment})
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `
        UPDATE stories
        SET comments = comments || $2::JSONB, updated_at = $3
        WHERE id = $1
    `, storyID, payload, at)
	if err != nil {
		return fmt.Errorf("append comment: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ReplaceComments overwrites the story's embedded comment list.
func (r *PostgresStoryRepository) ReplaceComments(ctx context.Context, storyID string, comments []models.Comment, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	payload, err := marshalComments(comments)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `
        UPDATE stories
        SET comments = $2::JSONB, updated_at = $3
        WHERE id = $1
    `, storyID, payload, at)
	if err != nil {
		return fmt.Errorf("replace comments: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresProgressRepository provides PostgreSQL-backed persistence for
// progress markers.
type PostgresProgressRepository struct {
	pool db.Pool
}

// NewPostgresProgressRepository constructs a progress repository backed by PostgreSQL.
func NewPostgresProgressRepository(pool db.Pool) *PostgresProgressRepository {
	return &PostgresProgressRepository{pool: pool}
}

// Upsert creates or overwrites the marker for the (user, story) pair.
func (r *PostgresProgressRepository) Upsert(ctx context.Context, progress models.Progress) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO progress (id, user_id, story_id, value, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, story_id)
        DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
    `, progress.ID, progress.UserID, progress.StoryID, progress.Value, progress.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("upsert progress: %w", err)
	}

	return nil
}

// ListForUser returns all markers for the user, most recently updated first.
func (r *PostgresProgressRepository) ListForUser(ctx context.Context, userID string) ([]models.Progress, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, story_id, value, updated_at
        FROM progress
        WHERE user_id = $1
        ORDER BY updated_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var records []models.Progress
	for rows.Next() {
		var p models.Progress
		if err := rows.Scan(&p.ID, &p.UserID, &p.StoryID, &p.Value, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		records = append(records, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}

	return records, nil
}

func scanStory(row pgx.Row) (models.Story, error) {
	var (
		story    models.Story
		comments []byte
	)

	if err := row.Scan(&story.ID, &story.AuthorID, &story.AuthorName, &story.AuthorAvatar,
		&story.Title, &story.Body, &story.Category,
		&story.ImageURL, &story.AudioURL, &story.VideoURL,
		&story.Likes, &story.Bookmarks, &comments,
		&story.CreatedAt, &story.UpdatedAt); err != nil {
		return models.Story{}, err
	}

	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &story.Comments); err != nil {
			return models.Story{}, fmt.Errorf("decode comments: %w", err)
		}
	}

	return story, nil
}

func marshalComments(comments []models.Comment) ([]byte, error) {
	if comments == nil {
		comments = []models.Comment{}
	}
	payload, err := json.Marshal(comments)
	if err != nil {
		return nil, fmt.Errorf("encode comments: %w", err)
	}
	return payload, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ StoryRepository = (*PostgresStoryRepository)(nil)
var _ ProgressRepository = (*PostgresProgressRepository)(nil)
