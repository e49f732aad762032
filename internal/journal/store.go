package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/edgegate/pkg/event"
	"github.com/nao1215/edgegate/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// DefaultListLimit はListByUserの既定の取得件数。
const DefaultListLimit = 50

// MaxListLimit はListByUserの取得件数の上限。
const MaxListLimit = 200

// timeLayout は作成日時の保存形式。辞書順と時刻順を一致させるため桁数を固定する。
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNilEvent はnilのイベントを記録しようとしたことを表す。
var ErrNilEvent = errors.New("nil event")

// Store はセッションイベントのSQLiteストア。
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open はSQLiteデータベースを開き、マイグレーションを適用する。
// pathに ":memory:" を指定するとインメモリのデータベースになる。
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if path == ":memory:" {
		// 接続ごとに別のデータベースになるため1接続に固定する
		db.SetMaxOpenConns(1)
	}

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの接続を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record はイベントを1件追記する。
func (s *Store) Record(ctx context.Context, ev *event.Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_events (id, aggregate_id, aggregate_type, event_type, user_id, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.AggregateID,
		string(ev.AggregateType),
		string(ev.EventType),
		ev.UserID,
		string(ev.Data),
		ev.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("イベントの記録に失敗: %w", err)
	}
	s.logger.Debug("セッションイベントを記録",
		zap.String("event_type", string(ev.EventType)),
		zap.String("aggregate_id", ev.AggregateID),
	)
	return nil
}

// ListByUser はユーザーのイベントを新しい順に返す。
// limitが0以下の場合はDefaultListLimit、MaxListLimitを超える場合はMaxListLimitになる。
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]event.Event, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, user_id, data, created_at
		FROM session_events
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]event.Event, 0)
	for rows.Next() {
		var (
			ev        event.Event
			aggType   string
			eventType string
			data      string
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &aggType, &eventType, &ev.UserID, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("イベントの読み取りに失敗: %w", err)
		}
		ev.AggregateType = event.AggregateType(aggType)
		ev.EventType = event.Type(eventType)
		ev.Data = []byte(data)
		ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("作成日時のパースに失敗: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// TerminalCode はセッションでリフレッシュに失敗したトークンの終端コードを返す。
// refreshDigestに一致する失敗が記録されていなければ空文字列を返す。
func (s *Store) TerminalCode(ctx context.Context, sessionID, refreshDigest string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data
		FROM session_events
		WHERE aggregate_id = ? AND event_type = ?
		ORDER BY created_at DESC, rowid DESC`, sessionID, string(event.TypeSessionRefreshFailed))
	if err != nil {
		return "", fmt.Errorf("終端コードの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return "", fmt.Errorf("イベントの読み取りに失敗: %w", err)
		}
		failed, err := event.DecodeData[event.SessionRefreshFailedData](&event.Event{Data: []byte(data)})
		if err != nil {
			return "", err
		}
		if failed.RefreshDigest == refreshDigest {
			return failed.Code, nil
		}
	}
	return "", rows.Err()
}
