package chatstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aqua777/go-callrag/llm"
)

// ChatMessageRow is one stored message. Position orders messages within a session.
type ChatMessageRow struct {
	ID         uint      `gorm:"primaryKey"`
	SessionKey string    `gorm:"column:session_key;size:255;not null;index:idx_chat_messages_session"`
	Position   int       `gorm:"column:position;not null"`
	Role       string    `gorm:"column:role;size:32;not null"`
	Content    string    `gorm:"column:content;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName pins the table name.
func (ChatMessageRow) TableName() string {
	return "chat_messages"
}

// SQLChatStore keeps chat history in SQLite or Postgres through gorm.
type SQLChatStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ ChatStore = (*SQLChatStore)(nil)

// SQLOption configures SQLChatStore.
type SQLOption func(*sqlConfig)

type sqlConfig struct {
	logger     *slog.Logger
	gormLogger logger.Interface
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SQLOption {
	return func(c *sqlConfig) {
		c.logger = l
	}
}

// WithGormLogger replaces gorm's SQL logger, which is silent by default.
func WithGormLogger(l logger.Interface) SQLOption {
	return func(c *sqlConfig) {
		c.gormLogger = l
	}
}

// Dialector picks the gorm driver for a DSN. sqlite://path (or a bare file
// path) opens a pure-Go SQLite database; postgres:// and postgresql:// open Postgres.
func Dialector(dsn string) (gorm.Dialector, error) {
	switch {
	case dsn == "":
		return nil, errors.New("chat store: empty DSN")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("chat store: unsupported DSN scheme in %q", dsn)
	default:
		return sqlite.Open(dsn), nil
	}
}

// OpenSQLChatStore connects to dsn and migrates the chat_messages table.
func OpenSQLChatStore(dsn string, opts ...SQLOption) (*SQLChatStore, error) {
	cfg := sqlConfig{
		logger:     slog.Default(),
		gormLogger: logger.Default.LogMode(logger.Silent),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dialector, err := Dialector(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: cfg.gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chat database: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// SQLite allows one writer; a single connection also keeps :memory: databases shared.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database object: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewSQLChatStore(db, opts...)
}

// NewSQLChatStore wraps an open gorm connection and migrates the schema.
func NewSQLChatStore(db *gorm.DB, opts ...SQLOption) (*SQLChatStore, error) {
	cfg := sqlConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := db.AutoMigrate(&ChatMessageRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat_messages: %w", err)
	}
	cfg.logger.Debug("chat store ready", "dialect", db.Dialector.Name())
	return &SQLChatStore{db: db, logger: cfg.logger}, nil
}

// Close closes the underlying connection pool.
func (s *SQLChatStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database object: %w", err)
	}
	return sqlDB.Close()
}

func (s *SQLChatStore) SetMessages(ctx context.Context, key string, messages []llm.ChatMessage) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_key = ?", key).Delete(&ChatMessageRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear session %s: %w", key, err)
		}
		if len(messages) == 0 {
			return nil
		}
		rows := make([]ChatMessageRow, len(messages))
		for i, m := range messages {
			rows[i] = toRow(key, i, m)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert messages for session %s: %w", key, err)
		}
		return nil
	})
}

func (s *SQLChatStore) GetMessages(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	rows, err := s.rows(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	out := make([]llm.ChatMessage, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

func (s *SQLChatStore) AddMessage(ctx context.Context, key string, message llm.ChatMessage, idx int) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ChatMessageRow{}).Where("session_key = ?", key).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count session %s: %w", key, err)
		}
		pos := int(count)
		if idx >= 0 && idx < pos {
			err := tx.Model(&ChatMessageRow{}).
				Where("session_key = ? AND position >= ?", key, idx).
				Update("position", gorm.Expr("position + 1")).Error
			if err != nil {
				return fmt.Errorf("failed to shift session %s: %w", key, err)
			}
			pos = idx
		}
		row := toRow(key, pos, message)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert message for session %s: %w", key, err)
		}
		return nil
	})
}

func (s *SQLChatStore) DeleteMessages(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	var deleted []llm.ChatMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.rows(tx, key)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Where("session_key = ?", key).Delete(&ChatMessageRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete session %s: %w", key, err)
		}
		deleted = make([]llm.ChatMessage, len(rows))
		for i, r := range rows {
			deleted[i] = fromRow(r)
		}
		return nil
	})
	return deleted, err
}

func (s *SQLChatStore) DeleteMessage(ctx context.Context, key string, idx int) (*llm.ChatMessage, error) {
	if idx < 0 {
		return nil, nil
	}
	var deleted *llm.ChatMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ChatMessageRow
		err := tx.Where("session_key = ? AND position = ?", key, idx).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load message %d of session %s: %w", idx, key, err)
		}
		if err := tx.Delete(&row).Error; err != nil {
			return fmt.Errorf("failed to delete message %d of session %s: %w", idx, key, err)
		}
		err = tx.Model(&ChatMessageRow{}).
			Where("session_key = ? AND position > ?", key, idx).
			Update("position", gorm.Expr("position - 1")).Error
		if err != nil {
			return fmt.Errorf("failed to shift session %s: %w", key, err)
		}
		msg := fromRow(row)
		deleted = &msg
		return nil
	})
	return deleted, err
}

func (s *SQLChatStore) DeleteLastMessage(ctx context.Context, key string) (*llm.ChatMessage, error) {
	var deleted *llm.ChatMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ChatMessageRow
		err := tx.Where("session_key = ?", key).Order("position DESC").First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load last message of session %s: %w", key, err)
		}
		if err := tx.Delete(&row).Error; err != nil {
			return fmt.Errorf("failed to delete last message of session %s: %w", key, err)
		}
		msg := fromRow(row)
		deleted = &msg
		return nil
	})
	return deleted, err
}

func (s *SQLChatStore) GetKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&ChatMessageRow{}).
		Distinct("session_key").
		Order("session_key").
		Pluck("session_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (s *SQLChatStore) rows(db *gorm.DB, key string) ([]ChatMessageRow, error) {
	var rows []ChatMessageRow
	if err := db.Where("session_key = ?", key).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}
	return rows, nil
}

func toRow(key string, pos int, m llm.ChatMessage) ChatMessageRow {
	return ChatMessageRow{
		SessionKey: key,
		Position:   pos,
		Role:       string(m.Role),
		Content:    m.Content,
	}
}

func fromRow(r ChatMessageRow) llm.ChatMessage {
	return llm.NewChatMessage(llm.MessageRole(r.Role), r.Content)
}
