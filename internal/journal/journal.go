// Package journal keeps an append-only record of what happened in games.
// It is an audit trail only; nothing is ever restored from it.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Kind string

const (
	KindGameStarted  Kind = "game_started"
	KindPlayerDied   Kind = "player_died"
	KindGameFinished Kind = "game_finished"
)

type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	LobbyID   string    `gorm:"index;not null"`
	Kind      Kind      `gorm:"not null"`
	PlayerID  string
	Detail    string
	CreatedAt time.Time
}

func (Entry) TableName() string { return "journal_entries" }

// Journal accepts entries without blocking the caller.
type Journal interface {
	Record(e Entry)
}

type Nop struct{}

func (Nop) Record(Entry) {}

const (
	bufferSize    = 256
	batchSize     = 64
	flushInterval = time.Second
)

// Store batches entries in the background and writes them with gorm.
type Store struct {
	log     *zap.Logger
	entries chan Entry
	insert  func(ctx context.Context, batch []Entry) error
	close   func() error
}

// Open connects to Postgres and makes sure the journal table exists.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("journal sql handle: %w", err)
	}

	insert := func(ctx context.Context, batch []Entry) error {
		return db.WithContext(ctx).CreateInBatches(batch, batchSize).Error
	}
	return newStore(insert, sqlDB.Close, log), nil
}

func newStore(insert func(context.Context, []Entry) error, closeFn func() error, log *zap.Logger) *Store {
	return &Store{
		log:     log.Named("journal"),
		entries: make(chan Entry, bufferSize),
		insert:  insert,
		close:   closeFn,
	}
}

// Record stamps and queues e. When the buffer is full the entry is dropped.
func (s *Store) Record(e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case s.entries <- e:
	default:
		s.log.Warn("journal buffer full, dropping entry", zap.String("kind", string(e.Kind)))
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is left.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch []Entry
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := s.insert(ctx, batch); err != nil {
			s.log.Error("write journal batch", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case e := <-s.entries:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			flush(final)
			cancel()
			return nil
		case e := <-s.entries:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
