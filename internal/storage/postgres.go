package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatline/backend/internal/config"
	"chatline/backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Service is the PostgreSQL driver, backed by GORM.
type Service struct {
	DB        *gorm.DB
	opTimeout time.Duration
}

// OpenPostgres connects, migrates the schema and returns the driver.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig) (*Service, error) {
	db, err := gorm.Open(postgres.Open(cfg.URI), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxPoolSize > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxPoolSize))
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := withTimeout(ctx, cfg.ServerSelectionTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&models.User{}, &models.Message{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewStorageService(db, cfg.OpTimeout), nil
}

// NewStorageService wraps an open GORM handle.
func NewStorageService(db *gorm.DB, opTimeout time.Duration) *Service {
	return &Service{DB: db, opTimeout: opTimeout}
}

func (s *Service) db(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := withTimeout(ctx, s.opTimeout)
	return s.DB.WithContext(ctx), cancel
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Close(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Service) CreateUser(ctx context.Context, u *models.User) error {
	db, cancel := s.db(ctx)
	defer cancel()
	if err := db.Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.firstUser(ctx, "id = ?", id)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.firstUser(ctx, "email = ?", models.NormalizeEmail(email))
}

func (s *Service) firstUser(ctx context.Context, query string, arg any) (*models.User, error) {
	db, cancel := s.db(ctx)
	defer cancel()
	var u models.User
	if err := db.Where(query, arg).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Service) UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error) {
	db, cancel := s.db(ctx)
	defer cancel()
	res := db.Model(&models.User{}).Where("id = ?", id).Update("profile_pic", url)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var u models.User
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Service) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	db, cancel := s.db(ctx)
	defer cancel()
	res := db.Model(&models.User{}).Where("id = ?", id).UpdateColumn("last_seen", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ListUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	db, cancel := s.db(ctx)
	defer cancel()
	var users []models.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

type lastMessageRow struct {
	PeerID    string
	ID        string
	Text      string
	Image     string
	SenderID  string
	CreatedAt time.Time
}

// latestPerPeerSQL picks one row per peer: newest createdAt, then the
// highest id, which is time-ordered.
const latestPerPeerSQL = `
SELECT DISTINCT ON (peer_id) peer_id, id, text, image, sender_id, created_at
FROM (
	SELECT CASE WHEN sender_id = @viewer THEN receiver_id ELSE sender_id END AS peer_id,
		id, text, image, sender_id, created_at
	FROM messages
	WHERE sender_id = @viewer OR receiver_id = @viewer
) AS m
ORDER BY peer_id, created_at DESC, id DESC`

func (s *Service) ListContacts(ctx context.Context, viewerID string) ([]models.Contact, error) {
	db, cancel := s.db(ctx)
	defer cancel()

	var users []models.User
	if err := db.Where("id <> ?", viewerID).Order("created_at asc, id asc").Find(&users).Error; err != nil {
		return nil, err
	}

	var rows []lastMessageRow
	if err := db.Raw(latestPerPeerSQL, map[string]any{"viewer": viewerID}).Scan(&rows).Error; err != nil {
		return nil, err
	}
	latest := make(map[string]*models.LastMessage, len(rows))
	for _, r := range rows {
		latest[r.PeerID] = &models.LastMessage{
			ID:        r.ID,
			Text:      r.Text,
			Image:     r.Image,
			SenderID:  r.SenderID,
			CreatedAt: r.CreatedAt,
		}
	}

	contacts := make([]models.Contact, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, models.Contact{User: u, LastMessage: latest[u.ID]})
	}
	return contacts, nil
}

func (s *Service) CreateMessage(ctx context.Context, m *models.Message) error {
	db, cancel := s.db(ctx)
	defer cancel()
	return db.Create(m).Error
}

func (s *Service) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	db, cancel := s.db(ctx)
	defer cancel()
	var m models.Message
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Service) GetMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, cancel := s.db(ctx)
	defer cancel()
	var msgs []models.Message
	if err := db.Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Service) ListConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	db, cancel := s.db(ctx)
	defer cancel()
	msgs := []models.Message{}
	err := db.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Service) MarkSeen(ctx context.Context, senderID, receiverID string) (int64, error) {
	db, cancel := s.db(ctx)
	defer cancel()
	res := db.Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND is_seen = ?", senderID, receiverID, false).
		Update("is_seen", true)
	return res.RowsAffected, res.Error
}

func (s *Service) UpdateText(ctx context.Context, id, senderID, text string) (*models.Message, error) {
	db, cancel := s.db(ctx)
	defer cancel()

	var m models.Message
	res := db.Model(&m).
		Clauses(clause.Returning{}).
		Where("id = ? AND sender_id = ?", id, senderID).
		Updates(map[string]any{"text": text, "is_edited": true})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *Service) ToggleReaction(ctx context.Context, id, userID, emoji string) (*models.Message, error) {
	db, cancel := s.db(ctx)
	defer cancel()

	var m models.Message
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		m.Reactions = models.ToggleReaction(m.Reactions, userID, emoji)
		return tx.Model(&m).Select("reactions", "updated_at").Updates(&m).Error
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) DeleteMessage(ctx context.Context, id string) error {
	db, cancel := s.db(ctx)
	defer cancel()
	res := db.Where("id = ?", id).Delete(&models.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) DeleteConversation(ctx context.Context, a, b string) (int64, error) {
	db, cancel := s.db(ctx)
	defer cancel()
	res := db.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Delete(&models.Message{})
	return res.RowsAffected, res.Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
