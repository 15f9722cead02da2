package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"formpilot/internal/application/port/output"
	"formpilot/internal/domain/entity"
)

var _ output.StoragePort = (*Store)(nil)

// ErrNotFound is returned when a credential or template does not exist.
var ErrNotFound = errors.New("storage: not found")

const keySize = 32

type credentialModel struct {
	ID              uint   `gorm:"primaryKey"`
	Site            string `gorm:"uniqueIndex:idx_site_user"`
	Username        string `gorm:"uniqueIndex:idx_site_user"`
	EncryptedSecret []byte
	Nonce           []byte
	Notes           string
	CreatedAt       time.Time
	LastUsed        *time.Time
}

func (credentialModel) TableName() string { return "credentials" }

type auditModel struct {
	ID        string `gorm:"primaryKey"`
	Site      string
	Action    string
	Status    string
	Detail    string
	CreatedAt time.Time `gorm:"index"`
}

func (auditModel) TableName() string { return "automation_logs" }

type templateModel struct {
	ID        uint   `gorm:"primaryKey"`
	Site      string `gorm:"uniqueIndex:idx_site_name"`
	Name      string `gorm:"uniqueIndex:idx_site_name"`
	Data      []byte
	CreatedAt time.Time
}

func (templateModel) TableName() string { return "form_templates" }

// Store keeps credentials encrypted at rest with AES-256-GCM under a key
// file generated on first use. Writes are serialized so concurrent audit
// appends keep a deterministic order.
type Store struct {
	mu     sync.Mutex
	db     *gorm.DB
	aead   cipher.AEAD
	logger output.LoggerPort
}

func NewStore(dbPath, keyPath string, log output.LoggerPort) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&credentialModel{}, &auditModel{}, &templateModel{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead init failed: %w", err)
	}

	return &Store{db: db, aead: aead, logger: log}, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != keySize {
			return nil, fmt.Errorf("key file %s is corrupt", path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

func (s *Store) AddCredential(ctx context.Context, site, username, secret, notes string) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("nonce generation failed: %w", err)
	}
	encrypted := s.aead.Seal(nil, nonce, []byte(secret), nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	model := credentialModel{
		Site:            site,
		Username:        username,
		EncryptedSecret: encrypted,
		Nonce:           nonce,
		Notes:           notes,
		CreatedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (s *Store) LookupCredential(ctx context.Context, site, username string) (*entity.Credential, error) {
	var model credentialModel
	err := s.db.WithContext(ctx).
		Where("site = ? AND username = ?", site, username).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credential query failed: %w", err)
	}

	secret, err := s.aead.Open(nil, model.Nonce, model.EncryptedSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("credential decryption failed: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	touch := s.db.WithContext(ctx).Model(&credentialModel{}).
		Where("id = ?", model.ID).
		Update("last_used", now)
	s.mu.Unlock()
	if touch.Error != nil {
		// The lookup itself succeeded; a stale last_used is not worth
		// failing it over.
		s.logger.Warn("Credential last_used touch failed",
			"site", site, "username", username, "error", touch.Error)
	}

	return &entity.Credential{
		Site:      model.Site,
		Username:  model.Username,
		Secret:    string(secret),
		Notes:     model.Notes,
		CreatedAt: model.CreatedAt,
		LastUsed:  &now,
	}, nil
}

func (s *Store) ListCredentials(ctx context.Context, site string) ([]entity.Credential, error) {
	var models []credentialModel
	if err := s.db.WithContext(ctx).Where("site = ?", site).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("credential list failed: %w", err)
	}

	// Secrets stay encrypted: listing is for inventory, not use.
	creds := make([]entity.Credential, 0, len(models))
	for _, m := range models {
		creds = append(creds, entity.Credential{
			Site:      m.Site,
			Username:  m.Username,
			Notes:     m.Notes,
			CreatedAt: m.CreatedAt,
			LastUsed:  m.LastUsed,
		})
	}
	return creds, nil
}

func (s *Store) DeleteCredential(ctx context.Context, site, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).
		Where("site = ? AND username = ?", site, username).
		Delete(&credentialModel{})
	if result.Error != nil {
		return fmt.Errorf("credential delete failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, site, action string, status entity.AuditStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	model := auditModel{
		ID:        uuid.NewString(),
		Site:      site,
		Action:    action,
		Status:    string(status),
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("audit append failed: %w", err)
	}
	return nil
}

func (s *Store) AuditEntries(ctx context.Context, limit int) ([]entity.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []auditModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}

	entries := make([]entity.AuditEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, entity.AuditEntry{
			ID:        m.ID,
			Site:      m.Site,
			Action:    m.Action,
			Status:    entity.AuditStatus(m.Status),
			Detail:    m.Detail,
			Timestamp: m.CreatedAt,
		})
	}
	return entries, nil
}

func (s *Store) SaveTemplate(ctx context.Context, site, name string, values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("template encode failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing templateModel
	err = s.db.WithContext(ctx).Where("site = ? AND name = ?", site, name).First(&existing).Error
	switch {
	case err == nil:
		existing.Data = data
		err = s.db.WithContext(ctx).Save(&existing).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.db.WithContext(ctx).Create(&templateModel{
			Site:      site,
			Name:      name,
			Data:      data,
			CreatedAt: time.Now(),
		}).Error
	}
	if err != nil {
		return fmt.Errorf("template save failed: %w", err)
	}
	return nil
}

func (s *Store) Template(ctx context.Context, site, name string) (*entity.FormTemplate, error) {
	var model templateModel
	err := s.db.WithContext(ctx).Where("site = ? AND name = ?", site, name).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("template query failed: %w", err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(model.Data, &values); err != nil {
		return nil, fmt.Errorf("template decode failed: %w", err)
	}

	return &entity.FormTemplate{
		Site:      model.Site,
		Name:      model.Name,
		Values:    values,
		CreatedAt: model.CreatedAt,
	}, nil
}

func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
