package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradlink/proctor/internal/models"
	"github.com/gradlink/proctor/internal/utils"
)

// Attempt is one completed (or locked-out) interview attempt recorded on
// the candidate's machine.
type Attempt struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	SessionID string         `gorm:"index" json:"session_id"`
	Roles     datatypes.JSON `json:"roles"`
	Questions int            `json:"questions"`
	Answered  int            `json:"answered"`
	Warnings  int            `json:"warnings"`
	Locked    bool           `json:"locked"`
	Score     *float64       `json:"score,omitempty"`
	MaxScore  *float64       `json:"max_score,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

type Store interface {
	Save(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	List(ctx context.Context, limit int) ([]Attempt, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Attempt{}); err != nil {
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) Save(ctx context.Context, a *Attempt) error {
	const op = "HistoryStore.Save"

	if a == nil || a.SessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "attempt.session_id is required", nil)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.EndedAt.IsZero() {
		a.EndedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return utils.E(utils.CodeInternal, op, "failed to save attempt", err)
	}
	return nil
}

func (s *store) Get(ctx context.Context, id string) (*Attempt, error) {
	const op = "HistoryStore.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id is required", nil)
	}

	var a Attempt
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.E(utils.CodeNotFound, op, "attempt not found", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to get attempt", err)
	}
	return &a, nil
}

func (s *store) List(ctx context.Context, limit int) ([]Attempt, error) {
	const op = "HistoryStore.List"

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var out []Attempt
	err := s.db.WithContext(ctx).
		Order("ended_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list attempts", err)
	}
	return out, nil
}

// RolesJSON encodes the role list for storage.
func RolesJSON(roles []models.Role) datatypes.JSON {
	b, err := json.Marshal(roles)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
