package domain

import (
	"context"
	"time"

	"sendwatch/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TaskBackend is the subset of the backend API the refresh components use.
type TaskBackend interface {
	ListTasks(ctx context.Context, orgs []string) ([]models.Task, error)
	GetStatistics(ctx context.Context, ids []string) ([]models.TaskStatistics, error)
	RefreshStatistics(ctx context.Context, ids []string) (map[string]string, error)
	CheckTasks(ctx context.Context, orgs []string) (*models.TaskDiff, error)
	RefreshTodayCreated(ctx context.Context, orgs []string) (map[string]string, error)
}

type AuthBackend interface {
	Login(ctx context.Context, email, password string) (string, *models.Operator, error)
	Profile(ctx context.Context, token string) (*models.Operator, error)
}

// ScopeProvider resolves the organizations the current operator may see.
type ScopeProvider interface {
	Orgs(ctx context.Context) ([]string, error)
}

type SessionStore interface {
	GetSession(ctx context.Context, key string) (*models.Session, error)
	SetSession(ctx context.Context, key string, session *models.Session, ttl time.Duration) error
	ClearSession(ctx context.Context, key string) error
}

type Journal interface {
	Record(ctx context.Context, session *models.RefreshSession) error
	Recent(ctx context.Context, limit int) ([]*models.RefreshSession, error)
}

// Confirmer is the yes/no gate in front of bulk actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
