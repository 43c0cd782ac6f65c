package sessions

import (
	"context"
	"time"

	"github.com/passwords-you-take-anywhere/server/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID string, token string, validity time.Duration) error
	Find(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
}
