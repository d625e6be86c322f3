package dal

import (
	"context"

	"github.com/ndau/stacks-dao-gateway/models"
)

//go:generate mockgen -destination=./mocks/mock_repo.go -package=mocks github.com/ndau/stacks-dao-gateway/dal Repo
type Repo interface {
	Close()

	UpsertSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	InsertSubmission(ctx context.Context, s *models.Submission) error
	ListSubmissions(ctx context.Context, sender string, limit int) ([]models.Submission, error)

	UpsertProposals(ctx context.Context, proposals []models.ProposalSnapshot) error
	ListProposals(ctx context.Context) ([]models.ProposalSnapshot, error)
}
