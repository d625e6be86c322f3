package dal

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/pkg/errors"
)

const (
	sqlitePrefix   = "sqlite:"
	upsertBatch    = 1000
	defaultListCap = 100
)

type Db struct {
	Client *gorm.DB
	Cfg    *models.Config
	Log    logger.Logger
}

// NewDb opens the database named by the connection string and migrates the tables
func NewDb(cfg *models.Config, log logger.Logger) (*Db, error) {
	dialector, sqliteDB, err := open(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "Failed openning a DB connection")
	}

	if sqliteDB {
		// every connection to :memory: is a new database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "Failed getting the sql handle")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Session{}, &models.Submission{}, &models.ProposalSnapshot{}); err != nil {
		return nil, errors.Wrap(err, "Failed migrating tables")
	}

	return &Db{
		Client: db,
		Cfg:    cfg,
		Log:    log,
	}, nil
}

func open(conn string) (gorm.Dialector, bool, error) {
	if strings.HasPrefix(conn, sqlitePrefix) {
		return sqlite.Open(strings.TrimPrefix(conn, sqlitePrefix)), true, nil
	}

	dsn, err := ParseURL(conn)
	if err != nil {
		return nil, false, err
	}
	return postgres.Open(dsn), false, nil
}

// Close ...
func (db *Db) Close() {
	sqlDB, err := db.Client.DB()
	if err != nil {
		db.Log.Errorf("Failed getting the sql handle: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		db.Log.Errorf("Failed closing the DB: %v", err)
	}
}

// UpsertSession -
func (db *Db) UpsertSession(ctx context.Context, s *models.Session) error {
	return db.Client.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "testnet_address", "mainnet_address", "network", "pending", "updated_at"}),
	}).Create(s).Error
}

// GetSession returns nil, nil when there is no such session
func (db *Db) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	if err := db.Client.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "Failed reading from the sessions table")
	}
	return &s, nil
}

// DeleteSession -
func (db *Db) DeleteSession(ctx context.Context, id string) error {
	return db.Client.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error
}

// InsertSubmission -
func (db *Db) InsertSubmission(ctx context.Context, s *models.Submission) error {
	db.Log.Infof("%s | Recording %s submission %s", models.TrackingNumber(ctx), s.FunctionName, s.ID)
	return db.Client.WithContext(ctx).Create(s).Error
}

// ListSubmissions - newest first; every sender when sender is empty
func (db *Db) ListSubmissions(ctx context.Context, sender string, limit int) ([]models.Submission, error) {
	if limit <= 0 {
		limit = defaultListCap
	}

	q := db.Client.WithContext(ctx).Order("created_at desc").Limit(limit)
	if sender != "" {
		q = q.Where("sender = ?", sender)
	}

	submissions := []models.Submission{}
	if err := q.Find(&submissions).Error; err != nil {
		return nil, errors.Wrap(err, "Failed reading from the submissions table")
	}
	return submissions, nil
}

// UpsertProposals -
func (db *Db) UpsertProposals(ctx context.Context, proposals []models.ProposalSnapshot) error {
	if len(proposals) == 0 {
		return nil
	}
	db.Log.Infof("%s | Upserting '%d' proposals into the proposals table", models.TrackingNumber(ctx), len(proposals))

	return db.Client.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "proposal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"creator", "amount", "recipient", "yes_votes", "no_votes", "end_block",
			"end_timestamp", "executed", "opened_at", "status", "fetched_at",
		}),
	}).CreateInBatches(proposals, upsertBatch).Error
}

// ListProposals - Read all cached proposals
func (db *Db) ListProposals(ctx context.Context) ([]models.ProposalSnapshot, error) {
	proposals := []models.ProposalSnapshot{}
	if err := db.Client.WithContext(ctx).Order("proposal_id asc").Find(&proposals).Error; err != nil {
		return nil, errors.Wrap(err, "Failed reading from the proposals table")
	}
	return proposals, nil
}

// ParseURL - Parse the DB connection string
func ParseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "bad connection string")
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported database scheme '%s'", u.Scheme)
	}

	port := u.Port()
	if port == "" {
		port = "5432"
	}
	password, _ := u.User.Password()
	dbName := strings.TrimPrefix(u.Path, "/")

	sslmode := u.Query().Get("sslmode")
	if sslmode == "" {
		sslmode = "disable"
	}

	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s password=%s", u.Hostname(), port, u.User.Username(), dbName, sslmode, password), nil
}
