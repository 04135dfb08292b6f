package library

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:generate mockgen -source=service.go -destination=mocks/mock_service.go -package=mocks

type Repository interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Repository, driver.Tx, error)

	CreateAuthor(ctx context.Context, a Author) (Author, error)
	ListAuthors(ctx context.Context) ([]Author, error)
	GetAuthorsByIDs(ctx context.Context, ids []uuid.UUID) ([]Author, error)

	CreateBook(ctx context.Context, b Book) (Book, error)
	GetBookByID(ctx context.Context, id uuid.UUID) (Book, error)
	GetBookForUpdate(ctx context.Context, id uuid.UUID) (Book, error)
	UpdateBook(ctx context.Context, b Book) (Book, error)
	AdjustBookInventory(ctx context.Context, id uuid.UUID, delta int) (Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
	ListBooks(ctx context.Context, filter BookFilter, page, pageSize int) ([]Book, error)
	ListBooksTotals(ctx context.Context, filter BookFilter) (int, error)

	CreateBorrowing(ctx context.Context, b Borrowing) (Borrowing, error)
	GetBorrowingByID(ctx context.Context, id uuid.UUID) (Borrowing, error)
	GetBorrowingForUpdate(ctx context.Context, id uuid.UUID) (Borrowing, error)
	SetBorrowingReturnDate(ctx context.Context, id uuid.UUID, returnDate time.Time) (Borrowing, error)
	ListBorrowings(ctx context.Context, filter BorrowingFilter, page, pageSize int) ([]Borrowing, error)
	ListBorrowingsTotals(ctx context.Context, filter BorrowingFilter) (int, error)
}

type Notifier interface {
	BorrowingCreated(ctx context.Context, b Borrowing, bookTitle string) error
	BorrowingReturned(ctx context.Context, b Borrowing, bookTitle string) error
}

type Service struct {
	repo                 Repository
	ntfy                 Notifier
	notificationsTimeout time.Duration
	logger               *zap.Logger
	now                  func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(repo Repository, ntfy Notifier, notificationsTimeout time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:                 repo,
		ntfy:                 ntfy,
		notificationsTimeout: notificationsTimeout,
		logger:               zap.NewNop(),
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return Today(s.now())
}

/* Opens a transaction and returns a repository bound to it, plus the function that finishes it:
commit when *errp is nil, rollback otherwise. */
func (s *Service) begin(ctx context.Context) (Repository, func(errp *error), error) {
	txRepo, tx, err := s.repo.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	done := func(errp *error) {
		if *errp != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rolling back transaction", zap.Error(rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			*errp = repoError("Commit", cErr)
		}
	}
	return txRepo, done, nil
}

/* Leaves the domain errors untouched and turns anything else coming from the repository
into a timeout or a generic repository error. */
func repoError(op string, err error) error {
	var vErr ValidationError
	var eResp ErrResponse
	switch {
	case errors.As(err, &vErr):
		return vErr
	case errors.As(err, &eResp):
		return eResp
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("timeout on call to %s: %w", op, err)
	default:
		return ErrResponse{
			Code:    ErrResponseFromRespository.Code,
			Message: ErrResponseFromRespository.Message + err.Error(),
		}
	}
}

/* Sends a notification without holding the request. Failures are only logged. */
func (s *Service) notify(send func(ctx context.Context) error, event string) {
	if s.ntfy == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notificationsTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn("notification not delivered", zap.String("event", event), zap.Error(err))
		}
	}()
}
