package library

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Borrowing struct {
	ID                 uuid.UUID
	BorrowDate         time.Time
	ExpectedReturnDate time.Time
	ActualReturnDate   *time.Time
	BookID             uuid.UUID
	UserID             uuid.UUID
}

// IsActive reports whether the book is still out on loan.
func (b Borrowing) IsActive() bool {
	return b.ActualReturnDate == nil
}

type BorrowingFilter struct {
	UserID   *uuid.UUID
	IsActive *bool
}

type PagedBorrowings struct {
	PageCurrent int
	PageTotal   int
	PageSize    int
	ItemsTotal  int
	Results     []Borrowing
}

type CreateBorrowingRequest struct {
	ExpectedReturnDate time.Time
	BookID             uuid.UUID
}

type ListBorrowingsRequest struct {
	Filter   BorrowingFilter
	Page     int
	PageSize int
}

/* Lends a copy of a book to the actor. The checks run before the transaction starts and the
inventory is checked again under the book row lock, so the decrement and the insert either
both happen or neither does. */
func (s *Service) CreateBorrowing(ctx context.Context, actor Actor, req CreateBorrowingRequest) (Borrowing, error) {
	if err := Authorize(actor, ActionCreateBorrowing, Resource{}); err != nil {
		return Borrowing{}, err
	}

	today := s.today()

	b, err := s.repo.GetBookByID(ctx, req.BookID)
	if err != nil {
		return Borrowing{}, repoError("CreateBorrowing", err)
	}
	if err := ValidateInventoryAvailable(b.Inventory); err != nil {
		return Borrowing{}, err
	}
	if err := ValidateReturnWindow(req.ExpectedReturnDate, nil, today); err != nil {
		return Borrowing{}, err
	}

	newBorrowing := Borrowing{
		ID:                 uuid.New(),
		BorrowDate:         today,
		ExpectedReturnDate: Today(req.ExpectedReturnDate),
		ActualReturnDate:   nil,
		BookID:             req.BookID,
		UserID:             actor.UserID,
	}

	created, err := s.lendBook(ctx, newBorrowing)
	if err != nil {
		return Borrowing{}, err
	}

	s.logger.Info("borrowing created",
		zap.Stringer("borrowing_id", created.ID),
		zap.Stringer("book_id", created.BookID),
		zap.Stringer("user_id", created.UserID),
	)
	s.notify(func(ctx context.Context) error {
		return s.ntfy.BorrowingCreated(ctx, created, b.Title)
	}, "borrowing_created")

	return created, nil
}

func (s *Service) lendBook(ctx context.Context, newBorrowing Borrowing) (created Borrowing, err error) {
	tx, done, err := s.begin(ctx)
	if err != nil {
		return Borrowing{}, repoError("CreateBorrowing", err)
	}
	defer done(&err)

	locked, err := tx.GetBookForUpdate(ctx, newBorrowing.BookID)
	if err != nil {
		return Borrowing{}, repoError("CreateBorrowing", err)
	}
	if err = ValidateInventoryAvailable(locked.Inventory); err != nil {
		return Borrowing{}, err
	}

	created, err = tx.CreateBorrowing(ctx, newBorrowing)
	if err != nil {
		return Borrowing{}, repoError("CreateBorrowing", err)
	}
	if _, err = tx.AdjustBookInventory(ctx, newBorrowing.BookID, -1); err != nil {
		return Borrowing{}, repoError("CreateBorrowing", err)
	}
	return created, nil
}

/* Closes an active borrowing on today's date and puts the copy back into the inventory.
A borrowing can only be returned once. */
func (s *Service) ReturnBorrowing(ctx context.Context, actor Actor, id uuid.UUID) (Borrowing, error) {
	if !actor.Authenticated {
		return Borrowing{}, ErrResponseUnauthenticated
	}

	stored, err := s.repo.GetBorrowingByID(ctx, id)
	if err != nil {
		return Borrowing{}, repoError("ReturnBorrowing", err)
	}
	if err := Authorize(actor, ActionReturnBorrowing, Resource{OwnerID: stored.UserID}); err != nil {
		return Borrowing{}, err
	}
	if !stored.IsActive() {
		return Borrowing{}, ErrBorrowingAlreadyReturned
	}

	returned, b, err := s.takeBookBack(ctx, id, s.today())
	if err != nil {
		return Borrowing{}, err
	}

	s.logger.Info("borrowing returned",
		zap.Stringer("borrowing_id", returned.ID),
		zap.Stringer("book_id", returned.BookID),
		zap.Int("inventory", b.Inventory),
	)
	s.notify(func(ctx context.Context) error {
		return s.ntfy.BorrowingReturned(ctx, returned, b.Title)
	}, "borrowing_returned")

	return returned, nil
}

func (s *Service) takeBookBack(ctx context.Context, id uuid.UUID, today time.Time) (returned Borrowing, b Book, err error) {
	tx, done, err := s.begin(ctx)
	if err != nil {
		return Borrowing{}, Book{}, repoError("ReturnBorrowing", err)
	}
	defer done(&err)

	locked, err := tx.GetBorrowingForUpdate(ctx, id)
	if err != nil {
		return Borrowing{}, Book{}, repoError("ReturnBorrowing", err)
	}
	if !locked.IsActive() {
		return Borrowing{}, Book{}, ErrBorrowingAlreadyReturned
	}

	// The day may have turned while waiting for the lock.
	if err = ValidateActualReturnDate(&today, s.today()); err != nil {
		return Borrowing{}, Book{}, err
	}

	returned, err = tx.SetBorrowingReturnDate(ctx, id, today)
	if err != nil {
		return Borrowing{}, Book{}, repoError("ReturnBorrowing", err)
	}
	b, err = tx.AdjustBookInventory(ctx, locked.BookID, 1)
	if err != nil {
		return Borrowing{}, Book{}, repoError("ReturnBorrowing", err)
	}
	return returned, b, nil
}

// ErrBorrowingAlreadyReturned is reported when closing a borrowing that is not active anymore.
var ErrBorrowingAlreadyReturned = NewValidationError(CodeAlreadyReturned, "actual_return_date", "this borrowing has already been returned.")

func (s *Service) GetBorrowing(ctx context.Context, actor Actor, id uuid.UUID) (Borrowing, error) {
	if !actor.Authenticated {
		return Borrowing{}, ErrResponseUnauthenticated
	}

	b, err := s.repo.GetBorrowingByID(ctx, id)
	if err != nil {
		return Borrowing{}, repoError("GetBorrowing", err)
	}
	if err := Authorize(actor, ActionViewBorrowing, Resource{OwnerID: b.UserID}); err != nil {
		return Borrowing{}, err
	}
	return b, nil
}

/* Lists borrowings. Callers that are not admins only ever see their own, whatever user filter they sent. */
func (s *Service) ListBorrowings(ctx context.Context, actor Actor, req ListBorrowingsRequest) (PagedBorrowings, error) {
	if err := Authorize(actor, ActionListBorrowings, Resource{}); err != nil {
		return PagedBorrowings{}, err
	}

	filter := req.Filter
	if Authorize(actor, ActionFilterBorrowingsByUser, Resource{}) != nil {
		own := actor.UserID
		filter.UserID = &own
	}

	itemsTotal, err := s.repo.ListBorrowingsTotals(ctx, filter)
	if err != nil {
		return PagedBorrowings{}, repoError("ListBorrowingsTotals", err)
	}
	if itemsTotal == 0 {
		return PagedBorrowings{Results: []Borrowing{}}, nil
	}

	pageTotal, err := pageCount(itemsTotal, req.Page, req.PageSize)
	if err != nil {
		return PagedBorrowings{}, err
	}

	borrowings, err := s.repo.ListBorrowings(ctx, filter, req.Page, req.PageSize)
	if err != nil {
		return PagedBorrowings{}, repoError("ListBorrowings", err)
	}

	return PagedBorrowings{
		PageCurrent: req.Page,
		PageTotal:   pageTotal,
		PageSize:    req.PageSize,
		ItemsTotal:  itemsTotal,
		Results:     borrowings,
	}, nil
}
