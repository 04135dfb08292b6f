package library

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Cover string

const (
	CoverHard Cover = "HARD"
	CoverSoft Cover = "SOFT"
)

func (c Cover) Valid() bool {
	return c == CoverHard || c == CoverSoft
}

type Author struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
}

func (a Author) FullName() string {
	return a.FirstName + " " + a.LastName
}

type Book struct {
	ID        uuid.UUID
	Title     string
	Authors   []uuid.UUID
	Cover     Cover
	Inventory int
	DailyFee  decimal.Decimal
}

const (
	TitleMaxLength      = 155
	AuthorNameMaxLength = 65
)

// DailyFeeMax is the largest fee that fits five digits with two decimal places.
var DailyFeeMax = decimal.RequireFromString("999.99")

type BookFilter struct {
	Title   string
	Authors []uuid.UUID
}

type PagedBooks struct {
	PageCurrent int
	PageTotal   int
	PageSize    int
	ItemsTotal  int
	Results     []Book
}

type CreateAuthorRequest struct {
	FirstName string
	LastName  string
}

type CreateBookRequest struct {
	Title     string
	Authors   []uuid.UUID
	Cover     Cover
	Inventory int
	DailyFee  decimal.Decimal
}

// UpdateBookRequest carries the fields to change. Nil fields are left as
// they are; inventory is not part of it since only borrowings move it.
type UpdateBookRequest struct {
	ID       uuid.UUID
	Title    *string
	Authors  *[]uuid.UUID
	Cover    *Cover
	DailyFee *decimal.Decimal
}

type ListBooksRequest struct {
	Filter   BookFilter
	Page     int
	PageSize int
}

func (s *Service) CreateAuthor(ctx context.Context, actor Actor, req CreateAuthorRequest) (Author, error) {
	if err := Authorize(actor, ActionManageCatalog, Resource{}); err != nil {
		return Author{}, err
	}

	a := Author{
		ID:        uuid.New(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if err := ValidateAuthor(a); err != nil {
		return Author{}, err
	}

	created, err := s.repo.CreateAuthor(ctx, a)
	if err != nil {
		return Author{}, repoError("CreateAuthor", err)
	}
	return created, nil
}

func (s *Service) ListAuthors(ctx context.Context) ([]Author, error) {
	authors, err := s.repo.ListAuthors(ctx)
	if err != nil {
		return nil, repoError("ListAuthors", err)
	}
	return authors, nil
}

func (s *Service) CreateBook(ctx context.Context, actor Actor, req CreateBookRequest) (Book, error) {
	if err := Authorize(actor, ActionManageCatalog, Resource{}); err != nil {
		return Book{}, err
	}

	newBook := Book{
		ID:        uuid.New(),
		Title:     req.Title,
		Authors:   dedupIDs(req.Authors),
		Cover:     req.Cover,
		Inventory: req.Inventory,
		DailyFee:  req.DailyFee,
	}
	if err := ValidateBook(newBook); err != nil {
		return Book{}, err
	}

	created, err := s.repo.CreateBook(ctx, newBook)
	if err != nil {
		return Book{}, repoError("CreateBook", err)
	}
	s.logger.Info("book created", zap.Stringer("book_id", created.ID), zap.Int("inventory", created.Inventory))
	return created, nil
}

func (s *Service) GetBook(ctx context.Context, id uuid.UUID) (Book, error) {
	b, err := s.repo.GetBookByID(ctx, id)
	if err != nil {
		return Book{}, repoError("GetBook", err)
	}
	return b, nil
}

// GetBookAuthors resolves the author ids of a book into Author values.
func (s *Service) GetBookAuthors(ctx context.Context, b Book) ([]Author, error) {
	authors, err := s.repo.GetAuthorsByIDs(ctx, b.Authors)
	if err != nil {
		return nil, repoError("GetBookAuthors", err)
	}
	return authors, nil
}

func (s *Service) UpdateBook(ctx context.Context, actor Actor, req UpdateBookRequest) (updated Book, err error) {
	if err = Authorize(actor, ActionManageCatalog, Resource{}); err != nil {
		return Book{}, err
	}

	tx, done, err := s.begin(ctx)
	if err != nil {
		return Book{}, repoError("UpdateBook", err)
	}
	defer done(&err)

	stored, err := tx.GetBookForUpdate(ctx, req.ID)
	if err != nil {
		return Book{}, repoError("UpdateBook", err)
	}

	if req.Title != nil {
		stored.Title = *req.Title
	}
	if req.Authors != nil {
		stored.Authors = dedupIDs(*req.Authors)
	}
	if req.Cover != nil {
		stored.Cover = *req.Cover
	}
	if req.DailyFee != nil {
		stored.DailyFee = *req.DailyFee
	}
	if err = ValidateBook(stored); err != nil {
		return Book{}, err
	}

	updated, err = tx.UpdateBook(ctx, stored)
	if err != nil {
		return Book{}, repoError("UpdateBook", err)
	}
	return updated, nil
}

func (s *Service) DeleteBook(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := Authorize(actor, ActionManageCatalog, Resource{}); err != nil {
		return err
	}

	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return repoError("DeleteBook", err)
	}
	s.logger.Info("book deleted", zap.Stringer("book_id", id))
	return nil
}

func (s *Service) ListBooks(ctx context.Context, req ListBooksRequest) (PagedBooks, error) {
	itemsTotal, err := s.repo.ListBooksTotals(ctx, req.Filter)
	if err != nil {
		return PagedBooks{}, repoError("ListBooksTotals", err)
	}
	if itemsTotal == 0 {
		return PagedBooks{Results: []Book{}}, nil
	}

	pageTotal, err := pageCount(itemsTotal, req.Page, req.PageSize)
	if err != nil {
		return PagedBooks{}, err
	}

	books, err := s.repo.ListBooks(ctx, req.Filter, req.Page, req.PageSize)
	if err != nil {
		return PagedBooks{}, repoError("ListBooks", err)
	}

	return PagedBooks{
		PageCurrent: req.Page,
		PageTotal:   pageTotal,
		PageSize:    req.PageSize,
		ItemsTotal:  itemsTotal,
		Results:     books,
	}, nil
}

/* Calculates how many pages the list has and checks that the asked page exists. */
func pageCount(itemsTotal, page, pageSize int) (int, error) {
	if page < 1 || pageSize < 1 {
		return 0, ErrResponseQueryPageInvalid
	}
	pageTotal := (itemsTotal + pageSize - 1) / pageSize
	if page > pageTotal {
		return 0, ErrResponseQueryPageOutOfRange
	}
	return pageTotal, nil
}

func dedupIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := []uuid.UUID{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Today returns the calendar date of t in UTC, at midnight.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
