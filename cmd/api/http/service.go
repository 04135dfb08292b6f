package http

import (
	"context"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

//go:generate mockgen -source=service.go -destination=mocks/mock_service.go -package=mocks
type ServiceAPI interface {
	CreateAuthor(ctx context.Context, actor library.Actor, req library.CreateAuthorRequest) (library.Author, error)
	ListAuthors(ctx context.Context) ([]library.Author, error)
	CreateBook(ctx context.Context, actor library.Actor, req library.CreateBookRequest) (library.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (library.Book, error)
	GetBookAuthors(ctx context.Context, b library.Book) ([]library.Author, error)
	UpdateBook(ctx context.Context, actor library.Actor, req library.UpdateBookRequest) (library.Book, error)
	DeleteBook(ctx context.Context, actor library.Actor, id uuid.UUID) error
	ListBooks(ctx context.Context, req library.ListBooksRequest) (library.PagedBooks, error)
	CreateBorrowing(ctx context.Context, actor library.Actor, req library.CreateBorrowingRequest) (library.Borrowing, error)
	ReturnBorrowing(ctx context.Context, actor library.Actor, id uuid.UUID) (library.Borrowing, error)
	GetBorrowing(ctx context.Context, actor library.Actor, id uuid.UUID) (library.Borrowing, error)
	ListBorrowings(ctx context.Context, actor library.Actor, req library.ListBorrowingsRequest) (library.PagedBorrowings, error)
}

// Authenticator turns the Authorization header of a request into the actor it is made for.
type Authenticator interface {
	Actor(authHeader string) (library.Actor, error)
}
