package inmemory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/library-service/cmd/api/library"
	"github.com/shopspring/decimal"
)

type InMemoryStore struct {
	db  *memdb.MemDB
	exc *memdb.Txn
}

func NewInMemoryStore() (*InMemoryStore, error) {
	// Define the schema
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"author": {
				Name: "author",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			"book": {
				Name: "book",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			"borrowing": {
				Name: "borrowing",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"user_id": {
						Name:    "user_id",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
					"book_id": {
						Name:    "book_id",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "BookID"},
					},
				},
			},
		},
	}

	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("validating in-memory schema: %w", err)
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}
	return &InMemoryStore{db: db, exc: nil}, nil
}

type AdaptedAuthor struct {
	ID        string
	FirstName string
	LastName  string
}

func adaptAuthorIdToString(a library.Author) AdaptedAuthor {
	return AdaptedAuthor{
		ID:        a.ID.String(),
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}

func adaptAuthorIdToUUID(a AdaptedAuthor) library.Author {
	return library.Author{
		ID:        uuid.MustParse(a.ID),
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}

type AdaptedBook struct {
	ID        string
	Title     string
	Authors   []string
	Cover     string
	Inventory int
	DailyFee  decimal.Decimal
}

func adaptBookIdToString(bookEntry library.Book) AdaptedBook {
	authors := make([]string, 0, len(bookEntry.Authors))
	for _, id := range bookEntry.Authors {
		authors = append(authors, id.String())
	}
	return AdaptedBook{
		ID:        bookEntry.ID.String(),
		Title:     bookEntry.Title,
		Authors:   authors,
		Cover:     string(bookEntry.Cover),
		Inventory: bookEntry.Inventory,
		DailyFee:  bookEntry.DailyFee,
	}
}

func adaptBookIdToUUID(adptBook AdaptedBook) library.Book {
	authors := make([]uuid.UUID, 0, len(adptBook.Authors))
	for _, id := range adptBook.Authors {
		authors = append(authors, uuid.MustParse(id))
	}
	return library.Book{
		ID:        uuid.MustParse(adptBook.ID),
		Title:     adptBook.Title,
		Authors:   authors,
		Cover:     library.Cover(adptBook.Cover),
		Inventory: adptBook.Inventory,
		DailyFee:  adptBook.DailyFee,
	}
}

type AdaptedBorrowing struct {
	ID                 string
	BorrowDate         time.Time
	ExpectedReturnDate time.Time
	ActualReturnDate   *time.Time
	BookID             string
	UserID             string
}

func adaptBorrowingIdToString(b library.Borrowing) AdaptedBorrowing {
	adpt := AdaptedBorrowing{
		ID:                 b.ID.String(),
		BorrowDate:         library.Today(b.BorrowDate),
		ExpectedReturnDate: library.Today(b.ExpectedReturnDate),
		BookID:             b.BookID.String(),
		UserID:             b.UserID.String(),
	}
	if b.ActualReturnDate != nil {
		returned := library.Today(*b.ActualReturnDate)
		adpt.ActualReturnDate = &returned
	}
	return adpt
}

func adaptBorrowingIdToUUID(adpt AdaptedBorrowing) library.Borrowing {
	b := library.Borrowing{
		ID:                 uuid.MustParse(adpt.ID),
		BorrowDate:         adpt.BorrowDate,
		ExpectedReturnDate: adpt.ExpectedReturnDate,
		BookID:             uuid.MustParse(adpt.BookID),
		UserID:             uuid.MustParse(adpt.UserID),
	}
	if adpt.ActualReturnDate != nil {
		returned := *adpt.ActualReturnDate
		b.ActualReturnDate = &returned
	}
	return b
}

// -- Authors --

func (store *InMemoryStore) CreateAuthor(ctx context.Context, authorEntry library.Author) (library.Author, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	if err := txn.Insert("author", adaptAuthorIdToString(authorEntry)); err != nil {
		return library.Author{}, fmt.Errorf("storing author on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return authorEntry, nil
}

func (store *InMemoryStore) ListAuthors(ctx context.Context) ([]library.Author, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	it, err := txn.Get("author", "id")
	if err != nil {
		return nil, fmt.Errorf("listing authors from db: %w", err)
	}

	authors := []library.Author{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		authors = append(authors, adaptAuthorIdToUUID(obj.(AdaptedAuthor)))
	}
	sortAuthors(authors)
	return authors, nil
}

/* Returns the authors found among ids. Unknown ids are skipped. */
func (store *InMemoryStore) GetAuthorsByIDs(ctx context.Context, ids []uuid.UUID) ([]library.Author, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	authors := []library.Author{}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		raw, err := txn.First("author", "id", id.String())
		if err != nil {
			return nil, fmt.Errorf("searching authors by ID: %w", err)
		}
		if raw == nil {
			continue
		}
		authors = append(authors, adaptAuthorIdToUUID(raw.(AdaptedAuthor)))
	}
	sortAuthors(authors)
	return authors, nil
}

func sortAuthors(authors []library.Author) {
	sort.Slice(authors, func(i, j int) bool {
		if authors[i].LastName != authors[j].LastName {
			return authors[i].LastName < authors[j].LastName
		}
		if authors[i].FirstName != authors[j].FirstName {
			return authors[i].FirstName < authors[j].FirstName
		}
		return authors[i].ID.String() < authors[j].ID.String()
	})
}

func checkAuthorsExist(txn *memdb.Txn, ids []uuid.UUID) error {
	for _, id := range ids {
		raw, err := txn.First("author", "id", id.String())
		if err != nil {
			return err
		}
		if raw == nil {
			return library.ErrResponseAuthorNotFound
		}
	}
	return nil
}

// -- Books --

func (store *InMemoryStore) CreateBook(ctx context.Context, bookEntry library.Book) (library.Book, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	if err := checkAuthorsExist(txn, bookEntry.Authors); err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	err := txn.Insert("book", adaptBookIdToString(bookEntry))
	if err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	raw, err := txn.First("book", "id", bookEntry.ID.String())
	if err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", err)
	}
	if raw == nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", library.ErrResponseBookNotFound)
	}

	if !insideTx {
		txn.Commit()
	}

	return adaptBookIdToUUID(raw.(AdaptedBook)), nil
}

func (store *InMemoryStore) GetBookByID(ctx context.Context, id uuid.UUID) (library.Book, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("book", "id", id.String())
	if err != nil {
		return library.Book{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return library.Book{}, fmt.Errorf("searching by ID: %w", library.ErrResponseBookNotFound)
	}

	return adaptBookIdToUUID(raw.(AdaptedBook)), nil
}

/* Inside a transaction the write txn already holds the only writer lock of the db,
so reading the book is enough to keep it stable until the transaction ends. */
func (store *InMemoryStore) GetBookForUpdate(ctx context.Context, id uuid.UUID) (library.Book, error) {
	return store.GetBookByID(ctx, id)
}

func (store *InMemoryStore) UpdateBook(ctx context.Context, bookEntry library.Book) (library.Book, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("book", "id", bookEntry.ID.String())
	if err != nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", err)
	}
	if raw == nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", library.ErrResponseBookNotFound)
	}
	if err := checkAuthorsExist(txn, bookEntry.Authors); err != nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", err)
	}

	stored := raw.(AdaptedBook)
	updatedBook := adaptBookIdToString(bookEntry)
	//Inventory only moves through borrowings.
	updatedBook.Inventory = stored.Inventory

	if err := txn.Insert("book", updatedBook); err != nil {
		return library.Book{}, fmt.Errorf("updating book on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return adaptBookIdToUUID(updatedBook), nil
}

func (store *InMemoryStore) AdjustBookInventory(ctx context.Context, id uuid.UUID, delta int) (library.Book, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("book", "id", id.String())
	if err != nil {
		return library.Book{}, fmt.Errorf("adjusting inventory on db: %w", err)
	}
	if raw == nil {
		return library.Book{}, fmt.Errorf("adjusting inventory on db: %w", library.ErrResponseBookNotFound)
	}

	adjusted := raw.(AdaptedBook)
	adjusted.Inventory += delta
	if adjusted.Inventory < 0 {
		return library.Book{}, fmt.Errorf("adjusting inventory on db: %w", library.ValidateInventoryAvailable(0))
	}

	if err := txn.Insert("book", adjusted); err != nil {
		return library.Book{}, fmt.Errorf("adjusting inventory on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return adaptBookIdToUUID(adjusted), nil
}

/* Deletes the book together with its borrowings. */
func (store *InMemoryStore) DeleteBook(ctx context.Context, id uuid.UUID) error {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	count, err := txn.DeleteAll("book", "id", id.String())
	if err != nil {
		return fmt.Errorf("deleting book on db: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("deleting book on db: %w", library.ErrResponseBookNotFound)
	}
	if _, err := txn.DeleteAll("borrowing", "book_id", id.String()); err != nil {
		return fmt.Errorf("deleting book borrowings on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return nil
}

func (store *InMemoryStore) filterBooks(filter library.BookFilter) ([]library.Book, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	it, err := txn.Get("book", "id")
	if err != nil {
		return nil, err
	}

	title := strings.ToLower(filter.Title)
	books := []library.Book{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := obj.(AdaptedBook)
		if title != "" && !strings.Contains(strings.ToLower(b.Title), title) {
			continue
		}
		if len(filter.Authors) > 0 && !writtenByAny(b, filter.Authors) {
			continue
		}
		books = append(books, adaptBookIdToUUID(b))
	}

	sort.Slice(books, func(i, j int) bool {
		if books[i].Title != books[j].Title {
			return books[i].Title < books[j].Title
		}
		return books[i].ID.String() < books[j].ID.String()
	})
	return books, nil
}

func writtenByAny(b AdaptedBook, authors []uuid.UUID) bool {
	for _, want := range authors {
		for _, got := range b.Authors {
			if got == want.String() {
				return true
			}
		}
	}
	return false
}

func (store *InMemoryStore) ListBooks(ctx context.Context, filter library.BookFilter, page, pageSize int) ([]library.Book, error) {
	books, err := store.filterBooks(filter)
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}
	return paginate(books, page, pageSize), nil
}

func (store *InMemoryStore) ListBooksTotals(ctx context.Context, filter library.BookFilter) (int, error) {
	books, err := store.filterBooks(filter)
	if err != nil {
		return 0, fmt.Errorf("counting books from db: %w", err)
	}
	return len(books), nil
}

// -- Borrowings --

func (store *InMemoryStore) CreateBorrowing(ctx context.Context, borrowingEntry library.Borrowing) (library.Borrowing, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("book", "id", borrowingEntry.BookID.String())
	if err != nil {
		return library.Borrowing{}, fmt.Errorf("storing borrowing on db: %w", err)
	}
	if raw == nil {
		return library.Borrowing{}, fmt.Errorf("storing borrowing on db: %w", library.ErrResponseBookNotFound)
	}

	adpt := adaptBorrowingIdToString(borrowingEntry)
	if err := txn.Insert("borrowing", adpt); err != nil {
		return library.Borrowing{}, fmt.Errorf("storing borrowing on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return adaptBorrowingIdToUUID(adpt), nil
}

func (store *InMemoryStore) GetBorrowingByID(ctx context.Context, id uuid.UUID) (library.Borrowing, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("borrowing", "id", id.String())
	if err != nil {
		return library.Borrowing{}, fmt.Errorf("searching borrowing by ID: %w", err)
	}
	if raw == nil {
		return library.Borrowing{}, fmt.Errorf("searching borrowing by ID: %w", library.ErrResponseBorrowingNotFound)
	}
	return adaptBorrowingIdToUUID(raw.(AdaptedBorrowing)), nil
}

func (store *InMemoryStore) GetBorrowingForUpdate(ctx context.Context, id uuid.UUID) (library.Borrowing, error) {
	return store.GetBorrowingByID(ctx, id)
}

func (store *InMemoryStore) SetBorrowingReturnDate(ctx context.Context, id uuid.UUID, returnDate time.Time) (library.Borrowing, error) {
	txn, insideTx := store.txn(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("borrowing", "id", id.String())
	if err != nil {
		return library.Borrowing{}, fmt.Errorf("returning borrowing on db: %w", err)
	}
	if raw == nil {
		return library.Borrowing{}, fmt.Errorf("returning borrowing on db: %w", library.ErrResponseBorrowingNotFound)
	}

	returned := raw.(AdaptedBorrowing)
	if returned.ActualReturnDate != nil {
		return library.Borrowing{}, fmt.Errorf("returning borrowing on db: %w", library.ErrBorrowingAlreadyReturned)
	}
	date := library.Today(returnDate)
	returned.ActualReturnDate = &date

	if err := txn.Insert("borrowing", returned); err != nil {
		return library.Borrowing{}, fmt.Errorf("returning borrowing on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return adaptBorrowingIdToUUID(returned), nil
}

func (store *InMemoryStore) filterBorrowings(filter library.BorrowingFilter) ([]library.Borrowing, error) {
	txn, insideTx := store.txn(false)
	if !insideTx {
		defer txn.Abort()
	}

	var it memdb.ResultIterator
	var err error
	if filter.UserID != nil {
		it, err = txn.Get("borrowing", "user_id", filter.UserID.String())
	} else {
		it, err = txn.Get("borrowing", "id")
	}
	if err != nil {
		return nil, err
	}

	borrowings := []library.Borrowing{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		b := adaptBorrowingIdToUUID(obj.(AdaptedBorrowing))
		if filter.IsActive != nil && b.IsActive() != *filter.IsActive {
			continue
		}
		borrowings = append(borrowings, b)
	}

	sort.Slice(borrowings, func(i, j int) bool {
		if !borrowings[i].BorrowDate.Equal(borrowings[j].BorrowDate) {
			return borrowings[i].BorrowDate.After(borrowings[j].BorrowDate)
		}
		return borrowings[i].ID.String() < borrowings[j].ID.String()
	})
	return borrowings, nil
}

func (store *InMemoryStore) ListBorrowings(ctx context.Context, filter library.BorrowingFilter, page, pageSize int) ([]library.Borrowing, error) {
	borrowings, err := store.filterBorrowings(filter)
	if err != nil {
		return nil, fmt.Errorf("listing borrowings from db: %w", err)
	}
	return paginate(borrowings, page, pageSize), nil
}

func (store *InMemoryStore) ListBorrowingsTotals(ctx context.Context, filter library.BorrowingFilter) (int, error) {
	borrowings, err := store.filterBorrowings(filter)
	if err != nil {
		return 0, fmt.Errorf("counting borrowings from db: %w", err)
	}
	return len(borrowings), nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize < 1 {
		return []T{}
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// -- Transactions --

func (store *InMemoryStore) BeginTx(ctx context.Context, opts *sql.TxOptions) (library.Repository, driver.Tx, error) {
	txn := store.db.Txn(true)
	if txn == nil {
		return nil, nil, fmt.Errorf("failed to create transaction")
	}

	txWrapper := &TxWrapper{txn: txn}
	txStore := &InMemoryStore{
		db:  store.db,
		exc: txWrapper.txn,
	}

	return txStore, txWrapper, nil
}

type TxWrapper struct {
	txn *memdb.Txn
}

func (tx *TxWrapper) Commit() error {
	tx.txn.Commit()
	return nil
}

func (tx *TxWrapper) Rollback() error {
	tx.txn.Abort()
	return nil
}

/* Returns the txn a call must run on. A store made by BeginTx always answers with its own
transaction; any other store opens a fresh one that the caller has to finish. */
func (store *InMemoryStore) txn(write bool) (txn *memdb.Txn, insideTx bool) {
	if store.exc != nil {
		return store.exc, true
	}
	return store.db.Txn(write), false
}
