package database_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/database"
	"github.com/library-service/cmd/api/library"
	"github.com/matryer/is"
	"github.com/shopspring/decimal"

	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var store *database.Store
var sqlDB *sql.DB
var ctx context.Context = context.Background()

// TestMain is called before all the tests run.
// These tests need a running postgres, so they are skipped when DATABASE_URL is not set.
func TestMain(m *testing.M) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Println("DATABASE_URL is not set, skipping database tests")
		os.Exit(0)
	}

	var err error
	sqlDB, err = database.ConnectDb(connStr)
	if err != nil {
		log.Fatalln(err)
	}

	store = database.NewStore(sqlDB)
	path := os.Getenv("DATABASE_MIGRATIONS_PATH")
	if path == "" {
		path = "../../../migrations"
	}
	err = database.MigrationUp(store, path)
	if err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalln(err)
		}
		log.Println(err)
	}

	os.Exit(m.Run())
}

func TestCreateAuthor(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("creates and lists authors without errors", func(t *testing.T) {
		is := is.New(t)

		a := library.Author{ID: uuid.New(), FirstName: "Ursula", LastName: "Le Guin"}
		newAuthor, err := store.CreateAuthor(ctx, a)
		is.NoErr(err)
		is.Equal(newAuthor, a)

		authors, err := store.ListAuthors(ctx)
		is.NoErr(err)
		is.Equal(authors, []library.Author{a})
	})

	t.Run("gets authors by ids skipping the unknown ones", func(t *testing.T) {
		is := is.New(t)

		a := newAuthor(t)
		authors, err := store.GetAuthorsByIDs(ctx, []uuid.UUID{a.ID, uuid.New()})
		is.NoErr(err)
		is.Equal(authors, []library.Author{a})
	})
}

func TestCreateBook(t *testing.T) {
	// Removing all data from the test database.
	// We don't want to the database to be tainted with
	// this test data in another tests.
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("creates a book with its authors without errors", func(t *testing.T) {
		is := is.New(t)

		b := sampleBook(newAuthor(t).ID, newAuthor(t).ID)
		created, err := store.CreateBook(ctx, b)
		is.NoErr(err)
		compareBooks(is, created, b)
	})

	t.Run("creating a book with an unknown author returns author not found", func(t *testing.T) {
		is := is.New(t)

		b := sampleBook(uuid.New())
		_, err := store.CreateBook(ctx, b)
		is.True(errors.Is(err, library.ErrResponseAuthorNotFound))

		_, err = store.GetBookByID(ctx, b.ID)
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestGetBook(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("Gets a book by ID without errors", func(t *testing.T) {
		is := is.New(t)

		b := sampleBook(newAuthor(t).ID)
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)

		returnedBook, err := store.GetBookByID(ctx, b.ID)
		is.NoErr(err)
		compareBooks(is, returnedBook, b)
	})

	t.Run("Gets an non existing book should return a not found error", func(t *testing.T) {
		is := is.New(t)

		returnedBook, err := store.GetBookByID(ctx, uuid.New())
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
		is.Equal(returnedBook.ID, uuid.Nil)
	})
}

func TestUpdateBook(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("updates a book and replaces its authors without errors", func(t *testing.T) {
		is := is.New(t)

		b := sampleBook(newAuthor(t).ID)
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)

		b.Title = "The book is now updated"
		b.Cover = library.CoverHard
		b.DailyFee = decimal.RequireFromString("2.75")
		b.Authors = []uuid.UUID{newAuthor(t).ID}

		updated, err := store.UpdateBook(ctx, b)
		is.NoErr(err)
		compareBooks(is, updated, b)
	})

	t.Run("Updates an non existing book should return a not found error", func(t *testing.T) {
		is := is.New(t)

		_, err := store.UpdateBook(ctx, sampleBook())
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestAdjustBookInventory(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("moves the inventory in both directions", func(t *testing.T) {
		is := is.New(t)

		b := sampleBook(newAuthor(t).ID)
		b.Inventory = 1
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)

		adjusted, err := store.AdjustBookInventory(ctx, b.ID, -1)
		is.NoErr(err)
		is.Equal(adjusted.Inventory, 0)

		adjusted, err = store.AdjustBookInventory(ctx, b.ID, 1)
		is.NoErr(err)
		is.Equal(adjusted.Inventory, 1)
	})

	t.Run("refuses to go below zero", func(t *testing.T) {
		is := is.New(t)

		b := sampleBook(newAuthor(t).ID)
		b.Inventory = 0
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)

		_, err = store.AdjustBookInventory(ctx, b.ID, -1)
		var vErr library.ValidationError
		is.True(errors.As(err, &vErr))
		is.Equal(vErr.Code, library.CodeInventoryExhausted)

		stored, err := store.GetBookByID(ctx, b.ID)
		is.NoErr(err)
		is.Equal(stored.Inventory, 0)
	})

	t.Run("adjusting an unknown book returns not found", func(t *testing.T) {
		is := is.New(t)

		_, err := store.AdjustBookInventory(ctx, uuid.New(), 1)
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestDeleteBook(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	t.Run("deletes a book and its borrowings", func(t *testing.T) {
		is := is.New(t)

		b := sampleBook(newAuthor(t).ID)
		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)
		br := sampleBorrowing(b.ID, uuid.New())
		_, err = store.CreateBorrowing(ctx, br)
		is.NoErr(err)

		is.NoErr(store.DeleteBook(ctx, b.ID))

		_, err = store.GetBookByID(ctx, b.ID)
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
		_, err = store.GetBorrowingByID(ctx, br.ID)
		is.True(errors.Is(err, library.ErrResponseBorrowingNotFound))
	})

	t.Run("deleting an unknown book returns not found", func(t *testing.T) {
		is := is.New(t)

		err := store.DeleteBook(ctx, uuid.New())
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})
}

func TestListBooks(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	is := is.New(t)
	var testBookslist []library.Book
	listSize := 30

	t.Run("List books without errors even if there is no books in the database", func(t *testing.T) {
		is := is.New(t)

		returnedBooks, err := store.ListBooks(ctx, library.BookFilter{}, 1, 30)
		is.NoErr(err)
		is.Equal(returnedBooks, []library.Book{})
	})

	// Setting up, creating books to be listed. Even books are written by one author, odd books by another.
	evenAuthor, oddAuthor := newAuthor(t), newAuthor(t)
	for i := 0; i < listSize; i++ {
		author := evenAuthor.ID
		if i%2 == 1 {
			author = oddAuthor.ID
		}
		b := sampleBook(author)
		b.Title = fmt.Sprintf("Book number %06v", i)

		_, err := store.CreateBook(ctx, b)
		is.NoErr(err)
		testBookslist = append(testBookslist, b)
	}

	t.Run("List all books, no filtering, without errors.", func(t *testing.T) {
		is := is.New(t)

		itemsTotal, err := store.ListBooksTotals(ctx, library.BookFilter{})
		is.NoErr(err)
		is.Equal(itemsTotal, listSize)
		returnedBooks, err := store.ListBooks(ctx, library.BookFilter{}, 1, 30)
		is.NoErr(err)
		is.Equal(len(returnedBooks), listSize)
		for i, expected := range testBookslist {
			compareBooks(is, returnedBooks[i], expected)
		}
	})

	t.Run("List books with limited page size, without errors.", func(t *testing.T) {
		is := is.New(t)

		for p := 1; p <= 3; p++ {
			returnedBooks, err := store.ListBooks(ctx, library.BookFilter{}, p, 10)
			is.NoErr(err)
			is.Equal(len(returnedBooks), 10)
			for i, expected := range testBookslist[(p-1)*10 : p*10] {
				compareBooks(is, returnedBooks[i], expected)
			}
		}
	})

	t.Run("List books filtering by partial title, case insensitive", func(t *testing.T) {
		is := is.New(t)

		for i := 0; i < listSize; i++ {
			filter := library.BookFilter{Title: fmt.Sprintf("NUMBER %06v", i)}
			returnedBook, err := store.ListBooks(ctx, filter, 1, 30)
			is.NoErr(err)
			is.Equal(len(returnedBook), 1)
			compareBooks(is, returnedBook[0], testBookslist[i])
		}
	})

	t.Run("Like wildcards in the title filter are taken literally", func(t *testing.T) {
		is := is.New(t)

		itemsTotal, err := store.ListBooksTotals(ctx, library.BookFilter{Title: "%"})
		is.NoErr(err)
		is.Equal(itemsTotal, 0)
	})

	t.Run("List books filtering by author", func(t *testing.T) {
		is := is.New(t)

		filter := library.BookFilter{Authors: []uuid.UUID{oddAuthor.ID}}
		itemsTotal, err := store.ListBooksTotals(ctx, filter)
		is.NoErr(err)
		is.Equal(itemsTotal, listSize/2)

		returnedBooks, err := store.ListBooks(ctx, filter, 1, 30)
		is.NoErr(err)
		for _, b := range returnedBooks {
			is.Equal(b.Authors, []uuid.UUID{oddAuthor.ID})
		}

		filter.Authors = append(filter.Authors, evenAuthor.ID)
		itemsTotal, err = store.ListBooksTotals(ctx, filter)
		is.NoErr(err)
		is.Equal(itemsTotal, listSize)
	})
}

func TestBorrowings(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	is := is.New(t)
	b := sampleBook(newAuthor(t).ID)
	_, err := store.CreateBook(ctx, b)
	is.NoErr(err)

	t.Run("creates and gets a borrowing", func(t *testing.T) {
		is := is.New(t)

		br := sampleBorrowing(b.ID, uuid.New())
		created, err := store.CreateBorrowing(ctx, br)
		is.NoErr(err)
		is.Equal(created, br)

		fetched, err := store.GetBorrowingByID(ctx, br.ID)
		is.NoErr(err)
		is.Equal(fetched, br)
	})

	t.Run("creating a borrowing of an unknown book returns book not found", func(t *testing.T) {
		is := is.New(t)

		_, err := store.CreateBorrowing(ctx, sampleBorrowing(uuid.New(), uuid.New()))
		is.True(errors.Is(err, library.ErrResponseBookNotFound))
	})

	t.Run("getting an unknown borrowing returns not found", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetBorrowingByID(ctx, uuid.New())
		is.True(errors.Is(err, library.ErrResponseBorrowingNotFound))
	})

	t.Run("sets the return date only once", func(t *testing.T) {
		is := is.New(t)

		br := sampleBorrowing(b.ID, uuid.New())
		_, err := store.CreateBorrowing(ctx, br)
		is.NoErr(err)

		returnDate := library.Today(time.Now())
		returned, err := store.SetBorrowingReturnDate(ctx, br.ID, returnDate)
		is.NoErr(err)
		is.True(returned.ActualReturnDate != nil)
		is.True(returned.ActualReturnDate.Equal(returnDate))
		is.True(!returned.IsActive())

		_, err = store.SetBorrowingReturnDate(ctx, br.ID, returnDate)
		is.True(errors.Is(err, library.ErrBorrowingAlreadyReturned))

		_, err = store.SetBorrowingReturnDate(ctx, uuid.New(), returnDate)
		is.True(errors.Is(err, library.ErrResponseBorrowingNotFound))
	})
}

func TestListBorrowings(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	is := is.New(t)
	b := sampleBook(newAuthor(t).ID)
	_, err := store.CreateBook(ctx, b)
	is.NoErr(err)

	alice, bob := uuid.New(), uuid.New()
	for i := 0; i < 3; i++ {
		_, err := store.CreateBorrowing(ctx, sampleBorrowing(b.ID, alice))
		is.NoErr(err)
	}
	returnedOne := sampleBorrowing(b.ID, bob)
	_, err = store.CreateBorrowing(ctx, returnedOne)
	is.NoErr(err)
	_, err = store.SetBorrowingReturnDate(ctx, returnedOne.ID, time.Now())
	is.NoErr(err)

	cases := []struct {
		name   string
		filter library.BorrowingFilter
		want   int
	}{
		{"no filter", library.BorrowingFilter{}, 4},
		{"by user", library.BorrowingFilter{UserID: &alice}, 3},
		{"active only", library.BorrowingFilter{IsActive: toPointer(true)}, 3},
		{"returned only", library.BorrowingFilter{IsActive: toPointer(false)}, 1},
		{"by user and returned", library.BorrowingFilter{UserID: &alice, IsActive: toPointer(false)}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			itemsTotal, err := store.ListBorrowingsTotals(ctx, tc.filter)
			is.NoErr(err)
			is.Equal(itemsTotal, tc.want)

			borrowings, err := store.ListBorrowings(ctx, tc.filter, 1, 1000)
			is.NoErr(err)
			is.Equal(len(borrowings), tc.want)
		})
	}
}

func TestConcurrentInventoryDecrements(t *testing.T) {
	t.Cleanup(func() {
		teardownDB(t)
	})

	is := is.New(t)
	b := sampleBook(newAuthor(t).ID)
	b.Inventory = 5
	_, err := store.CreateBook(ctx, b)
	is.NoErr(err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txRepo, tx, err := store.BeginTx(ctx, nil)
			if err != nil {
				return
			}
			locked, err := txRepo.GetBookForUpdate(ctx, b.ID)
			if err != nil || locked.Inventory <= 0 {
				tx.Rollback()
				return
			}
			if _, err := txRepo.AdjustBookInventory(ctx, b.ID, -1); err != nil {
				tx.Rollback()
				return
			}
			if tx.Commit() == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	is.Equal(succeeded, 5)
	stored, err := store.GetBookByID(ctx, b.ID)
	is.NoErr(err)
	is.Equal(stored.Inventory, 0)
}

func TestDownMigrations(t *testing.T) {
	is := is.New(t)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	is.NoErr(err)

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", "../../../migrations"),
		"postgres", driver)
	is.NoErr(err)

	t.Cleanup(func() {
		is.NoErr(m.Up())
	})

	err = m.Down()
	is.NoErr(err)
	sqlStatement := `SELECT EXISTS (
		SELECT FROM
			pg_tables
		WHERE
			schemaname = 'public' AND
			tablename  IN ('authors', 'books', 'book_authors', 'borrowings')
		);`
	check := sqlDB.QueryRow(sqlStatement)
	var tableExists bool
	err = check.Scan(&tableExists)
	is.NoErr(err)
	is.True(!tableExists)
}

func newAuthor(t *testing.T) library.Author {
	t.Helper()
	is := is.New(t)

	a, err := store.CreateAuthor(ctx, library.Author{ID: uuid.New(), FirstName: "Jane", LastName: "Doe"})
	is.NoErr(err)
	return a
}

func sampleBook(authors ...uuid.UUID) library.Book {
	return library.Book{
		ID:        uuid.New(),
		Title:     "A new book",
		Authors:   authors,
		Cover:     library.CoverSoft,
		Inventory: 10,
		DailyFee:  decimal.RequireFromString("1.50"),
	}
}

func sampleBorrowing(bookID, userID uuid.UUID) library.Borrowing {
	today := library.Today(time.Now())
	return library.Borrowing{
		ID:                 uuid.New(),
		BorrowDate:         today,
		ExpectedReturnDate: today.AddDate(0, 0, 7),
		BookID:             bookID,
		UserID:             userID,
	}
}

// compareBooks asserts that two books are equal,
// handling decimal values and author order correctly.
func compareBooks(is *is.I, a, b library.Book) {
	is.Helper()

	// Make sure we have the same fee.
	is.True(a.DailyFee.Equal(b.DailyFee))

	// Overwrite to be able to compare them.
	b.DailyFee = a.DailyFee
	a.Authors = sortedIDs(a.Authors)
	b.Authors = sortedIDs(b.Authors)

	// Assert that they are equal.
	is.Equal(a, b)
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func toPointer[T any](v T) *T {
	return &v
}

func teardownDB(t *testing.T) {
	is := is.New(t)

	// Truncating all tables, cleaning up all the records.
	_, err := sqlDB.Exec(`TRUNCATE TABLE public.borrowings, public.book_authors, public.books, public.authors CASCADE`)
	is.NoErr(err)
}
