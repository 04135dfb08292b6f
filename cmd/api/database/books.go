package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/library-service/cmd/api/library"
)

var dialect = goqu.Dialect("postgres")

const bookColumns = `b.id, b.title, b.cover, b.inventory, b.daily_fee,
	ARRAY(SELECT ba.author_id::text FROM book_authors ba WHERE ba.book_id = b.id ORDER BY ba.author_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (library.Book, error) {
	var b library.Book
	var cover string
	var authors pq.StringArray
	err := row.Scan(&b.ID, &b.Title, &cover, &b.Inventory, &b.DailyFee, &authors)
	if err != nil {
		return library.Book{}, err
	}
	b.Cover = library.Cover(cover)

	b.Authors, err = parseIDs(authors)
	if err != nil {
		return library.Book{}, err
	}
	return b, nil
}

func parseIDs(strs []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(strs))
	for _, s := range strs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parsing id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func idStrings(ids []uuid.UUID) []string {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, id.String())
	}
	return strs
}

/* Stores the book and its authors in a single statement, then reads it back. */
func (store *Store) CreateBook(ctx context.Context, bookEntry library.Book) (library.Book, error) {
	sqlStatement := `
	WITH new_book AS (
		INSERT INTO books (id, title, cover, inventory, daily_fee)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	)
	INSERT INTO book_authors (book_id, author_id)
	SELECT new_book.id, unnest($6::uuid[]) FROM new_book`
	_, err := store.exc.ExecContext(ctx, sqlStatement, bookEntry.ID, bookEntry.Title, string(bookEntry.Cover), bookEntry.Inventory, bookEntry.DailyFee, pq.Array(idStrings(bookEntry.Authors)))
	if err != nil {
		return library.Book{}, fmt.Errorf("storing book on db: %w", constraintError(err))
	}

	return store.GetBookByID(ctx, bookEntry.ID)
}

/* Searches a book in database based on ID and returns it if succeed. */
func (store *Store) GetBookByID(ctx context.Context, id uuid.UUID) (library.Book, error) {
	sqlStatement := `SELECT ` + bookColumns + `
	FROM books b
	WHERE b.id = $1;`
	b, err := scanBook(store.exc.QueryRowContext(ctx, sqlStatement, id))
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return library.Book{}, fmt.Errorf("searching by ID: %w", library.ErrResponseBookNotFound)
		default:
			return library.Book{}, fmt.Errorf("searching by ID: %w", err)
		}
	}
	return b, nil
}

/* Same as GetBookByID, but locks the row until the surrounding transaction ends. */
func (store *Store) GetBookForUpdate(ctx context.Context, id uuid.UUID) (library.Book, error) {
	sqlStatement := `SELECT ` + bookColumns + `
	FROM books b
	WHERE b.id = $1
	FOR UPDATE OF b;`
	b, err := scanBook(store.exc.QueryRowContext(ctx, sqlStatement, id))
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return library.Book{}, fmt.Errorf("locking book: %w", library.ErrResponseBookNotFound)
		default:
			return library.Book{}, fmt.Errorf("locking book: %w", err)
		}
	}
	return b, nil
}

/* Updates the catalog fields of a book and replaces its authors. Inventory is left alone.
Must run inside a transaction, since it takes more than one statement. */
func (store *Store) UpdateBook(ctx context.Context, bookEntry library.Book) (library.Book, error) {
	sqlStatement := `
	UPDATE books
	SET title = $2, cover = $3, daily_fee = $4
	WHERE id = $1`
	result, err := store.exc.ExecContext(ctx, sqlStatement, bookEntry.ID, bookEntry.Title, string(bookEntry.Cover), bookEntry.DailyFee)
	if err != nil {
		return library.Book{}, fmt.Errorf("updating on db: %w", constraintError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return library.Book{}, fmt.Errorf("updating on db: %w", err)
	}
	if affected == 0 {
		return library.Book{}, fmt.Errorf("updating on db: %w", library.ErrResponseBookNotFound)
	}

	_, err = store.exc.ExecContext(ctx, `DELETE FROM book_authors WHERE book_id = $1`, bookEntry.ID)
	if err != nil {
		return library.Book{}, fmt.Errorf("updating book authors on db: %w", err)
	}

	_, err = store.exc.ExecContext(ctx, `
	INSERT INTO book_authors (book_id, author_id)
	SELECT $1, unnest($2::uuid[])`, bookEntry.ID, pq.Array(idStrings(bookEntry.Authors)))
	if err != nil {
		return library.Book{}, fmt.Errorf("updating book authors on db: %w", constraintError(err))
	}

	return store.GetBookByID(ctx, bookEntry.ID)
}

/* Adds delta to the inventory of a book. The check constraint on the column refuses any
result below zero. */
func (store *Store) AdjustBookInventory(ctx context.Context, id uuid.UUID, delta int) (library.Book, error) {
	sqlStatement := `
	UPDATE books AS b
	SET inventory = b.inventory + $2
	WHERE b.id = $1
	RETURNING ` + bookColumns
	b, err := scanBook(store.exc.QueryRowContext(ctx, sqlStatement, id, delta))
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return library.Book{}, fmt.Errorf("adjusting inventory on db: %w", library.ErrResponseBookNotFound)
		default:
			return library.Book{}, fmt.Errorf("adjusting inventory on db: %w", constraintError(err))
		}
	}
	return b, nil
}

func (store *Store) DeleteBook(ctx context.Context, id uuid.UUID) error {
	result, err := store.exc.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting book on db: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting book on db: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deleting book on db: %w", library.ErrResponseBookNotFound)
	}
	return nil
}

/* Builds the filtered books query shared by the listing and the counting. */
func booksDataset(filter library.BookFilter) *goqu.SelectDataset {
	ds := dialect.From(goqu.T("books").As("b"))
	if filter.Title != "" {
		ds = ds.Where(goqu.I("b.title").ILike("%" + escapeLike(filter.Title) + "%"))
	}
	if len(filter.Authors) > 0 {
		withAuthors := dialect.From("book_authors").
			Select("book_id").
			Where(goqu.C("author_id").In(idStrings(filter.Authors)))
		ds = ds.Where(goqu.I("b.id").In(withAuthors))
	}
	return ds
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

/* Returns filtered content of database in a list of books*/
func (store *Store) ListBooks(ctx context.Context, filter library.BookFilter, page, pageSize int) ([]library.Book, error) {
	sqlStatement, args, err := booksDataset(filter).
		Select(goqu.L(bookColumns)).
		Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc()).
		Limit(uint(pageSize)).
		Offset(uint((page - 1) * pageSize)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building books query: %w", err)
	}

	rows, err := store.exc.QueryContext(ctx, sqlStatement, args...)
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}
	defer rows.Close()

	bookslist := []library.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("listing books from db: %w", err)
		}
		bookslist = append(bookslist, b)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}
	return bookslist, nil
}

/* Counts how many rows in db fit the specified filter parameters. */
func (store *Store) ListBooksTotals(ctx context.Context, filter library.BookFilter) (int, error) {
	sqlStatement, args, err := booksDataset(filter).
		Select(goqu.COUNT("*")).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building books count query: %w", err)
	}

	var count int
	err = store.exc.QueryRowContext(ctx, sqlStatement, args...).Scan(&count)
	if err != nil {
		return count, fmt.Errorf("counting books from db: %w", err)
	}
	return count, nil
}
