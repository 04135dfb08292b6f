package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

const borrowingColumns = `id, borrow_date, expected_return_date, actual_return_date, book_id, user_id`

func scanBorrowing(row rowScanner) (library.Borrowing, error) {
	var b library.Borrowing
	var actual sql.NullTime
	err := row.Scan(&b.ID, &b.BorrowDate, &b.ExpectedReturnDate, &actual, &b.BookID, &b.UserID)
	if err != nil {
		return library.Borrowing{}, err
	}
	b.BorrowDate = library.Today(b.BorrowDate)
	b.ExpectedReturnDate = library.Today(b.ExpectedReturnDate)
	if actual.Valid {
		returned := library.Today(actual.Time)
		b.ActualReturnDate = &returned
	}
	return b, nil
}

/* Dates are sent as plain calendar dates so the session time zone can not shift them. */
func dateParam(t time.Time) string {
	return library.Today(t).Format("2006-01-02")
}

func (store *Store) CreateBorrowing(ctx context.Context, borrowingEntry library.Borrowing) (library.Borrowing, error) {
	sqlStatement := `
	INSERT INTO borrowings (id, borrow_date, expected_return_date, actual_return_date, book_id, user_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + borrowingColumns

	var actual sql.NullString
	if borrowingEntry.ActualReturnDate != nil {
		actual = sql.NullString{String: dateParam(*borrowingEntry.ActualReturnDate), Valid: true}
	}
	b, err := scanBorrowing(store.exc.QueryRowContext(ctx, sqlStatement,
		borrowingEntry.ID,
		dateParam(borrowingEntry.BorrowDate),
		dateParam(borrowingEntry.ExpectedReturnDate),
		actual,
		borrowingEntry.BookID,
		borrowingEntry.UserID,
	))
	if err != nil {
		return library.Borrowing{}, fmt.Errorf("storing borrowing on db: %w", constraintError(err))
	}
	return b, nil
}

func (store *Store) GetBorrowingByID(ctx context.Context, id uuid.UUID) (library.Borrowing, error) {
	sqlStatement := `SELECT ` + borrowingColumns + ` FROM borrowings WHERE id = $1`
	b, err := scanBorrowing(store.exc.QueryRowContext(ctx, sqlStatement, id))
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return library.Borrowing{}, fmt.Errorf("searching borrowing by ID: %w", library.ErrResponseBorrowingNotFound)
		default:
			return library.Borrowing{}, fmt.Errorf("searching borrowing by ID: %w", err)
		}
	}
	return b, nil
}

func (store *Store) GetBorrowingForUpdate(ctx context.Context, id uuid.UUID) (library.Borrowing, error) {
	sqlStatement := `SELECT ` + borrowingColumns + ` FROM borrowings WHERE id = $1 FOR UPDATE`
	b, err := scanBorrowing(store.exc.QueryRowContext(ctx, sqlStatement, id))
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return library.Borrowing{}, fmt.Errorf("locking borrowing: %w", library.ErrResponseBorrowingNotFound)
		default:
			return library.Borrowing{}, fmt.Errorf("locking borrowing: %w", err)
		}
	}
	return b, nil
}

/* Closes an active borrowing. A borrowing that was already returned is left untouched. */
func (store *Store) SetBorrowingReturnDate(ctx context.Context, id uuid.UUID, returnDate time.Time) (library.Borrowing, error) {
	sqlStatement := `
	UPDATE borrowings
	SET actual_return_date = $2
	WHERE id = $1 AND actual_return_date IS NULL
	RETURNING ` + borrowingColumns
	b, err := scanBorrowing(store.exc.QueryRowContext(ctx, sqlStatement, id, dateParam(returnDate)))
	if err == nil {
		return b, nil
	}
	if err != sql.ErrNoRows {
		return library.Borrowing{}, fmt.Errorf("returning borrowing on db: %w", constraintError(err))
	}

	if _, err := store.GetBorrowingByID(ctx, id); err != nil {
		return library.Borrowing{}, fmt.Errorf("returning borrowing on db: %w", err)
	}
	return library.Borrowing{}, fmt.Errorf("returning borrowing on db: %w", library.ErrBorrowingAlreadyReturned)
}

func borrowingsDataset(filter library.BorrowingFilter) *goqu.SelectDataset {
	ds := dialect.From("borrowings")
	if filter.UserID != nil {
		ds = ds.Where(goqu.C("user_id").Eq(filter.UserID.String()))
	}
	if filter.IsActive != nil {
		if *filter.IsActive {
			ds = ds.Where(goqu.C("actual_return_date").IsNull())
		} else {
			ds = ds.Where(goqu.C("actual_return_date").IsNotNull())
		}
	}
	return ds
}

/* Returns filtered borrowings, the most recent first. */
func (store *Store) ListBorrowings(ctx context.Context, filter library.BorrowingFilter, page, pageSize int) ([]library.Borrowing, error) {
	sqlStatement, args, err := borrowingsDataset(filter).
		Select(goqu.L(borrowingColumns)).
		Order(goqu.C("borrow_date").Desc(), goqu.C("id").Asc()).
		Limit(uint(pageSize)).
		Offset(uint((page - 1) * pageSize)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building borrowings query: %w", err)
	}

	rows, err := store.exc.QueryContext(ctx, sqlStatement, args...)
	if err != nil {
		return nil, fmt.Errorf("listing borrowings from db: %w", err)
	}
	defer rows.Close()

	borrowings := []library.Borrowing{}
	for rows.Next() {
		b, err := scanBorrowing(rows)
		if err != nil {
			return nil, fmt.Errorf("listing borrowings from db: %w", err)
		}
		borrowings = append(borrowings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing borrowings from db: %w", err)
	}
	return borrowings, nil
}

func (store *Store) ListBorrowingsTotals(ctx context.Context, filter library.BorrowingFilter) (int, error) {
	sqlStatement, args, err := borrowingsDataset(filter).
		Select(goqu.COUNT("*")).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building borrowings count query: %w", err)
	}

	var count int
	err = store.exc.QueryRowContext(ctx, sqlStatement, args...).Scan(&count)
	if err != nil {
		return count, fmt.Errorf("counting borrowings from db: %w", err)
	}
	return count, nil
}
