package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/library-service/cmd/api/library"
)

func (store *Store) CreateAuthor(ctx context.Context, authorEntry library.Author) (library.Author, error) {
	sqlStatement := `
	INSERT INTO authors (id, first_name, last_name)
	VALUES ($1, $2, $3)
	RETURNING id, first_name, last_name`
	var a library.Author
	err := store.exc.QueryRowContext(ctx, sqlStatement, authorEntry.ID, authorEntry.FirstName, authorEntry.LastName).
		Scan(&a.ID, &a.FirstName, &a.LastName)
	if err != nil {
		return library.Author{}, fmt.Errorf("storing author on db: %w", err)
	}
	return a, nil
}

func (store *Store) ListAuthors(ctx context.Context) ([]library.Author, error) {
	sqlStatement := `
	SELECT id, first_name, last_name
	FROM authors
	ORDER BY last_name, first_name, id`
	return store.queryAuthors(ctx, sqlStatement)
}

/* Returns the authors found among ids. Unknown ids are skipped. */
func (store *Store) GetAuthorsByIDs(ctx context.Context, ids []uuid.UUID) ([]library.Author, error) {
	if len(ids) == 0 {
		return []library.Author{}, nil
	}
	sqlStatement := `
	SELECT id, first_name, last_name
	FROM authors
	WHERE id = ANY($1::uuid[])
	ORDER BY last_name, first_name, id`
	return store.queryAuthors(ctx, sqlStatement, pq.Array(idStrings(ids)))
}

func (store *Store) queryAuthors(ctx context.Context, sqlStatement string, args ...any) ([]library.Author, error) {
	rows, err := store.exc.QueryContext(ctx, sqlStatement, args...)
	if err != nil {
		return nil, fmt.Errorf("listing authors from db: %w", err)
	}
	defer rows.Close()

	authors := []library.Author{}
	for rows.Next() {
		var a library.Author
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName); err != nil {
			return nil, fmt.Errorf("listing authors from db: %w", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing authors from db: %w", err)
	}
	return authors, nil
}
