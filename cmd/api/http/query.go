package http

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

const (
	booksPageSizeMax      = 30
	borrowingsPageSizeMax = 1000
	pageSizeDefault       = 10
)

/* Reads the book filters from the query. Authors come as a comma separated list of ids, a book
matches when any of its authors is in it. */
func ParseBookFilter(query url.Values) (library.BookFilter, error) {
	filter := library.BookFilter{Title: strings.TrimSpace(query.Get("title"))}

	authorsStr := query.Get("authors")
	if authorsStr == "" {
		return filter, nil
	}
	for _, idStr := range strings.Split(authorsStr, ",") {
		id, err := uuid.Parse(strings.TrimSpace(idStr))
		if err != nil {
			return library.BookFilter{}, library.ErrResponseQueryAuthorsInvalid
		}
		filter.Authors = append(filter.Authors, id)
	}
	return filter, nil
}

/* Reads the borrowing filters from the query. is_active is case insensitive. user_id is only read
for callers allowed to filter by user; the service scopes everyone else to their own borrowings. */
func ParseBorrowingFilter(query url.Values, actor library.Actor) (library.BorrowingFilter, error) {
	var filter library.BorrowingFilter
	canFilterByUser := library.Authorize(actor, library.ActionFilterBorrowingsByUser, library.Resource{}) == nil

	if userIDStr := query.Get("user_id"); userIDStr != "" && canFilterByUser {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			return library.BorrowingFilter{}, library.ErrResponseQueryUserIdInvalid
		}
		filter.UserID = &userID
	}

	if isActiveStr := query.Get("is_active"); isActiveStr != "" {
		var isActive bool
		switch strings.ToLower(isActiveStr) {
		case "true":
			isActive = true
		case "false":
			isActive = false
		default:
			return library.BorrowingFilter{}, library.ErrResponseQueryIsActiveInvalid
		}
		filter.IsActive = &isActive
	}

	return filter, nil
}

/*Validates and prepares the page parameters of the query.*/
func extractPageParams(query url.Values, pageSizeMax int) (page, pageSize int, valid bool) {
	var err error
	pageStr := query.Get("page") //Convert page value to int and set default to 1.
	if pageStr == "" {
		page = 1
	} else {
		page, err = strconv.Atoi(pageStr)
		if err != nil {
			return 0, 0, false
		}
		if page <= 0 {
			return 0, 0, false
		}
	}

	pageSizeStr := query.Get("page_size") //Convert page_size value to int and set default to 10.
	if pageSizeStr == "" {
		pageSize = pageSizeDefault
	} else {
		pageSize, err = strconv.Atoi(pageSizeStr)
		if err != nil {
			return 0, 0, false
		}
		if !(0 < pageSize && pageSize <= pageSizeMax) {
			return 0, 0, false
		}
	}

	return page, pageSize, true
}
