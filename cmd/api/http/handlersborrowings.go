package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

type BorrowingEntry struct {
	ExpectedReturnDate *Date      `json:"expected_return_date" validate:"required"`
	BookID             *uuid.UUID `json:"book_id" validate:"required"`
}

/* Lends a book to the caller. */
func (h *LibraryHandler) createBorrowing(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionCreateBorrowing) {
		return
	}

	var borrowingEntry BorrowingEntry
	if !h.decodeEntry(w, r, &borrowingEntry) {
		return
	}

	created, err := h.service.CreateBorrowing(r.Context(), actorFrom(r.Context()), library.CreateBorrowingRequest{
		ExpectedReturnDate: time.Time(*borrowingEntry.ExpectedReturnDate),
		BookID:             *borrowingEntry.BookID,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	h.responseJSON(w, http.StatusCreated, borrowingToResponse(created))
}

/* Returns the borrowing with that specific ID and the book it is for. */
func (h *LibraryHandler) getBorrowingById(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionListBorrowings) {
		return
	}

	id, err := h.isolateId(w, r)
	if err != nil {
		return
	}

	borrowing, err := h.service.GetBorrowing(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.handleError(err, w, r)
		return
	}
	b, err := h.service.GetBook(r.Context(), borrowing.BookID)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	h.responseJSON(w, http.StatusOK, BorrowingDetailResponse{
		BorrowingResponse: borrowingToResponse(borrowing),
		Book:              bookToResponse(b),
	})
}

func (h *LibraryHandler) returnBorrowing(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionListBorrowings) {
		return
	}

	id, err := h.isolateId(w, r)
	if err != nil {
		return
	}

	returned, err := h.service.ReturnBorrowing(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	h.responseJSON(w, http.StatusOK, borrowingToResponse(returned))
}

/* Returns a page of borrowings. Who sees what is decided by the service. */
func (h *LibraryHandler) listBorrowings(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionListBorrowings) {
		return
	}

	query := r.URL.Query()

	filter, err := ParseBorrowingFilter(query, actorFrom(r.Context()))
	if err != nil {
		h.responseJSON(w, http.StatusBadRequest, err)
		return
	}

	page, pageSize, valid := extractPageParams(query, borrowingsPageSizeMax)
	if !valid {
		h.responseJSON(w, http.StatusBadRequest, library.ErrResponseQueryPageInvalid)
		return
	}

	paged, err := h.service.ListBorrowings(r.Context(), actorFrom(r.Context()), library.ListBorrowingsRequest{
		Filter:   filter,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}
	h.responseJSON(w, http.StatusOK, pagedBorrowingsToResponse(paged))
}
