package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/library-service/cmd/api/library"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LibraryHandler struct {
	service  ServiceAPI
	logger   *zap.Logger
	validate *validator.Validate
}

func NewLibraryHandler(service ServiceAPI, logger *zap.Logger) *LibraryHandler {
	validate := validator.New()
	// Report fields by the name clients send them with.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &LibraryHandler{service: service, logger: logger, validate: validate}
}

type AuthorEntry struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

func (h *LibraryHandler) listAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.handleError(err, w, r)
		return
	}
	h.responseJSON(w, http.StatusOK, authorsToResponse(authors))
}

func (h *LibraryHandler) createAuthor(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionManageCatalog) {
		return
	}

	var authorEntry AuthorEntry
	if !h.decodeEntry(w, r, &authorEntry) {
		return
	}

	created, err := h.service.CreateAuthor(r.Context(), actorFrom(r.Context()), library.CreateAuthorRequest{
		FirstName: authorEntry.FirstName,
		LastName:  authorEntry.LastName,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}
	h.responseJSON(w, http.StatusCreated, authorToResponse(created))
}

type BookEntry struct {
	Title     string           `json:"title" validate:"required"`
	Authors   []uuid.UUID      `json:"authors"`
	Cover     library.Cover    `json:"cover" validate:"required"`
	Inventory *int             `json:"inventory" validate:"required"`
	DailyFee  *decimal.Decimal `json:"daily_fee" validate:"required"`
}

// BookReplaceEntry is the body of a PUT. Inventory is left out, only borrowings move it.
type BookReplaceEntry struct {
	Title    string           `json:"title" validate:"required"`
	Authors  []uuid.UUID      `json:"authors" validate:"required"`
	Cover    library.Cover    `json:"cover" validate:"required"`
	DailyFee *decimal.Decimal `json:"daily_fee" validate:"required"`
}

type BookPatchEntry struct {
	Title    *string          `json:"title"`
	Authors  *[]uuid.UUID     `json:"authors"`
	Cover    *library.Cover   `json:"cover"`
	DailyFee *decimal.Decimal `json:"daily_fee"`
}

/* Validates the entry, then stores the entry as a new book. */
func (h *LibraryHandler) createBook(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionManageCatalog) {
		return
	}

	var bookEntry BookEntry
	if !h.decodeEntry(w, r, &bookEntry) {
		return
	}

	storedBook, err := h.service.CreateBook(r.Context(), actorFrom(r.Context()), bookToCreateReq(bookEntry))
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	h.responseJSON(w, http.StatusCreated, bookToResponse(storedBook))
}

/* Returns the book with that specific ID, with its authors. */
func (h *LibraryHandler) getBookById(w http.ResponseWriter, r *http.Request) {
	id, err := h.isolateId(w, r)
	if err != nil {
		return
	}

	returnedBook, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.handleError(err, w, r)
		return
	}
	authors, err := h.service.GetBookAuthors(r.Context(), returnedBook)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	h.responseJSON(w, http.StatusOK, bookToDetailResponse(returnedBook, authors))
}

/* Replaces the title, authors, cover and fee of a book. */
func (h *LibraryHandler) updateBook(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionManageCatalog) {
		return
	}

	id, err := h.isolateId(w, r)
	if err != nil {
		return
	}

	var bookEntry BookReplaceEntry
	if !h.decodeEntry(w, r, &bookEntry) {
		return
	}

	updatedBook, err := h.service.UpdateBook(r.Context(), actorFrom(r.Context()), library.UpdateBookRequest{
		ID:       id,
		Title:    &bookEntry.Title,
		Authors:  &bookEntry.Authors,
		Cover:    &bookEntry.Cover,
		DailyFee: bookEntry.DailyFee,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	h.responseJSON(w, http.StatusOK, bookToResponse(updatedBook))
}

/* Changes only the fields present in the body. */
func (h *LibraryHandler) patchBook(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionManageCatalog) {
		return
	}

	id, err := h.isolateId(w, r)
	if err != nil {
		return
	}

	var bookEntry BookPatchEntry
	if !h.decodeEntry(w, r, &bookEntry) {
		return
	}

	updatedBook, err := h.service.UpdateBook(r.Context(), actorFrom(r.Context()), library.UpdateBookRequest{
		ID:       id,
		Title:    bookEntry.Title,
		Authors:  bookEntry.Authors,
		Cover:    bookEntry.Cover,
		DailyFee: bookEntry.DailyFee,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	h.responseJSON(w, http.StatusOK, bookToResponse(updatedBook))
}

func (h *LibraryHandler) deleteBook(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, library.ActionManageCatalog) {
		return
	}

	id, err := h.isolateId(w, r)
	if err != nil {
		return
	}

	if err := h.service.DeleteBook(r.Context(), actorFrom(r.Context()), id); err != nil {
		h.handleError(err, w, r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

/* Returns a list of the stored books. */
func (h *LibraryHandler) listBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter, err := ParseBookFilter(query)
	if err != nil {
		h.responseJSON(w, http.StatusBadRequest, err)
		return
	}

	page, pageSize, valid := extractPageParams(query, booksPageSizeMax)
	if !valid {
		h.responseJSON(w, http.StatusBadRequest, library.ErrResponseQueryPageInvalid)
		return
	}

	pagedBooks, err := h.service.ListBooks(r.Context(), library.ListBooksRequest{
		Filter:   filter,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}
	h.responseJSON(w, http.StatusOK, pagedBooksToResponse(pagedBooks))
}

/* Converts from BookEntry type to CreateBookRequest type, with no json tags. */
func bookToCreateReq(b BookEntry) library.CreateBookRequest {
	return library.CreateBookRequest{
		Title:     b.Title,
		Authors:   b.Authors,
		Cover:     b.Cover,
		Inventory: *b.Inventory,
		DailyFee:  *b.DailyFee,
	}
}

/* Stops the request before its input is read when the caller can not perform the action at all.
Checks that depend on the stored record, like ownership, stay with the service. */
func (h *LibraryHandler) authorize(w http.ResponseWriter, r *http.Request, action library.Action) bool {
	if err := library.Authorize(actorFrom(r.Context()), action, library.Resource{}); err != nil {
		h.handleError(err, w, r)
		return false
	}
	return true
}

/* Reads the JSON body into entry and checks its required fields. Writes the error response and
returns false when the entry can not be used. */
func (h *LibraryHandler) decodeEntry(w http.ResponseWriter, r *http.Request, entry any) bool {
	err := json.NewDecoder(r.Body).Decode(entry)
	if err != nil {
		errR := library.ErrResponse{
			Code:    library.ErrResponseEntryInvalidJSON.Code,
			Message: library.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		h.responseJSON(w, http.StatusBadRequest, errR)
		return false
	}

	err = h.validate.Struct(entry)
	var fieldErrs validator.ValidationErrors
	switch {
	case err == nil:
		return true
	case errors.As(err, &fieldErrs) && len(fieldErrs) > 0:
		h.responseJSON(w, http.StatusBadRequest, library.NewValidationError(
			library.ErrResponseEntryBlankFields.Code,
			fieldErrs[0].Field(),
			library.ErrResponseEntryBlankFields.Message,
		))
	default:
		h.handleError(err, w, r)
	}
	return false
}

/* Isolates the ID from the URL. */
func (h *LibraryHandler) isolateId(w http.ResponseWriter, r *http.Request) (id uuid.UUID, err error) {
	id, err = uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.responseJSON(w, http.StatusBadRequest, library.ErrResponseIdInvalidFormat)
		return id, err
	}
	return id, nil
}
