package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Date is a calendar date, "YYYY-MM-DD" on the wire.
type Date time.Time

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	*d = Date(t)
	return nil
}

func toDate(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	d := Date(*t)
	return &d
}

type AuthorResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
}

func authorToResponse(a library.Author) AuthorResponse {
	return AuthorResponse{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		FullName:  a.FullName(),
	}
}

func authorsToResponse(authors []library.Author) []AuthorResponse {
	results := []AuthorResponse{}
	for _, a := range authors {
		results = append(results, authorToResponse(a))
	}
	return results
}

type BookResponse struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	Authors   []uuid.UUID     `json:"authors"`
	Cover     library.Cover   `json:"cover"`
	Inventory int             `json:"inventory"`
	DailyFee  decimal.Decimal `json:"daily_fee"`
}

/*Copy the fields of a book object to an http layer struct with json tags*/
func bookToResponse(b library.Book) BookResponse {
	return BookResponse{
		ID:        b.ID,
		Title:     b.Title,
		Authors:   append([]uuid.UUID{}, b.Authors...),
		Cover:     b.Cover,
		Inventory: b.Inventory,
		DailyFee:  b.DailyFee,
	}
}

// BookDetailResponse is a book with its authors spelled out.
type BookDetailResponse struct {
	ID        uuid.UUID        `json:"id"`
	Title     string           `json:"title"`
	Authors   []AuthorResponse `json:"authors"`
	Cover     library.Cover    `json:"cover"`
	Inventory int              `json:"inventory"`
	DailyFee  decimal.Decimal  `json:"daily_fee"`
}

func bookToDetailResponse(b library.Book, authors []library.Author) BookDetailResponse {
	return BookDetailResponse{
		ID:        b.ID,
		Title:     b.Title,
		Authors:   authorsToResponse(authors),
		Cover:     b.Cover,
		Inventory: b.Inventory,
		DailyFee:  b.DailyFee,
	}
}

type PageOfBooksResponse struct {
	PageCurrent int            `json:"page_current"`
	PageTotal   int            `json:"page_total"`
	PageSize    int            `json:"page_size"`
	ItemsTotal  int            `json:"items_total"`
	Results     []BookResponse `json:"results"`
}

/*Copy the fields of a PagedBooks object to an http layer struct with json tags*/
func pagedBooksToResponse(page library.PagedBooks) PageOfBooksResponse {
	results := []BookResponse{}
	for _, b := range page.Results {
		results = append(results, bookToResponse(b))
	}

	return PageOfBooksResponse{
		PageCurrent: page.PageCurrent,
		PageTotal:   page.PageTotal,
		PageSize:    page.PageSize,
		ItemsTotal:  page.ItemsTotal,
		Results:     results,
	}
}

type BorrowingResponse struct {
	ID                 uuid.UUID `json:"id"`
	BorrowDate         Date      `json:"borrow_date"`
	ExpectedReturnDate Date      `json:"expected_return_date"`
	ActualReturnDate   *Date     `json:"actual_return_date"`
	BookID             uuid.UUID `json:"book_id"`
	UserID             uuid.UUID `json:"user_id"`
	IsActive           bool      `json:"is_active"`
}

func borrowingToResponse(b library.Borrowing) BorrowingResponse {
	return BorrowingResponse{
		ID:                 b.ID,
		BorrowDate:         Date(b.BorrowDate),
		ExpectedReturnDate: Date(b.ExpectedReturnDate),
		ActualReturnDate:   toDate(b.ActualReturnDate),
		BookID:             b.BookID,
		UserID:             b.UserID,
		IsActive:           b.IsActive(),
	}
}

// BorrowingDetailResponse is a borrowing with the borrowed book embedded.
type BorrowingDetailResponse struct {
	BorrowingResponse
	Book BookResponse `json:"book"`
}

type PageOfBorrowingsResponse struct {
	PageCurrent int                 `json:"page_current"`
	PageTotal   int                 `json:"page_total"`
	PageSize    int                 `json:"page_size"`
	ItemsTotal  int                 `json:"items_total"`
	Results     []BorrowingResponse `json:"results"`
}

func pagedBorrowingsToResponse(page library.PagedBorrowings) PageOfBorrowingsResponse {
	results := []BorrowingResponse{}
	for _, b := range page.Results {
		results = append(results, borrowingToResponse(b))
	}

	return PageOfBorrowingsResponse{
		PageCurrent: page.PageCurrent,
		PageTotal:   page.PageTotal,
		PageSize:    page.PageSize,
		ItemsTotal:  page.ItemsTotal,
		Results:     results,
	}
}

/*Writes a JSON response into a http.ResponseWriter. */
func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("writing response body", zap.Int("status", status), zap.Error(err))
	}
}

func (h *LibraryHandler) responseJSON(w http.ResponseWriter, status int, body any) {
	writeJSON(h.logger, w, status, body)
}

/* Maps the errors coming from the service to a status code and writes the response. */
func (h *LibraryHandler) handleError(err error, w http.ResponseWriter, r *http.Request) {
	var vErr library.ValidationError
	var eResp library.ErrResponse

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		cause := context.DeadlineExceeded
		if errors.Is(err, context.Canceled) {
			cause = context.Canceled
		}
		h.logger.Warn("request ran out of time", zap.String("path", r.URL.Path), zap.Error(err))
		h.responseJSON(w, http.StatusGatewayTimeout, library.ErrResponse{
			Code:    library.ErrResponseRequestTimeout.Code,
			Message: "error from context:" + cause.Error(),
		})
	case errors.As(err, &vErr):
		h.responseJSON(w, http.StatusBadRequest, vErr)
	case errors.As(err, &eResp):
		status := statusOf(eResp)
		if status == http.StatusInternalServerError {
			h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
			w.WriteHeader(status)
			return
		}
		h.responseJSON(w, status, eResp)
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func statusOf(eResp library.ErrResponse) int {
	switch eResp.Code {
	case library.ErrResponseBookNotFound.Code, library.ErrResponseBorrowingNotFound.Code, library.ErrResponseAuthorNotFound.Code:
		return http.StatusNotFound
	case library.ErrResponseUnauthenticated.Code:
		return http.StatusUnauthorized
	case library.ErrResponseForbidden.Code:
		return http.StatusForbidden
	case library.ErrResponseRequestTimeout.Code:
		return http.StatusGatewayTimeout
	case library.ErrResponseFromRespository.Code:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
