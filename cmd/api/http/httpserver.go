package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type ServerConfig struct {
	Port           int
	RequestTimeout time.Duration
}

func NewServer(config ServerConfig, h *LibraryHandler, authn Authenticator) *http.Server {
	r := mux.NewRouter()
	r.Use(logRequests(h.logger), authenticate(authn, h.logger), withTimeout(config.RequestTimeout))

	r.HandleFunc("/ping", ping).Methods(http.MethodGet)

	r.HandleFunc("/authors", h.listAuthors).Methods(http.MethodGet)
	r.HandleFunc("/authors", h.createAuthor).Methods(http.MethodPost)

	r.HandleFunc("/books", h.listBooks).Methods(http.MethodGet)
	r.HandleFunc("/books", h.createBook).Methods(http.MethodPost)
	r.HandleFunc("/books/{id}", h.getBookById).Methods(http.MethodGet)
	r.HandleFunc("/books/{id}", h.updateBook).Methods(http.MethodPut)
	r.HandleFunc("/books/{id}", h.patchBook).Methods(http.MethodPatch)
	r.HandleFunc("/books/{id}", h.deleteBook).Methods(http.MethodDelete)

	r.HandleFunc("/borrowings", h.listBorrowings).Methods(http.MethodGet)
	r.HandleFunc("/borrowings", h.createBorrowing).Methods(http.MethodPost)
	r.HandleFunc("/borrowings/{id}", h.getBorrowingById).Methods(http.MethodGet)
	r.HandleFunc("/borrowings/{id}/return", h.returnBorrowing).Methods(http.MethodPost)

	server := http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &server
}

/* Tests the http server connection.  */
func ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
