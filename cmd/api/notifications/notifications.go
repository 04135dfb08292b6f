package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/library-service/cmd/api/library"
)

const dateLayout = "2006-01-02"

const (
	topicBorrowingCreated  = "borrowing_created"
	topicBorrowingReturned = "borrowing_returned"
)

func borrowingCreatedMessage(b library.Borrowing, bookTitle string) string {
	return fmt.Sprintf("New borrowing:\nBook: %s\nUser: %s\nExpected return: %s",
		bookTitle, b.UserID, b.ExpectedReturnDate.Format(dateLayout))
}

func borrowingReturnedMessage(b library.Borrowing, bookTitle string) string {
	returned := ""
	if b.ActualReturnDate != nil {
		returned = b.ActualReturnDate.Format(dateLayout)
	}
	return fmt.Sprintf("Borrowing returned:\nBook: %s\nUser: %s\nReturned: %s",
		bookTitle, b.UserID, returned)
}

// Ntfy publishes borrowing events to ntfy topics under baseURL.
type Ntfy struct {
	baseURL string
	client  *http.Client
}

func NewNtfy(notificationsBaseURL string, client *http.Client) *Ntfy {
	if client == nil {
		client = &http.Client{}
	}
	return &Ntfy{
		baseURL: strings.TrimRight(notificationsBaseURL, "/"),
		client:  client,
	}
}

func (ntf *Ntfy) BorrowingCreated(ctx context.Context, b library.Borrowing, bookTitle string) error {
	return ntf.publish(ctx, topicBorrowingCreated, borrowingCreatedMessage(b, bookTitle))
}

func (ntf *Ntfy) BorrowingReturned(ctx context.Context, b library.Borrowing, bookTitle string) error {
	return ntf.publish(ctx, topicBorrowingReturned, borrowingReturnedMessage(b, bookTitle))
}

func (ntf *Ntfy) publish(ctx context.Context, topic, message string) error {
	topicURL := ntf.baseURL + "_" + topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, topicURL, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s): %w", topicURL, err)
	}

	resp, err := ntf.client.Do(req)
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s): %w", topicURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error delivering message to topic (%s): %w", topicURL, library.NewErrNotificationFailed(resp.StatusCode))
	}
	return nil
}
