package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string            `json:"message"`
	Kind    string            `json:"kind"`
	Book    *circulation.Book `json:"book,omitempty"`
}

// DeleteResponse is the body of successful deletes.
type DeleteResponse struct {
	Deleted int64  `json:"deleted"`
	ISBN    string `json:"isbn,omitempty"`
	BookID  string `json:"bookId,omitempty"`
}

// StatusFor maps an engine error kind to an HTTP status code.
func StatusFor(kind circulation.ErrorKind) int {
	switch kind {
	case circulation.KindValidation:
		return http.StatusBadRequest
	case circulation.KindNotFound:
		return http.StatusNotFound
	case circulation.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(StatusFor(circulation.KindOf(err)), errorResponse(err))
}

// writePartialError reports an inconsistent state together with the book as it was left.
func writePartialError(c *gin.Context, err error, book circulation.Book) {
	response := errorResponse(err)
	if circulation.KindOf(err) == circulation.KindInconsistentState && book.ISBN != "" {
		response.Book = &book
	}

	c.JSON(StatusFor(circulation.KindOf(err)), response)
}

func errorResponse(err error) ErrorResponse {
	kind := circulation.KindOf(err)
	if kind == 0 || kind == circulation.KindStore {
		return ErrorResponse{Message: "internal error", Kind: circulation.KindStore.String()}
	}

	message := err.Error()
	var engineErr *circulation.Error
	if errors.As(err, &engineErr) {
		message = engineErr.Message
	}

	return ErrorResponse{Message: message, Kind: kind.String()}
}

func malformedBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Message: "malformed request body: " + err.Error(),
		Kind:    circulation.KindValidation.String(),
	})
}
