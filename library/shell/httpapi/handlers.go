package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/library/shell"
)

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// read calls fn with retries on transient store failures.
func (h *Handler) read(c *gin.Context, operation string, fn shell.RetryableFunc) error {
	options := h.retryOptions
	if h.metrics != nil {
		options = append([]shell.RetryOption{shell.WithMetrics(h.metrics, operation)}, options...)
	}

	return shell.RetryWithExponentialBackoff(c.Request.Context(), fn, options...)
}

func (h *Handler) listAvailableBooks(c *gin.Context) {
	var books []circulation.Book

	err := h.read(c, circulation.OperationListAvailableBooks, func(ctx context.Context) (err error) {
		books, err = h.engine.ListAvailableBooks(ctx)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, books)
}

func (h *Handler) getBook(c *gin.Context) {
	var book circulation.Book

	err := h.read(c, circulation.OperationGetBook, func(ctx context.Context) (err error) {
		book, err = h.engine.GetBook(ctx, c.Param("isbn"))
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, book)
}

func (h *Handler) listTransactions(c *gin.Context) {
	var txs []circulation.Transaction

	err := h.read(c, circulation.OperationListTransactions, func(ctx context.Context) (err error) {
		txs, err = h.engine.ListTransactions(ctx, c.Param("isbn"))
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, txs)
}

func (h *Handler) listLoans(c *gin.Context) {
	var loans []circulation.Loan

	err := h.read(c, circulation.OperationListLoans, func(ctx context.Context) (err error) {
		loans, err = h.engine.ListLoans(ctx, c.Param("isbn"))
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loans)
}

func (h *Handler) addBook(c *gin.Context) {
	var req circulation.NewBook
	if err := c.ShouldBindJSON(&req); err != nil {
		malformedBody(c, err)
		return
	}

	book, err := h.engine.AddBook(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, book)
}

func (h *Handler) issueBook(c *gin.Context) {
	var req circulation.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		malformedBody(c, err)
		return
	}

	result, err := h.engine.Issue(c.Request.Context(), c.Param("isbn"), req)
	if err != nil {
		writePartialError(c, err, result.Book)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) returnBook(c *gin.Context) {
	var req circulation.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		malformedBody(c, err)
		return
	}

	result, err := h.engine.Return(c.Request.Context(), c.Param("isbn"), req)
	if err != nil {
		writePartialError(c, err, result.Book)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) deleteBook(c *gin.Context) {
	isbn := c.Param("isbn")

	deleted, err := h.engine.DeleteBook(c.Request.Context(), isbn)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted, ISBN: isbn})
}

func (h *Handler) listMembers(c *gin.Context) {
	var members []circulation.Member

	err := h.read(c, circulation.OperationListMembers, func(ctx context.Context) (err error) {
		members, err = h.engine.ListMembers(ctx)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, members)
}

func (h *Handler) getMember(c *gin.Context) {
	var member circulation.Member

	err := h.read(c, circulation.OperationGetMember, func(ctx context.Context) (err error) {
		member, err = h.engine.GetMember(ctx, c.Param("id"))
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, member)
}

func (h *Handler) addMember(c *gin.Context) {
	var req circulation.NewMember
	if err := c.ShouldBindJSON(&req); err != nil {
		malformedBody(c, err)
		return
	}

	member, err := h.engine.AddMember(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

func (h *Handler) updateMember(c *gin.Context) {
	var req circulation.MemberUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		malformedBody(c, err)
		return
	}

	member, err := h.engine.UpdateMember(c.Request.Context(), c.Param("bookId"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, member)
}

func (h *Handler) deleteMember(c *gin.Context) {
	bookID := c.Param("bookId")

	deleted, err := h.engine.DeleteMember(c.Request.Context(), bookID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted, BookID: bookID})
}
