package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
)

type (
	UpdateUserNumberRequest struct {
		WANumber string `json:"wa_number"`
	}

	BroadcastRequest struct {
		Message string `json:"message"`
	}
)

func (a *API) AddQuestion(c *gin.Context) {
	var q domain.Question
	if err := c.ShouldBindJSON(&q); err != nil {
		writeError(c, errors.InvalidArgument("Invalid data: %v", err))
		return
	}

	q, err := a.admin.AddQuestion(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Question added", "id": q.ID})
}

func (a *API) RemoveQuestion(c *gin.Context) {
	if err := a.admin.RemoveQuestion(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Question deleted"})
}

func (a *API) UpdateUserNumber(c *gin.Context) {
	var req UpdateUserNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.InvalidArgument("Invalid data: %v", err))
		return
	}

	if err := a.admin.SetNumber(c.Request.Context(), c.Param("id"), req.WANumber); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User WhatsApp number updated"})
}

func (a *API) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.InvalidArgument("Invalid data: %v", err))
		return
	}

	n, err := a.admin.Broadcast(c.Request.Context(), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Broadcast queued", "recipients": n})
}
