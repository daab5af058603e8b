package api

import (
	"net/http"

	"ChatSync/module/chat/model"
	"ChatSync/tools/errs"

	"github.com/gin-gonic/gin"
)

type createReq struct {
	UUID       string            `json:"uuid"`
	ChannelID  string            `json:"channel_id"`
	Body       string            `json:"body" binding:"required"`
	Attachment *model.Attachment `json:"attachment"`
}

type updateReq struct {
	Body string `json:"body" binding:"required"`
}

func (s *Server) selectChannel(c *gin.Context) {
	if err := s.engine.SelectChannel(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.State())
}

func (s *Server) deselect(c *gin.Context) {
	s.engine.Deselect(c.Request.Context())
	c.JSON(http.StatusOK, s.engine.State())
}

func (s *Server) createMessage(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errs.ErrArgs.WrapMsg("create message", "err", err))
		return
	}
	msg, err := s.engine.Create(c.Request.Context(), model.Draft{
		UUID:       req.UUID,
		ChannelID:  req.ChannelID,
		Body:       req.Body,
		Attachment: req.Attachment,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) updateMessage(c *gin.Context) {
	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errs.ErrArgs.WrapMsg("update message", "err", err))
		return
	}
	msg, err := s.engine.Update(c.Request.Context(), c.Param("uuid"), model.Patch{Body: req.Body})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) deleteMessage(c *gin.Context) {
	if err := s.engine.Delete(c.Request.Context(), c.Param("uuid")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) loadOlder(c *gin.Context) {
	if err := s.engine.LoadOlder(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.State())
}

func (s *Server) dismissError(c *gin.Context) {
	s.engine.DismissError()
	c.Status(http.StatusNoContent)
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.State())
}
