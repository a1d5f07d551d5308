package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	"go.uber.org/zap"
)

func (s *Server) ListUsers(c *gin.Context) {
	users, err := s.users.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if users == nil {
		users = []appuserdomain.AppUser{}
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *Server) CreateUser(c *gin.Context) {
	var req appuserdomain.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	actor, _ := currentUser(c)
	req.ActorID = actor.ID

	user, err := s.users.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) UpdateUser(c *gin.Context) {
	var req appuserdomain.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	actor, _ := currentUser(c)
	req.ActorID = actor.ID

	user, err := s.users.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("app user updated",
		zap.String("user_id", user.ID.String()),
		zap.String("actor", actor.Username),
	)
	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) DeleteUser(c *gin.Context) {
	actor, _ := currentUser(c)
	if actor.ID.String() == c.Param("id") {
		AbortWithError(c, newValidationError("id", "self_delete", "cannot delete the signed-in user"))
		return
	}
	if err := s.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
