package server

import (
	"net/http"

	accountdomain "github.com/creditflow/creditflow/internal/account/domain"
	"github.com/gin-gonic/gin"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	UserID  int64  `json:"userId"`
	Email   string `json:"email"`
	Credits int64  `json:"credits"`
	Token   string `json:"token"`
}

func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.accountSvc.Signup(c.Request.Context(), accountdomain.SignupRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, authResponse{
		UserID:  result.UserID,
		Email:   result.Email,
		Credits: result.Credits,
		Token:   result.Token,
	})
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.accountSvc.Login(c.Request.Context(), accountdomain.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{
		UserID:  result.UserID,
		Email:   result.Email,
		Credits: result.Credits,
		Token:   result.Token,
	})
}

func (s *Server) Profile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	profile, err := s.accountSvc.Profile(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  profile.UserID,
		"email":   profile.Email,
		"credits": profile.Credits,
	})
}
