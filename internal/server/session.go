package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/creditflow/creditflow/internal/ledger/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type sessionView struct {
	ID            int64      `json:"id"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	ConsumedUnits int64      `json:"consumedUnits"`
	IsActive      bool       `json:"isActive"`
}

func viewSession(session *ledgerdomain.Session) sessionView {
	return sessionView{
		ID:            session.ID.Int64(),
		StartedAt:     session.StartedAt,
		EndedAt:       session.EndedAt,
		ConsumedUnits: session.ConsumedUnits,
		IsActive:      session.IsActive,
	}
}

// StartSession opens a fresh session row, closes any prior active one,
// and hands it to the metering engine. The balance precondition lives
// here, not in the engine.
func (s *Server) StartSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()

	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if account.Credits <= 0 {
		AbortWithError(c, ledgerdomain.ErrInsufficientBalance)
		return
	}

	// Clear any stale deduction state before opening the new session.
	if err := s.meter.Stop(ctx, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	now := time.Now().UTC()
	if err := s.store.CloseActiveSessions(ctx, userID, now); err != nil {
		AbortWithError(c, err)
		return
	}

	session := &ledgerdomain.Session{
		ID:        s.genID.Generate(),
		UserID:    userID,
		StartedAt: now,
		IsActive:  true,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.meter.Start(ctx, userID, session.ID); err != nil {
		s.log.Error("metering start failed",
			zap.Int64("user_id", userID), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "session started",
		"session":     viewSession(session),
		"userCredits": account.Credits,
	})
}

// StopSession ends the active session: the engine clears timer and
// registry handle, then the session row is closed here.
func (s *Server) StopSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()

	sessionID, active, err := s.meter.ActiveSessionID(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !active {
		AbortWithError(c, ledgerdomain.ErrSessionNotFound)
		return
	}

	if err := s.meter.Stop(ctx, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	now := time.Now().UTC()
	if err := s.store.CloseSession(ctx, snowflake.ParseInt64(sessionID), now); err != nil {
		AbortWithError(c, err)
		return
	}

	session, err := s.store.GetSession(ctx, snowflake.ParseInt64(sessionID))
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrSessionNotFound) {
			c.JSON(http.StatusOK, gin.H{"message": "session stopped"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "session stopped",
		"session": viewSession(session),
	})
}

func (s *Server) SessionStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()

	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	response := gin.H{
		"user": gin.H{
			"id":      userID,
			"credits": account.Credits,
		},
		"activeSession": nil,
	}

	sessionID, active, err := s.meter.ActiveSessionID(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if active {
		session, err := s.store.GetSession(ctx, snowflake.ParseInt64(sessionID))
		if err == nil {
			response["activeSession"] = viewSession(session)
		}
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) SessionHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	sessions, err := s.store.ListSessions(c.Request.Context(), userID, 50)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, viewSession(&sessions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}
