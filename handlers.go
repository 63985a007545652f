package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"cwscore/models"
	"cwscore/pkg/match"
	"cwscore/pkg/session"
	"cwscore/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func setupRoutes(r *gin.Engine, mgr *session.Manager, st *store.Store) {
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)

	authGroup.POST("/sessions", openSessionHandler(mgr))
	authGroup.GET("/sessions/:id", sessionStatusHandler(mgr))
	authGroup.POST("/sessions/:id/images", submitImagesHandler(mgr))
	authGroup.POST("/sessions/:id/decision", decisionHandler(mgr))

	authGroup.GET("/results/weeks", listWeeksHandler(st))
	authGroup.GET("/results", getResultsHandler(st))
	authGroup.PUT("/results/phase2/round", editPhase2RoundHandler(st))

	authGroup.POST("/guilds/:id/members", upsertMembersHandler)
	authGroup.GET("/guilds/:id/members", listMembersHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		operator, _ := claims["operator"].(string)
		if operator == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		c.Set("operator", operator)
		c.Next()
	}
}

func operatorFromContext(c *gin.Context) string {
	v, _ := c.Get("operator")
	s, _ := v.(string)
	return s
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := RegisterOperator(req.Username, req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"operator": op.Username,
		"admin":    op.Admin,
		"exp":      time.Now().Add(12 * time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token signing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": signed})
}

func meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operator": operatorFromContext(c)})
}

func openSessionHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			GuildID          string `json:"guild_id" binding:"required"`
			Phase            int    `json:"phase" binding:"required"`
			Clan             string `json:"clan" binding:"required"`
			ConfirmOverwrite bool   `json:"confirm_overwrite"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, err := mgr.Open(session.OpenRequest{
			GuildID:          req.GuildID,
			OperatorID:       operatorFromContext(c),
			Phase:            req.Phase,
			Clan:             req.Clan,
			ConfirmOverwrite: req.ConfirmOverwrite,
		})
		if err != nil {
			status := http.StatusBadRequest
			switch {
			case errors.Is(err, session.ErrAlreadyActive):
				status = http.StatusConflict
			case errors.Is(err, session.ErrGuildNotConfigured):
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		switch {
		case res.Queued:
			c.JSON(http.StatusAccepted, res)
		case res.OverwriteRequired:
			c.JSON(http.StatusConflict, res)
		default:
			c.JSON(http.StatusCreated, res)
		}
	}
}

func sessionStatusHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := mgr.Status(c.Param("id"), operatorFromContext(c))
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func submitImagesHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			URLs []string `json:"urls" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(req.URLs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no image urls supplied"})
			return
		}
		outcomes, events, err := mgr.SubmitImages(c.Param("id"), operatorFromContext(c), req.URLs)
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcomes": outcomes, "events": events})
	}
}

func decisionHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var d session.Decision
		if err := c.ShouldBindJSON(&d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		events, err := mgr.Decide(c.Param("id"), operatorFromContext(c), d)
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

func sessionErrStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotOperator):
		return http.StatusForbidden
	case errors.Is(err, session.ErrWrongStage):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func listWeeksHandler(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild := c.Query("guild")
		phase, _ := strconv.Atoi(c.DefaultQuery("phase", "1"))
		if guild == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "guild is required"})
			return
		}
		weeks, err := st.ListAvailableWeeks(guild, phase)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "listing weeks failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"weeks": weeks})
	}
}

func getResultsHandler(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := resultKeyFromQuery(c)
		if !ok {
			return
		}
		rec, err := st.Get(key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reading record failed"})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no results for that week"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func editPhase2RoundHandler(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Guild   string              `json:"guild" binding:"required"`
			Year    int                 `json:"year" binding:"required"`
			Week    int                 `json:"week" binding:"required"`
			Clan    string              `json:"clan" binding:"required"`
			Round   int                 `json:"round" binding:"required"`
			Players []store.PlayerScore `json:"players" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		key := store.Key{Guild: req.Guild, Phase: 2, Year: req.Year, Week: req.Week, Clan: req.Clan}
		if err := st.PutPhase2Round(key, req.Round, req.Players); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := st.Get(key)
		if err != nil || rec == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "re-reading record failed"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func resultKeyFromQuery(c *gin.Context) (store.Key, bool) {
	guild := c.Query("guild")
	clan := c.Query("clan")
	phase, _ := strconv.Atoi(c.DefaultQuery("phase", "1"))
	year, _ := strconv.Atoi(c.Query("year"))
	week, _ := strconv.Atoi(c.Query("week"))
	if guild == "" || clan == "" || year == 0 || week == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guild, clan, year and week are required"})
		return store.Key{}, false
	}
	return store.Key{Guild: guild, Phase: phase, Year: year, Week: week, Clan: clan}, true
}

// upsertMembersHandler is the sync endpoint the chat-platform collaborator calls whenever
// the guild roster changes. Upsert by (guild, member id).
func upsertMembersHandler(c *gin.Context) {
	guildID := c.Param("id")
	var req struct {
		Members []struct {
			MemberID    string `json:"member_id" binding:"required"`
			DisplayName string `json:"display_name" binding:"required"`
			Alias       string `json:"alias"`
			RoleID      string `json:"role_id"`
		} `json:"members" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, in := range req.Members {
		var existing models.Member
		err := db.Where("guild_id = ? AND member_id = ?", guildID, in.MemberID).First(&existing).Error
		if err == nil {
			existing.DisplayName = in.DisplayName
			existing.Alias = in.Alias
			existing.RoleID = in.RoleID
			if err := db.Save(&existing).Error; err != nil {
				log.Printf("member update failed guild=%s member=%s: %v", guildID, in.MemberID, err)
			}
			continue
		}
		m := models.Member{GuildID: guildID, MemberID: in.MemberID, DisplayName: in.DisplayName, Alias: in.Alias, RoleID: in.RoleID}
		if err := db.Create(&m).Error; err != nil {
			log.Printf("member create failed guild=%s member=%s: %v", guildID, in.MemberID, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"synced": len(req.Members)})
}

func listMembersHandler(c *gin.Context) {
	guildID := c.Param("id")
	var members []models.Member
	q := db.Where("guild_id = ?", guildID)
	if role := c.Query("role"); role != "" {
		q = q.Where("role_id = ?", role)
	}
	if err := q.Order("display_name").Find(&members).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, members)
}

// dbRoster adapts the members table to the session manager's roster source.
type dbRoster struct{}

func (dbRoster) Snapshot(guildID, roleID string) ([]match.RosterEntry, error) {
	var members []models.Member
	if err := db.Where("guild_id = ? AND role_id = ?", guildID, roleID).Find(&members).Error; err != nil {
		return nil, err
	}
	out := make([]match.RosterEntry, 0, len(members))
	for _, m := range members {
		out = append(out, match.RosterEntry{MemberID: m.MemberID, DisplayName: m.DisplayName, Alias: m.Alias})
	}
	return out, nil
}

// dbAudit persists per-image pipeline outcomes for moderator review.
type dbAudit struct{}

func (dbAudit) RecordImage(sessionID, guildID, source string, readings int, failed bool, reason string) {
	row := models.ProcessedImage{
		SessionID:    sessionID,
		GuildID:      guildID,
		Source:       source,
		Readings:     readings,
		Failed:       failed,
		FailedReason: reason,
	}
	if err := db.Create(&row).Error; err != nil {
		log.Printf("image audit insert failed session=%s: %v", sessionID, err)
	}
}
