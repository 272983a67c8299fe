package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"marketlink/internal/infrastructure/ratelimit"
	"marketlink/pkg/errors"
	"marketlink/pkg/logger"
	"marketlink/pkg/response"
	"marketlink/pkg/utils"
)

// Server is the development backend: an in-memory implementation of the REST
// and push-channel contracts the sync engine consumes. Any non-empty bearer
// token is accepted and doubles as the user ID.
type Server struct {
	store    *Store
	hub      *Hub
	echo     *echo.Echo
	validate *validator.Validate
	limiter  *ratelimit.RateLimiter
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dev server only
	},
}

func New(store *Store) *Server {
	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine()

	s := &Server{
		store:    store,
		hub:      NewHub(store, limiter),
		echo:     echo.New(),
		validate: validator.New(),
		limiter:  limiter,
	}
	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.Logger())
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.echo.Group("/v1")

	v1.GET("/ws", s.handleListChannel)
	v1.GET("/ws/threads/:id", s.handleThreadChannel)

	api := v1.Group("", s.authenticate)
	api.GET("/threads", s.handleListThreads)
	api.GET("/threads/unread-count", s.handleUnreadCount)
	api.GET("/threads/:id/messages", s.handleListMessages)
	api.POST("/threads/:id/messages", s.handleSendMessage)
	api.POST("/threads/:id/read", s.handleMarkRead)

	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler exposes the echo engine; tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the server on the given port.
func (s *Server) Start(port string) error {
	return s.echo.Start(":" + port)
}

// authenticate resolves the bearer token to a user ID. The dev server trusts
// any non-empty token and uses it as the user ID directly; production swaps
// this for real token verification.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Error(c, errors.Unauthorized("Authorization header is required", nil))
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return response.Error(c, errors.Unauthorized("Invalid authorization format", nil))
		}

		c.Set("uid", parts[1])
		return next(c)
	}
}

func (s *Server) handleListThreads(c echo.Context) error {
	uid := c.Get("uid").(string)
	return response.Success(c, s.store.ThreadsFor(uid))
}

func (s *Server) handleUnreadCount(c echo.Context) error {
	uid := c.Get("uid").(string)
	return response.Success(c, map[string]int{"count": s.store.UnreadTotalFor(uid)})
}

func (s *Server) handleListMessages(c echo.Context) error {
	uid := c.Get("uid").(string)
	params := utils.GetPaginationParams(c)

	msgs, hasMore, err := s.store.MessagesFor(uid, c.Param("id"), params.Page, params.PageSize)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"items":    msgs,
		"has_more": hasMore,
	})
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

func (s *Server) handleSendMessage(c echo.Context) error {
	uid := c.Get("uid").(string)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := s.validate.Struct(&req); err != nil {
		return response.Error(c, err)
	}

	if allowed, wait := s.limiter.Allow(uid, "send_message"); !allowed {
		return response.Error(c, errors.New("TOO_MANY_REQUESTS",
			"Sending too fast, retry in "+wait.Round(time.Second).String(), http.StatusTooManyRequests, nil))
	}

	msg, recipient, err := s.store.AppendMessage(uid, c.Param("id"), req.Content)
	if err != nil {
		return response.Error(c, err)
	}
	s.hub.Deliver(msg, uid, recipient)

	return response.Created(c, msg)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	uid := c.Get("uid").(string)
	threadID := c.Param("id")

	if err := s.store.MarkRead(uid, threadID); err != nil {
		return response.Error(c, err)
	}
	s.hub.NotifyRead(uid, threadID)

	return response.Success(c, map[string]string{"status": "ok"})
}

// handleListChannel upgrades a list-scope push connection. The token arrives
// as a query parameter because browsers cannot set websocket headers.
func (s *Server) handleListChannel(c echo.Context) error {
	uid := c.QueryParam("token")
	if uid == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	s.hub.Register(&Client{
		UserID: uid,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	})
	logger.Debug("devserver: list channel open for user %s", uid)
	return nil
}

func (s *Server) handleThreadChannel(c echo.Context) error {
	uid := c.QueryParam("token")
	if uid == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	threadID := c.Param("id")
	if !s.store.IsParticipant(uid, threadID) {
		return response.Error(c, errors.Forbidden("Not a participant of this thread", nil))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	s.hub.Register(&Client{
		UserID:   uid,
		ThreadID: threadID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
	})
	logger.Debug("devserver: thread channel open for user %s on %s", uid, threadID)
	return nil
}
