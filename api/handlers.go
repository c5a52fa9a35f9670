package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
	"board-api/realtime"
)

const requestBodyMaxSize = 64 * 1024

// staleWriteMessage tells the client the one remedial action that differs
// from a blind retry.
const staleWriteMessage = "task was modified by another user, refresh and retry"

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, gw Gateway, auth Authenticator, hub *realtime.Hub, coord *realtime.Coordinator, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(store, auth, logger))
	e.POST("/api/tasks", createTask(gw, auth))
	e.PUT("/api/tasks/:id", updateTask(gw, auth))
	e.DELETE("/api/tasks/:id", deleteTask(gw, auth))
	e.POST("/api/tasks/:id/smart-assign", smartAssign(gw, auth))
	e.GET("/api/logs", getLogs(store, auth))
	e.GET("/api/ws", serveWS(hub, coord, auth, logger))
	e.GET("/healthz", healthz())
}

type errorResponse struct {
	Error string `json:"error"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// writeMutationError maps gateway error kinds to the REST error taxonomy.
func writeMutationError(c echo.Context, err error) error {
	var verr *board.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.Is(err, board.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
	case errors.Is(err, board.ErrStaleWrite):
		return c.JSON(http.StatusConflict, errorResponse{Error: staleWriteMessage})
	case errors.Is(err, board.ErrNoEligibleUser):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "no eligible user for assignment"})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func getTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		fetchStart := time.Now()
		snapshot, fetchErr := store.FetchBoard(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return err
		}
		metrics.SetTasksReturned(len(snapshot.Tasks()))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, snapshot)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
	Status      domain.Status   `json:"status"`
}

func createTask(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		task, err := gw.CreateTask(c.Request().Context(), actor, board.CreateFields{
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
			Status:      req.Status,
		})
		if err != nil {
			return writeMutationError(c, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

type updateTaskRequest struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Priority     *domain.Priority `json:"priority"`
	Status       *domain.Status   `json:"status"`
	AssignedUser *domain.User     `json:"assignedUser"`
	LastFetched  string           `json:"lastFetched,omitempty"`
}

func updateTask(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		var lastFetched *time.Time
		if req.LastFetched != "" {
			ts, err := time.Parse(time.RFC3339Nano, req.LastFetched)
			if err != nil {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid lastFetched timestamp"})
			}
			lastFetched = &ts
		}
		task, err := gw.UpdateTask(c.Request().Context(), actor, c.Param("id"), board.UpdateFields{
			Title:        req.Title,
			Description:  req.Description,
			Priority:     req.Priority,
			Status:       req.Status,
			AssignedUser: req.AssignedUser,
		}, lastFetched)
		if err != nil {
			return writeMutationError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		if err := gw.DeleteTask(c.Request().Context(), actor, c.Param("id")); err != nil {
			return writeMutationError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func smartAssign(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		task, err := gw.SmartAssign(c.Request().Context(), actor, c.Param("id"))
		if err != nil {
			return writeMutationError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func getLogs(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		limit := domain.DefaultLogLimit
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			}
			limit = n
		}
		entries, err := store.ListActivity(c.Request().Context(), limit)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return c.JSON(http.StatusOK, entries)
	}
}

// serveWS upgrades the connection and subscribes it to the broadcast hub.
// Browsers cannot set headers on websocket requests, so a token query
// parameter is accepted as a fallback.
func serveWS(hub *realtime.Hub, coord *realtime.Coordinator, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		user, err := auth.UserFromAuthHeader(authHeader)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade")
			return nil
		}
		conn := realtime.NewConn(hub, coord, ws, user)
		hub.Register(conn)
		go conn.WritePump()
		go conn.ReadPump()
		return nil
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	return dec.Decode(out)
}
