package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"taskman/domain"
)

const (
	requestBodyMaxSize = 64 * 1024 // 64 KiB
	bcryptCost         = 10

	defaultPage     = 1
	defaultPageSize = 10
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, users UserStore, tasks TaskStore, auth *Auth, logger *log.Logger) {
	e.POST("/register", registerUser(users, logger))
	e.POST("/login", loginUser(users, auth, logger))
	e.GET("/users", listUsers(users, logger), Authenticate(auth), RequireRoles(domain.RoleAdmin))

	authed := []echo.MiddlewareFunc{Authenticate(auth), RequireRoles(domain.RoleAdmin, domain.RoleUser)}
	e.POST("/task", createTask(tasks, logger), authed...)
	e.GET("/tasks", listTasks(tasks, logger), authed...)
	e.GET("/tasks/:id", getTask(tasks, logger), authed...)
	e.PUT("/tasks/:id", updateTask(tasks, logger), authed...)
	e.DELETE("/tasks/:id", deleteTask(tasks, logger), authed...)

	e.GET("/healthz", healthz())
}

type errorResponse struct {
	Error string `json:"error"`
}

type registerRequest struct {
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Usertype json.RawMessage `json:"usertype"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type loginRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Usertype json.RawMessage `json:"usertype"`
}

type loginResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Token   string `json:"token"`
}

type usersResponse struct {
	Message   string        `json:"message"`
	UsersList []domain.User `json:"userslist"`
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	DueDate     string `json:"dueDate"`
}

type taskCreatedResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
}

type tasksResponse struct {
	Tasks    []domain.Task `json:"tasks"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// roleFromRaw translates the external usertype encoding into the role enum.
// The field arrives as a bare integer or a quoted one; nothing downstream of
// this function ever sees the integer form.
func roleFromRaw(raw json.RawMessage) (domain.Role, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return 0, errors.New("missing user type")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid user type")
	}
	return domain.RoleFromUserType(n), nil
}

func registerUser(users UserStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Email == "" || req.Password == "" || len(req.Usertype) == 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email, password and user type are required"})
		}
		if !domain.ValidEmail(req.Email) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid email format"})
		}
		role, err := roleFromRaw(req.Usertype)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		// Read-then-insert, so concurrent registrations can race past this
		// check; the unique index on email makes the loser fail the insert.
		if _, err := users.FindUserByEmail(ctx, req.Email); err == nil {
			return c.JSON(http.StatusConflict, errorResponse{Error: "email already registered"})
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.WithError(err).Error("registration: user lookup failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			logger.WithError(err).Error("registration: password hash failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}

		user := domain.User{
			ID:           uuid.NewString(),
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
			Role:         role,
			Label:        role.String(),
		}
		if err := users.InsertUser(ctx, user); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return c.JSON(http.StatusConflict, errorResponse{Error: "email already registered"})
			}
			logger.WithError(err).Error("registration: insert failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return c.JSON(http.StatusCreated, registerResponse{Message: "User registered successfully", UserID: user.ID})
	}
}

func loginUser(users UserStore, auth *Auth, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Email == "" || req.Password == "" || len(req.Usertype) == 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email, password and user type are required"})
		}

		// The claimed user type is a required field but never authoritative;
		// the issued token always carries the stored role.
		user, err := users.FindUserByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Same response as a wrong password so callers cannot
				// enumerate accounts.
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid email or password"})
			}
			logger.WithError(err).Error("login: user lookup failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid email or password"})
		}

		token, err := auth.IssueToken(user.ID, user.Email, user.Role)
		if err != nil {
			logger.WithError(err).Error("login: token signing failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return c.JSON(http.StatusOK, loginResponse{Message: "Login successful", UserID: user.ID, Token: token})
	}
}

func listUsers(users UserStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := users.ListUsers(c.Request().Context())
		if err != nil {
			logger.WithError(err).Error("users: list failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return c.JSON(http.StatusOK, usersResponse{Message: "User list retrieved successfully", UsersList: list})
	}
}

// parseDueDate accepts the two date shapes clients send: RFC 3339 timestamps
// and bare yyyy-mm-dd days.
func parseDueDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func createTask(tasks TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ident, ok := IdentityFrom(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "access token required"})
		}
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Title == "" || req.Description == "" || req.Priority == "" || req.Status == "" || req.DueDate == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "all task fields are required"})
		}
		due, err := parseDueDate(req.DueDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid due date"})
		}

		// Ownership comes from the verified identity, never from the body.
		task := domain.Task{
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
			Status:      req.Status,
			DueDate:     due,
			OwnerID:     ident.SubjectID,
		}
		id, err := tasks.InsertTask(ctx, task)
		if err != nil {
			logger.WithError(err).Error("tasks: insert failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return c.JSON(http.StatusCreated, taskCreatedResponse{Message: "Task created successfully", TaskID: id.Hex()})
	}
}

func parsePageParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}

func listTasks(tasks TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		ident, ok := IdentityFrom(c)
		if !ok {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: "access token required"})
			return err
		}

		page, pageErr := parsePageParam(c.QueryParam("page"), defaultPage)
		if pageErr != nil {
			metrics.SetErrorStage("invalid_page")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid page"})
			return err
		}
		pageSize, sizeErr := parsePageParam(c.QueryParam("pageSize"), defaultPageSize)
		if sizeErr != nil {
			metrics.SetErrorStage("invalid_page_size")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid page size"})
			return err
		}
		metrics.SetPage(page, pageSize)

		filter := domain.TaskFilter{Priority: c.QueryParam("priority")}
		if raw := c.QueryParam("dueDate"); raw != "" {
			from, dateErr := parseDueDate(raw)
			if dateErr != nil {
				metrics.SetErrorStage("invalid_due_date")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid due date"})
				return err
			}
			filter.DueDateFrom = from
		}
		// Non-admin callers only ever see their own records; the owner
		// constraint is part of the query, not a post-hoc check on the page.
		if ident.Role != domain.RoleAdmin {
			filter.OwnerID = ident.SubjectID
			metrics.SetOwnerScoped(true)
		}

		skip := int64(page-1) * int64(pageSize)
		fetchStart := time.Now()
		list, fetchErr := tasks.FindTasks(ctx, filter, skip, int64(pageSize))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			logger.WithError(fetchErr).Error("tasks: find failed")
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return err
		}
		metrics.SetTasksReturned(len(list))
		if list == nil {
			list = []domain.Task{}
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: list, Page: page, PageSize: pageSize})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// loadAuthorizedTask validates the id, reads the record and checks ownership
// against that pre-write read. Every by-id operation goes through here so the
// check can never run against a write acknowledgement.
func loadAuthorizedTask(c echo.Context, tasks TaskStore) (domain.Task, bool) {
	ctx := c.Request().Context()
	ident, ok := IdentityFrom(c)
	if !ok {
		_ = c.JSON(http.StatusUnauthorized, errorResponse{Error: "access token required"})
		return domain.Task{}, false
	}
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid task ID"})
		return domain.Task{}, false
	}
	task, err := tasks.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		} else {
			c.Logger().Error(err)
			_ = c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return domain.Task{}, false
	}
	if ident.Role != domain.RoleAdmin && task.OwnerID != ident.SubjectID {
		_ = c.JSON(http.StatusForbidden, errorResponse{Error: "access denied"})
		return domain.Task{}, false
	}
	return task, true
}

func getTask(tasks TaskStore, _ *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok := loadAuthorizedTask(c, tasks)
		if !ok {
			return nil
		}
		return c.JSON(http.StatusOK, task)
	}
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	DueDate     *string `json:"dueDate"`
}

// patch keeps only present, non-empty fields. There is no path from the
// request body to the owner.
func (r updateTaskRequest) patch() (domain.TaskPatch, error) {
	var p domain.TaskPatch
	if r.Title != nil && *r.Title != "" {
		p.Title = r.Title
	}
	if r.Description != nil && *r.Description != "" {
		p.Description = r.Description
	}
	if r.Priority != nil && *r.Priority != "" {
		p.Priority = r.Priority
	}
	if r.Status != nil && *r.Status != "" {
		p.Status = r.Status
	}
	if r.DueDate != nil && *r.DueDate != "" {
		due, err := parseDueDate(*r.DueDate)
		if err != nil {
			return domain.TaskPatch{}, errors.New("invalid due date")
		}
		p.DueDate = &due
	}
	return p, nil
}

func updateTask(tasks TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		patch, err := req.patch()
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		task, ok := loadAuthorizedTask(c, tasks)
		if !ok {
			return nil
		}
		if patch.IsEmpty() {
			return c.JSON(http.StatusOK, messageResponse{Message: "Task updated successfully"})
		}

		// The write matches id and the owner read above, so it fails rather
		// than apply on a record whose ownership changed underneath us.
		if err := tasks.UpdateTask(ctx, task.ID, task.OwnerID, patch); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return c.JSON(http.StatusConflict, errorResponse{Error: "task was modified concurrently"})
			}
			logger.WithError(err).Error("tasks: update failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Task updated successfully"})
	}
}

func deleteTask(tasks TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		task, ok := loadAuthorizedTask(c, tasks)
		if !ok {
			return nil
		}
		if err := tasks.DeleteTask(ctx, task.ID, task.OwnerID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return c.JSON(http.StatusConflict, errorResponse{Error: "task was modified concurrently"})
			}
			logger.WithError(err).Error("tasks: delete failed")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Task deleted successfully"})
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}
