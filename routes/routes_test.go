package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"civicreport-be/controllers"
	"civicreport-be/feed"
	"civicreport-be/logger"
	"civicreport-be/middlewares"
	"civicreport-be/mocks"
	"civicreport-be/models"
	"civicreport-be/routes"
	"civicreport-be/services"
	"civicreport-be/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
	controllers.RegisterValidators()
}

type fakeWatcher struct {
	events chan feed.Event
}

func (w *fakeWatcher) Watch(context.Context, primitive.ObjectID) (<-chan feed.Event, error) {
	return w.events, nil
}

type apiEnv struct {
	router         *gin.Engine
	store          *testutil.Store
	uploader       *mocks.MockObjectUploader
	watcher        *fakeWatcher
	citizen        *models.Profile
	authority      *models.Profile
	citizenToken   string
	authorityToken string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctx := context.Background()

	l := logrus.New()
	l.SetOutput(io.Discard)
	log := logger.Wrap(l, "test")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	env := &apiEnv{
		store:    testutil.NewStore(),
		uploader: mocks.NewMockObjectUploader(gomock.NewController(t)),
		watcher:  &fakeWatcher{events: make(chan feed.Event, 4)},
	}
	profiles := env.store.Profiles()

	auth := services.NewAuthService(profiles, rdb, services.NewLogOTPSender(log), services.AuthConfig{
		Secret:   "test-secret",
		TokenTTL: time.Hour,
		OTPTTL:   5 * time.Minute,
	})
	var err error
	env.citizen, err = auth.Register(ctx, services.RegisterInput{FullName: "Robin Diaz", Email: "robin@example.com", Password: "secret1"})
	require.NoError(t, err)

	env.authority = &models.Profile{Email: "desk@city.gov", FullName: "City Desk", Password: "secret1", Role: models.Authority}
	require.NoError(t, env.authority.HashPassword())
	require.NoError(t, profiles.Insert(ctx, env.authority))

	location := services.NewLocationService(rdb, 10*time.Minute)
	push := services.NewPushService(profiles, nil, log)
	issues := services.NewIssueService(services.IssueDeps{
		Tx:            env.store,
		Issues:        env.store.Issues(),
		Updates:       env.store.Updates(),
		Upvotes:       env.store.Upvotes(),
		Comments:      env.store.Comments(),
		Photos:        env.store.Photos(),
		Notifications: env.store.Notifications(),
		Location:      location,
		Push:          push,
		Log:           log,
	})
	photos := services.NewPhotoService(env.store.Issues(), env.store.Photos(), env.uploader, "photos", "")
	notifications := services.NewNotificationService(env.store.Notifications(), env.watcher)

	env.router = gin.New()
	routes.Register(env.router, routes.Handlers{
		Auth:          controllers.NewAuthController(auth, controllers.CookieSettings{Domain: "localhost"}, log),
		Issues:        controllers.NewIssueController(issues, photos, log),
		Users:         controllers.NewUserController(services.NewProfileService(profiles), push, log),
		Location:      controllers.NewLocationController(location, log),
		Notifications: controllers.NewNotificationController(notifications, nil, nil, log),
		RequireAuth:   middlewares.AuthMiddleware(auth, log),
		IssueLimiter:  middlewares.IssueRateLimiter(rdb, "issue_limit", 3, log),
	})

	env.citizenToken = env.login(t, "robin@example.com")
	env.authorityToken = env.login(t, "desk@city.gov")
	return env
}

func (e *apiEnv) login(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"identifier": email, "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session struct {
		Token string `json:"token"`
	}
	decode(t, w, &session)
	require.NotEmpty(t, session.Token)
	return session.Token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (e *apiEnv) createIssue(t *testing.T, title string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/issues", e.citizenToken, gin.H{
		"title":       title,
		"description": "Reported from the street",
		"category":    "roads-traffic",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issue models.Issue
	decode(t, w, &issue)
	return issue.ID.Hex()
}

func TestAuthRoutes(t *testing.T) {
	env := newAPIEnv(t)

	t.Run("RegisterValidatesBody", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"full_name": "X", "email": "not-an-email", "password": "secret1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("RegisterDuplicate", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"full_name": "X", "email": "robin@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("LoginSetsCookie", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "robin@example.com", "password": "secret1"})
		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.NotEmpty(t, cookies)
		assert.Equal(t, middlewares.AuthCookie, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("LoginWrongPassword", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "robin@example.com", "password": "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Session", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/auth/session", env.citizenToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Profile models.Profile `json:"profile"`
		}
		decode(t, w, &body)
		assert.Equal(t, env.citizen.ID, body.Profile.ID)
		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("RequestOTP", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/otp", "", gin.H{"phone": "555-123-4567"})
		assert.Equal(t, http.StatusAccepted, w.Code)

		w = env.do(t, http.MethodPost, "/api/auth/otp", "", gin.H{"phone": "12"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(t, http.MethodPost, "/api/auth/otp/verify", "", gin.H{"phone": "5551234567", "code": "12ab56"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("LogoutRevokesToken", func(t *testing.T) {
		token := env.login(t, "robin@example.com")
		w := env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodGet, "/api/auth/session", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = env.do(t, http.MethodGet, "/api/auth/session", env.citizenToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestIssueRoutes(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createIssue(t, "Pothole on Elm")

	t.Run("RequiresAuth", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/issues/mine", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("CreateRejectsUnknownCategory", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/issues", env.citizenToken, gin.H{
			"title": "x", "description": "x", "category": "bridges",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("TriageIsAuthorityOnly", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/issues", env.citizenToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = env.do(t, http.MethodPatch, "/api/issues/"+id+"/status", env.citizenToken, gin.H{"status": "resolved"})
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = env.do(t, http.MethodGet, "/api/issues?filter=roads", env.authorityToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list services.TriageList
		decode(t, w, &list)
		require.Len(t, list.Issues, 1)
		assert.Equal(t, "Robin Diaz", list.Issues[0].ReporterName)
		assert.Equal(t, 1, list.Summary.Pending)

		w = env.do(t, http.MethodGet, "/api/issues?filter=bridges", env.authorityToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("StatusLifecycle", func(t *testing.T) {
		w := env.do(t, http.MethodPatch, "/api/issues/"+id+"/status", env.authorityToken, gin.H{"status": "resolved"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = env.do(t, http.MethodPatch, "/api/issues/"+id+"/status", env.authorityToken, gin.H{"status": "resolved"})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = env.do(t, http.MethodPatch, "/api/issues/"+id+"/status", env.authorityToken, gin.H{"status": "closed"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(t, http.MethodGet, "/api/issues/"+id+"/updates", env.citizenToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var updates []models.IssueUpdate
		decode(t, w, &updates)
		require.Len(t, updates, 1)
		assert.Equal(t, models.Resolved, updates[0].Status)

		w = env.do(t, http.MethodGet, "/api/notifications", env.citizenToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var notes []models.Notification
		decode(t, w, &notes)
		require.Len(t, notes, 1)
		assert.Equal(t, models.StatusUpdate, notes[0].Type)
	})

	t.Run("UpvoteToggles", func(t *testing.T) {
		var result services.UpvoteResult
		w := env.do(t, http.MethodPost, "/api/issues/"+id+"/upvote", env.authorityToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &result)
		assert.Equal(t, services.UpvoteResult{Voted: true, Count: 1}, result)

		w = env.do(t, http.MethodPost, "/api/issues/"+id+"/upvote", env.authorityToken, nil)
		decode(t, w, &result)
		assert.Equal(t, services.UpvoteResult{Voted: false, Count: 0}, result)
	})

	t.Run("Comments", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/issues/"+id+"/comments", env.authorityToken, gin.H{"content": "Crew notes", "is_internal": true})
		require.Equal(t, http.StatusCreated, w.Code)
		w = env.do(t, http.MethodPost, "/api/issues/"+id+"/comments", env.citizenToken, gin.H{"content": "Thanks!"})
		require.Equal(t, http.StatusCreated, w.Code)

		var comments []models.IssueComment
		decode(t, env.do(t, http.MethodGet, "/api/issues/"+id+"/comments", env.citizenToken, nil), &comments)
		assert.Len(t, comments, 1)
		decode(t, env.do(t, http.MethodGet, "/api/issues/"+id+"/comments", env.authorityToken, nil), &comments)
		assert.Len(t, comments, 2)
	})

	t.Run("BulkAssign", func(t *testing.T) {
		other := env.createIssue(t, "Flooded underpass")
		w := env.do(t, http.MethodPost, "/api/issues/bulk", env.authorityToken, gin.H{
			"ids": []string{id, other}, "action": "assign", "assigned_department": "Public Works",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"updated":2}`, w.Body.String())

		w = env.do(t, http.MethodPost, "/api/issues/bulk", env.authorityToken, gin.H{
			"ids": []string{"nope"}, "action": "assign", "assigned_department": "x",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownIssue", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/issues/"+primitive.NewObjectID().Hex(), env.citizenToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = env.do(t, http.MethodGet, "/api/issues/not-an-id", env.citizenToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIssueRateLimit(t *testing.T) {
	env := newAPIEnv(t)
	for i := 0; i < 3; i++ {
		env.createIssue(t, "Report")
	}
	w := env.do(t, http.MethodPost, "/api/issues", env.citizenToken, gin.H{
		"title": "One too many", "description": "x", "category": "other",
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLocationRoutes(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/location", env.citizenToken, gin.H{"latitude": 95, "longitude": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/location", env.citizenToken, gin.H{"latitude": 0, "longitude": 0})
	require.Equal(t, http.StatusOK, w.Code)

	id := env.createIssue(t, "Fallen tree")
	var detail services.IssueDetail
	decode(t, env.do(t, http.MethodGet, "/api/issues/"+id, env.citizenToken, nil), &detail)
	require.NotNil(t, detail.Latitude)
	assert.Zero(t, *detail.Latitude)

	var pending services.PendingLocation
	decode(t, env.do(t, http.MethodGet, "/api/location/pending", env.citizenToken, nil), &pending)
	assert.Nil(t, pending.Coordinates)

	var pins []models.IssueView
	decode(t, env.do(t, http.MethodGet, "/api/issues/map", env.citizenToken, nil), &pins)
	assert.Len(t, pins, 1)
}

func TestProfileRoutes(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPatch, "/api/profile", env.citizenToken, gin.H{"full_name": "Robin D.", "bio": "Cyclist"})
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Profile
	decode(t, w, &p)
	assert.Equal(t, "Robin D.", p.FullName)
	assert.Equal(t, models.Citizen, p.Role)

	w = env.do(t, http.MethodPost, "/api/push/register", env.citizenToken, gin.H{"token": "device-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/api/push/register", env.citizenToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPhotoUpload(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createIssue(t, "Broken sign")
	env.uploader.EXPECT().PutObject(gomock.Any(), gomock.Any()).Return(&s3.PutObjectOutput{}, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="photo"; filename="sign.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("caption", "From the north"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/issues/"+id+"/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.citizenToken)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var photo models.IssuePhoto
	decode(t, w, &photo)
	assert.True(t, photo.IsPrimary)
	assert.True(t, strings.HasPrefix(photo.PhotoURL, "https://photos.s3.amazonaws.com/issues/"+id+"/"))
	assert.Equal(t, "From the north", *photo.Caption)
}

type feedFrame struct {
	Type          string                `json:"type"`
	Notifications []models.Notification `json:"notifications"`
	Notification  *models.Notification  `json:"notification"`
	ID            string                `json:"id"`
	Unread        int                   `json:"unread"`
	Error         string                `json:"error"`
}

// dialFeed opens the citizen's feed socket and returns it with a frame reader.
func dialFeed(t *testing.T, env *apiEnv) (*websocket.Conn, func() feedFrame) {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	header := http.Header{"Authorization": []string{"Bearer " + env.citizenToken}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/notifications/ws", header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	return conn, func() feedFrame {
		var f feedFrame
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}
}

func TestNotificationFeed(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	existing := &models.Notification{UserID: env.citizen.ID, Title: "Welcome", Type: models.StatusUpdate, CreatedAt: time.Now()}
	require.NoError(t, env.store.Notifications().Insert(ctx, existing))

	conn, read := dialFeed(t, env)

	snapshot := read()
	assert.Equal(t, "snapshot", snapshot.Type)
	require.Len(t, snapshot.Notifications, 1)
	assert.Equal(t, 1, snapshot.Unread)

	fresh := models.Notification{ID: primitive.NewObjectID(), UserID: env.citizen.ID, Title: "Issue resolved", Type: models.StatusUpdate, CreatedAt: time.Now()}
	require.NoError(t, env.store.Notifications().Insert(ctx, &fresh))
	env.watcher.events <- feed.Event{Kind: feed.Insert, Notification: fresh}

	inserted := read()
	assert.Equal(t, "insert", inserted.Type)
	require.NotNil(t, inserted.Notification)
	assert.Equal(t, fresh.ID, inserted.Notification.ID)
	assert.Equal(t, 2, inserted.Unread)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "mark_read", "id": fresh.ID.Hex()}))
	marked := read()
	assert.Equal(t, "marked_read", marked.Type)
	assert.Equal(t, 1, marked.Unread)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "mark_read", "id": "bad"}))
	assert.Equal(t, "error", read().Type)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "subscribe"}))
	unknown := read()
	assert.Equal(t, "error", unknown.Type)
	assert.Equal(t, "Unknown command", unknown.Error)
}

func TestNotificationFeedSnapshotComesFirst(t *testing.T) {
	env := newAPIEnv(t)

	live := models.Notification{ID: primitive.NewObjectID(), UserID: env.citizen.ID, Title: "New upvote", Type: models.NewUpvote, CreatedAt: time.Now()}
	env.watcher.events <- feed.Event{Kind: feed.Insert, Notification: live}

	_, read := dialFeed(t, env)

	first := read()
	assert.Equal(t, "snapshot", first.Type)
	assert.Empty(t, first.Notifications)
	assert.Zero(t, first.Unread)

	second := read()
	assert.Equal(t, "insert", second.Type)
	require.NotNil(t, second.Notification)
	assert.Equal(t, live.ID, second.Notification.ID)
	assert.Equal(t, 1, second.Unread)
}
