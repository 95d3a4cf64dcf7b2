package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	models "github.com/phillip/volunteer-hub-go/models"
	moderation "github.com/phillip/volunteer-hub-go/moderation"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

func init() { gin.SetMode(gin.TestMode) }

type harness struct {
	t   *testing.T
	r   *gin.Engine
	cfg *config.Config
}

func newHarness(t *testing.T, tweak ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.NewTest()
	for _, fn := range tweak {
		fn(cfg)
	}
	r := gin.New()
	SetupRoutes(r, cfg)
	return &harness{t: t, r: r, cfg: cfg}
}

func (h *harness) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

// raw serves a request without failing the test, for use from goroutines.
func (h *harness) raw(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type authResponse struct {
	User   models.User     `json:"user"`
	Tokens utils.TokenPair `json:"tokens"`
}

// signup registers a user and returns its access token and id.
func (h *harness) signup(email, name string) (string, primitive.ObjectID) {
	h.t.Helper()
	w := h.do(http.MethodPost, "/auth/register", "", gin.H{
		"email": email, "password": "volunteer-pass", "display_name": name,
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[authResponse](h.t, w)
	return res.Tokens.AccessToken, res.User.ID
}

func (h *harness) login(email string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": "volunteer-pass"})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return decode[authResponse](h.t, w).Tokens.AccessToken
}

func (h *harness) admin() string {
	h.t.Helper()
	_, id := h.signup("admin@hub.org", "Admin")
	require.NoError(h.t, h.cfg.Store.Users.Update(context.Background(), id, bson.M{"role": models.RoleAdmin}))
	return h.login("admin@hub.org")
}

// notified reports whether the user has a notification whose title contains s.
func (h *harness) notified(userID primitive.ObjectID, s string) bool {
	h.t.Helper()
	notes, err := h.cfg.Store.Notifications.ListByUser(context.Background(), userID, 50)
	require.NoError(h.t, err)
	for _, n := range notes {
		if strings.Contains(n.Title, s) {
			return true
		}
	}
	return false
}

func projectBody(title string) gin.H {
	return gin.H{
		"title":             title,
		"description":       "Help clean the river banks",
		"organization":      "River Friends",
		"category":          "environment",
		"location":          "Riverside",
		"contact_email":     "team@river.org",
		"skills":            []string{"cleanup", "logistics"},
		"volunteers_needed": 5,
		"start_date":        "2030-05-01",
		"end_date":          "2030-05-03",
	}
}

func eventBody(title string, capacity int) gin.H {
	return gin.H{
		"title":         title,
		"description":   "Community tree planting",
		"organization":  "Green City",
		"category":      "environment",
		"contact_email": "events@green.org",
		"event_date":    time.Now().UTC().Add(72 * time.Hour).Format("2006-01-02"),
		"start_time":    "10:00",
		"end_time":      "14:00",
		"capacity":      capacity,
	}
}

func (h *harness) createApproved(kind string, body gin.H, owner, admin string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/"+kind, owner, body)
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[gin.H](h.t, w)["id"].(string)

	w = h.do(http.MethodPost, "/admin/"+kind+"/"+id+"/review", admin, gin.H{"decision": "approve"})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return id
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuthFlows(t *testing.T) {
	h := newHarness(t)
	_, _ = h.signup("ana@example.org", "Ana")

	w := h.do(http.MethodPost, "/auth/register", "", gin.H{
		"email": "ANA@example.org", "password": "volunteer-pass", "display_name": "Ana again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/auth/register", "", gin.H{"email": "not-an-email", "password": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	details := decode[map[string]interface{}](t, w)["details"].(map[string]interface{})
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")

	w = h.do(http.MethodPost, "/auth/login", "", gin.H{"email": "ana@example.org", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/auth/login", "", gin.H{"email": "ana@example.org", "password": "volunteer-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	tokens := decode[authResponse](t, w).Tokens

	w = h.do(http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens cannot refresh")

	w = h.do(http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[utils.TokenPair](t, w).AccessToken)

	w = h.do(http.MethodGet, "/users/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ana", decode[models.User](t, w).DisplayName)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = h.do(http.MethodGet, "/users", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOTPIsSingleUse(t *testing.T) {
	h := newHarness(t)
	h.signup("otp@example.org", "Otto")

	w := h.do(http.MethodPost, "/auth/request-otp", "", gin.H{"email": "nobody@example.org"})
	require.Equal(t, http.StatusOK, w.Code, "unknown emails look the same")

	w = h.do(http.MethodPost, "/auth/request-otp", "", gin.H{"email": "otp@example.org"})
	require.Equal(t, http.StatusOK, w.Code)

	sent := h.cfg.Mailer.(*utils.LogMailer).Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "otp@example.org", sent[0].To)
	m := regexp.MustCompile(`code is (\d{6})`).FindStringSubmatch(sent[0].Text)
	require.Len(t, m, 2, sent[0].Text)
	code := m[1]

	w = h.do(http.MethodPost, "/auth/verify-otp", "", gin.H{"email": "otp@example.org", "code": "000000"})
	if code != "000000" {
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w = h.do(http.MethodPost, "/auth/verify-otp", "", gin.H{"email": "otp@example.org", "code": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[authResponse](t, w).Tokens.AccessToken)

	w = h.do(http.MethodPost, "/auth/verify-otp", "", gin.H{"email": "otp@example.org", "code": code})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProjectLifecycle(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")

	w := h.do(http.MethodPost, "/projects", owner, projectBody("River cleanup"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.ProjectSubmission](t, w)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.False(t, created.IsVisible)
	require.Len(t, created.AuditTrail, 1)
	assert.Equal(t, models.ActionSubmitted, created.AuditTrail[0].Action)
	id := created.ID.Hex()

	// pending projects are not public
	w = h.do(http.MethodGet, "/projects", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-Total-Count"))
	w = h.do(http.MethodGet, "/projects/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(http.MethodGet, "/projects/"+id, owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// visibility needs approval first
	w = h.do(http.MethodPost, "/admin/projects/"+id+"/visibility", admin, gin.H{"visible": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/admin/projects/"+id+"/review", admin, gin.H{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[models.ProjectSubmission](t, w)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.True(t, approved.IsVisible)

	w = h.do(http.MethodGet, "/projects?q=river", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Len(t, decode[[]models.ProjectSubmission](t, w), 1)

	w = h.do(http.MethodGet, "/projects?q=river", "", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	// owners go through edit requests once approved
	w = h.do(http.MethodPatch, "/projects/"+id, owner, gin.H{"title": "Renamed"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/admin/projects/"+id+"/review", admin, gin.H{"decision": "reject"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "reject needs a reason")

	w = h.do(http.MethodPost, "/admin/projects/"+id+"/review", admin, gin.H{"decision": "reject", "reason": "missing dates"})
	require.Equal(t, http.StatusOK, w.Code)
	rejected := decode[models.ProjectSubmission](t, w)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.False(t, rejected.IsVisible)
	assert.Equal(t, "missing dates", rejected.RejectionReason)

	w = h.do(http.MethodPatch, "/projects/"+id, owner, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodPatch, "/projects/"+id, owner, gin.H{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodPatch, "/projects/"+id, owner, gin.H{"end_date": "2030-04-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "end before start")

	w = h.do(http.MethodPatch, "/projects/"+id, owner, gin.H{"title": "River cleanup 2030", "skills": []string{"boats"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated struct {
		Project models.ProjectSubmission `json:"project"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "River cleanup 2030", updated.Project.Title)
	assert.Equal(t, []string{"boats"}, updated.Project.Skills)

	w = h.do(http.MethodPost, "/projects/"+id+"/resubmit", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resubmitted := decode[models.ProjectSubmission](t, w)
	assert.Equal(t, models.StatusPending, resubmitted.Status)

	actions := []string{}
	for _, e := range resubmitted.AuditTrail {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		models.ActionSubmitted, models.ActionApproved, models.ActionRejected, models.ActionEdited, models.ActionResubmitted,
	}, actions)

	w = h.do(http.MethodPost, "/projects/"+id+"/resubmit", owner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/notifications", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Notification](t, w), 2)

	w = h.do(http.MethodGet, "/projects/mine", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ProjectSubmission](t, w), 1)
}

func TestVisibilityToggle(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	id := h.createApproved("events", eventBody("Tree planting", 0), owner, admin)

	w := h.do(http.MethodPost, "/admin/events/"+id+"/visibility", admin, gin.H{"visible": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.EventSubmission](t, w).IsVisible)

	w = h.do(http.MethodPost, "/admin/events/"+id+"/visibility", admin, gin.H{"visible": false})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/events", "", nil)
	assert.Equal(t, "0", w.Header().Get("X-Total-Count"))

	w = h.do(http.MethodPost, "/admin/events/"+id+"/visibility", owner, gin.H{"visible": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProfanityIsRejected(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.signup("owner@example.org", "Olive")

	w := h.do(http.MethodPost, "/projects", owner, projectBody("This is bullsh1t"))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "content contains prohibited language", body["error"])
}

func TestSubmissionRateLimit(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Submissions = moderation.NewLimiter(1, time.Hour)
	})
	owner, _ := h.signup("owner@example.org", "Olive")

	w := h.do(http.MethodPost, "/projects", owner, projectBody("First"))
	require.Equal(t, http.StatusCreated, w.Code)
	w = h.do(http.MethodPost, "/projects", owner, projectBody("Second"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// every route has its own budget
	w = h.do(http.MethodPost, "/events", owner, eventBody("Tree planting", 0))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestPerIPLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.RateLimitPerMinute = 1
	})

	w := h.do(http.MethodGet, "/healthz", "", nil, "X-Forwarded-For", "198.51.100.1")
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodGet, "/healthz", "", nil, "X-Forwarded-For", "198.51.100.2")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestApplications(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, ownerID := h.signup("owner@example.org", "Olive")
	vol, _ := h.signup("vol@example.org", "Vic")
	other, _ := h.signup("other@example.org", "Oscar")

	w := h.do(http.MethodPost, "/projects", owner, projectBody("Food bank"))
	require.Equal(t, http.StatusCreated, w.Code)
	pending := decode[gin.H](t, w)["id"].(string)
	w = h.do(http.MethodPost, "/projects/"+pending+"/applications", vol, gin.H{"motivation": "I like helping"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := h.createApproved("projects", projectBody("Soup kitchen"), owner, admin)
	w = h.do(http.MethodPost, "/projects/"+id+"/applications", vol, gin.H{"motivation": "I like cooking"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	app := decode[models.ProjectApplicationEntry](t, w)
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.Equal(t, "Vic", app.Name)
	assert.Equal(t, "vol@example.org", app.Email)

	w = h.do(http.MethodPost, "/projects/"+id+"/applications", vol, gin.H{"motivation": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// the owner heard about it
	assert.True(t, h.notified(ownerID, "New application"))

	w = h.do(http.MethodGet, "/projects/"+id+"/applications", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ProjectApplicationEntry](t, w), 1)
	w = h.do(http.MethodGet, "/projects/"+id+"/applications", other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	appID := app.ID.Hex()
	w = h.do(http.MethodPost, "/admin/applications/"+appID+"/review", admin, gin.H{"decision": "approve"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "applications are accepted, not approved")
	w = h.do(http.MethodPost, "/admin/applications/"+appID+"/review", admin, gin.H{"decision": "accept", "note": "welcome"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.ApplicationAccepted, decode[models.ProjectApplicationEntry](t, w).Status)

	w = h.do(http.MethodPost, "/applications/"+appID+"/withdraw", other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = h.do(http.MethodPost, "/applications/"+appID+"/withdraw", vol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	withdrawn := decode[models.ProjectApplicationEntry](t, w)
	assert.Equal(t, models.ApplicationWithdrawn, withdrawn.Status)
	assert.Len(t, withdrawn.AuditTrail, 3)

	// withdrawn applications do not block a new one
	w = h.do(http.MethodPost, "/projects/"+id+"/applications", vol, gin.H{"motivation": "back again"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodGet, "/admin/applications?status=pending&project_id="+id, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.ProjectApplicationEntry](t, w), 1)

	// deleting the project removes its applications
	w = h.do(http.MethodDelete, "/projects/"+id, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	projectID, _ := primitive.ObjectIDFromHex(id)
	left, err := h.cfg.Store.Applications.List(context.Background(), store.EntryFilter{TargetID: projectID})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func registrationOf(t *testing.T, h *harness, token string) models.EventRegistrationEntry {
	t.Helper()
	w := h.do(http.MethodGet, "/registrations/mine", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	regs := decode[[]models.EventRegistrationEntry](t, w)
	require.Len(t, regs, 1)
	return regs[0]
}

func TestRegistrationWaitlist(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	ana, anaID := h.signup("ana@example.org", "Ana")
	ben, benID := h.signup("ben@example.org", "Ben")
	cai, _ := h.signup("cai@example.org", "Cai")
	id := h.createApproved("events", eventBody("Tree planting", 2), owner, admin)
	ctx := context.Background()

	w := h.do(http.MethodPost, "/events/"+id+"/registrations", ana, gin.H{"guests": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	anaReg := decode[models.EventRegistrationEntry](t, w)
	assert.Equal(t, models.RegistrationRegistered, anaReg.Status)

	w = h.do(http.MethodPost, "/events/"+id+"/registrations", ana, gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/events/"+id+"/registrations", ben, gin.H{"guests": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RegistrationWaitlisted, decode[models.EventRegistrationEntry](t, w).Status)

	w = h.do(http.MethodPost, "/events/"+id+"/registrations", cai, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RegistrationWaitlisted, decode[models.EventRegistrationEntry](t, w).Status)

	// registered entries get a reminder ahead of the event
	rems, err := h.cfg.Store.Reminders.ListByUser(ctx, anaID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, models.TargetRegistration, rems[0].TargetType)
	assert.Equal(t, anaReg.ID, rems[0].TargetID)

	w = h.do(http.MethodGet, "/events/"+id+"/registrations", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.EventRegistrationEntry](t, w), 3)

	w = h.do(http.MethodPost, "/registrations/"+anaReg.ID.Hex()+"/cancel", ben, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = h.do(http.MethodPost, "/registrations/"+anaReg.ID.Hex()+"/cancel", ana, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RegistrationCancelled, decode[models.EventRegistrationEntry](t, w).Status)

	rems, err = h.cfg.Store.Reminders.ListByUser(ctx, anaID)
	require.NoError(t, err)
	assert.Empty(t, rems)

	// Ben (two seats) moves up; Cai stays behind him
	benReg := registrationOf(t, h, ben)
	assert.Equal(t, models.RegistrationRegistered, benReg.Status)
	assert.Equal(t, models.ActionPromoted, benReg.AuditTrail[len(benReg.AuditTrail)-1].Action)
	assert.Equal(t, models.RegistrationWaitlisted, registrationOf(t, h, cai).Status)

	rems, err = h.cfg.Store.Reminders.ListByUser(ctx, benID)
	require.NoError(t, err)
	assert.Len(t, rems, 1)
	notes, err := h.cfg.Store.Notifications.ListByUser(ctx, benID, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Title, "Tree planting")

	// a larger capacity lets Cai in
	w = h.do(http.MethodPatch, "/events/"+id, admin, gin.H{"capacity": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RegistrationRegistered, registrationOf(t, h, cai).Status)
}

func TestRegistrationClosedEvents(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	vol, _ := h.signup("vol@example.org", "Vic")

	past := eventBody("Yesterday", 0)
	past["event_date"] = time.Now().UTC().Add(-48 * time.Hour).Format("2006-01-02")
	id := h.createApproved("events", past, owner, admin)
	w := h.do(http.MethodPost, "/events/"+id+"/registrations", vol, gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)

	closed := eventBody("Deadline passed", 0)
	closed["registration_deadline"] = time.Now().UTC().Add(-time.Hour).Truncate(time.Minute).Add(30 * time.Second).Format(time.RFC3339)
	id = h.createApproved("events", closed, owner, admin)
	w = h.do(http.MethodPost, "/events/"+id+"/registrations", vol, gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)

	bad := eventBody("Deadline after start", 0)
	bad["registration_deadline"] = time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)
	w = h.do(http.MethodPost, "/events", owner, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditRequests(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, ownerID := h.signup("owner@example.org", "Olive")
	other, _ := h.signup("other@example.org", "Oscar")
	id := h.createApproved("projects", projectBody("Library help"), owner, admin)

	request := gin.H{"target_type": "project", "target_id": id, "changes": gin.H{"title": "Library helpers"}, "reason": "typo"}

	w := h.do(http.MethodPost, "/edit-requests", other, request)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/edit-requests", owner, gin.H{
		"target_type": "project", "target_id": id, "changes": gin.H{"status": "rejected"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/edit-requests", owner, request)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	er := decode[models.EditRequest](t, w)
	assert.Equal(t, models.EditPending, er.Status)

	w = h.do(http.MethodPost, "/edit-requests", owner, request)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/admin/edit-requests?status=pending", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.EditRequest](t, w), 1)

	path := "/admin/edit-requests/" + er.ID.Hex() + "/review"
	w = h.do(http.MethodPost, path, admin, gin.H{"decision": "approve", "note": "thanks"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decided := decode[models.EditRequest](t, w)
	assert.Equal(t, models.EditApproved, decided.Status)
	assert.Equal(t, "thanks", decided.ReviewNote)

	w = h.do(http.MethodPost, path, admin, gin.H{"decision": "reject"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/projects/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[models.ProjectSubmission](t, w)
	assert.Equal(t, "Library helpers", p.Title)
	assert.Equal(t, models.StatusApproved, p.Status)
	last := p.AuditTrail[len(p.AuditTrail)-1]
	assert.Equal(t, models.ActionEditApplied, last.Action)
	assert.Equal(t, "fields: title", last.Note)

	assert.True(t, h.notified(ownerID, "Edit request approved"))
}

func TestEditRequestGuestsRespectCapacity(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	vol, _ := h.signup("vol@example.org", "Vic")
	id := h.createApproved("events", eventBody("Beach day", 2), owner, admin)

	w := h.do(http.MethodPost, "/events/"+id+"/registrations", vol, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)
	reg := decode[models.EventRegistrationEntry](t, w)

	w = h.do(http.MethodPost, "/edit-requests", vol, gin.H{
		"target_type": "registration", "target_id": reg.ID.Hex(), "changes": gin.H{"guests": 5},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	er := decode[models.EditRequest](t, w)

	w = h.do(http.MethodPost, "/admin/edit-requests/"+er.ID.Hex()+"/review", admin, gin.H{"decision": "approve"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/edit-requests/mine", vol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[[]models.EditRequest](t, w)
	require.Len(t, mine, 1)
	assert.Equal(t, models.EditPending, mine[0].Status)
}

func TestAdminAnalyticsAndExport(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	h.createApproved("projects", projectBody("Park cleanup"), owner, admin)

	w := h.do(http.MethodGet, "/admin/analytics", owner, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/admin/analytics", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var overview struct {
		Users            int            `json:"users"`
		Projects         map[string]int `json:"projects"`
		ApprovalRate     float64        `json:"approval_rate"`
		VolunteersNeeded int            `json:"volunteers_needed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &overview))
	assert.Equal(t, 2, overview.Users)
	assert.Equal(t, 1, overview.Projects["total"])
	assert.Equal(t, 1, overview.Projects[models.StatusApproved])
	assert.Equal(t, 5, overview.VolunteersNeeded)

	w = h.do(http.MethodGet, "/admin/export/projects", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "projects-")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,"))
	assert.Contains(t, lines[1], "cleanup;logistics")

	w = h.do(http.MethodGet, "/admin/export/volunteers", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()

	w := h.do(http.MethodPost, "/admin/kb", admin, gin.H{
		"question": "How do I register for an event?",
		"answer":   "Open the event page and press register.",
		"keywords": []string{"register", "sign up"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodPost, "/chat", "", gin.H{"message": "How can I sign up for the beach event?"})
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[map[string]interface{}](t, w)
	assert.Equal(t, "Open the event page and press register.", reply["answer"])

	w = h.do(http.MethodPost, "/chat", "", gin.H{"message": "quantum chromodynamics"})
	require.Equal(t, http.StatusOK, w.Code)
	reply = decode[map[string]interface{}](t, w)
	assert.Contains(t, reply["answer"], h.cfg.SupportEmail)

	w = h.do(http.MethodPost, "/chat", "", gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/kb", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.KBEntry](t, w), 1)
}

func TestRemindersEndpoints(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	vol, volID := h.signup("vol@example.org", "Vic")
	id := h.createApproved("events", eventBody("Bake sale", 0), owner, admin)

	body := gin.H{
		"target_type": "event",
		"target_id":   id,
		"due_at":      time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"message":     "Bring the cakes",
	}
	w := h.do(http.MethodPost, "/reminders", vol, body)
	assert.Equal(t, http.StatusForbidden, w.Code, "no registration yet")

	w = h.do(http.MethodPost, "/events/"+id+"/registrations", vol, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodPost, "/reminders", vol, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rem := decode[models.Reminder](t, w)
	assert.Equal(t, "Reminder: Bake sale", rem.Subject)

	w = h.do(http.MethodGet, "/reminders/mine", vol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Reminder](t, w), 2, "manual plus the automatic one")

	// make the manual one due and run a pass
	ctx := context.Background()
	require.NoError(t, h.cfg.Store.Reminders.Update(ctx, rem.ID, bson.M{"due_at": time.Now().UTC().Add(-time.Minute)}))
	w = h.do(http.MethodPost, "/admin/reminders/run", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":1,"failed":0}`, w.Body.String())

	got, err := h.cfg.Store.Reminders.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent)

	w = h.do(http.MethodDelete, "/reminders/"+rem.ID.Hex(), owner, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = h.do(http.MethodDelete, "/reminders/"+rem.ID.Hex(), vol, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	rems, err := h.cfg.Store.Reminders.ListByUser(ctx, volID)
	require.NoError(t, err)
	assert.Len(t, rems, 1)
}

func TestNotificationsMarkRead(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	other, _ := h.signup("other@example.org", "Oscar")
	h.createApproved("projects", projectBody("Dog walking"), owner, admin)

	w := h.do(http.MethodGet, "/notifications", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[[]models.Notification](t, w)
	require.Len(t, notes, 1)
	assert.False(t, notes[0].Read)

	w = h.do(http.MethodPatch, "/notifications/"+notes[0].ID.Hex()+"/read", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(http.MethodPatch, "/notifications/"+notes[0].ID.Hex()+"/read", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/notifications", owner, nil)
	assert.True(t, decode[[]models.Notification](t, w)[0].Read)
}

func TestConcurrentRegistrationsRespectCapacity(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	id := h.createApproved("events", eventBody("Soup run", 1), owner, admin)

	tokens := make([]string, 5)
	for i := range tokens {
		tokens[i], _ = h.signup(fmt.Sprintf("vol%d@example.org", i), fmt.Sprintf("Vol %d", i))
	}

	var wg sync.WaitGroup
	codes := make([]int, len(tokens))
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			codes[i] = h.raw(http.MethodPost, "/events/"+id+"/registrations", token, `{}`).Code
		}(i, token)
	}
	wg.Wait()
	for _, code := range codes {
		assert.Equal(t, http.StatusCreated, code)
	}

	ctx := context.Background()
	eventID, _ := primitive.ObjectIDFromHex(id)
	registered, err := h.cfg.Store.Registrations.List(ctx, store.EntryFilter{
		TargetID: eventID, Statuses: []string{models.RegistrationRegistered},
	})
	require.NoError(t, err)
	assert.Len(t, registered, 1)

	event, err := h.cfg.Store.Events.Get(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, event.SeatsTaken)
}

func TestConcurrentEditApprovalsApplyOnce(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	id := h.createApproved("projects", projectBody("Library help"), owner, admin)

	w := h.do(http.MethodPost, "/edit-requests", owner, gin.H{
		"target_type": "project", "target_id": id, "changes": gin.H{"title": "Library helpers"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	er := decode[models.EditRequest](t, w)

	var wg sync.WaitGroup
	codes := make([]int, 3)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = h.raw(http.MethodPost, "/admin/edit-requests/"+er.ID.Hex()+"/review", admin, `{"decision":"approve"}`).Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusConflict, code)
		}
	}
	assert.Equal(t, 1, ok)

	w = h.do(http.MethodGet, "/projects/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	applied := 0
	for _, e := range decode[models.ProjectSubmission](t, w).AuditTrail {
		if e.Action == models.ActionEditApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
}

func TestMovingAnEventReschedulesReminders(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	vol, volID := h.signup("vol@example.org", "Vic")
	id := h.createApproved("events", eventBody("Harbour swim", 0), owner, admin)

	w := h.do(http.MethodPost, "/events/"+id+"/registrations", vol, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)

	moved := time.Now().UTC().Add(21 * 24 * time.Hour).Format("2006-01-02")
	w = h.do(http.MethodPatch, "/events/"+id, admin, gin.H{"event_date": moved, "start_time": "09:00", "end_time": "12:00"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rems, err := h.cfg.Store.Reminders.ListByUser(context.Background(), volID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, models.TargetRegistration, rems[0].TargetType)

	day, err := time.Parse("2006-01-02", moved)
	require.NoError(t, err)
	want := day.Add(9 * time.Hour).Add(-h.cfg.ReminderLeadTime)
	assert.True(t, want.Equal(rems[0].DueAt), "due_at %s, want %s", rems[0].DueAt, want)
}

func TestLeavingDropsPersonalReminders(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	vol, volID := h.signup("vol@example.org", "Vic")
	eventID := h.createApproved("events", eventBody("Bake sale", 0), owner, admin)
	projectID := h.createApproved("projects", projectBody("Soup kitchen"), owner, admin)
	ctx := context.Background()

	w := h.do(http.MethodPost, "/events/"+eventID+"/registrations", vol, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)
	reg := decode[models.EventRegistrationEntry](t, w)
	w = h.do(http.MethodPost, "/projects/"+projectID+"/applications", vol, gin.H{"motivation": "I like cooking"})
	require.Equal(t, http.StatusCreated, w.Code)
	app := decode[models.ProjectApplicationEntry](t, w)

	due := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	for _, target := range []gin.H{
		{"target_type": "event", "target_id": eventID},
		{"target_type": "project", "target_id": projectID},
	} {
		target["due_at"] = due
		w = h.do(http.MethodPost, "/reminders", vol, target)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	rems, err := h.cfg.Store.Reminders.ListByUser(ctx, volID)
	require.NoError(t, err)
	require.Len(t, rems, 3, "two personal plus the automatic one")

	w = h.do(http.MethodPost, "/registrations/"+reg.ID.Hex()+"/cancel", vol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rems, err = h.cfg.Store.Reminders.ListByUser(ctx, volID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, models.TargetProject, rems[0].TargetType)

	w = h.do(http.MethodPost, "/applications/"+app.ID.Hex()+"/withdraw", vol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rems, err = h.cfg.Store.Reminders.ListByUser(ctx, volID)
	require.NoError(t, err)
	assert.Empty(t, rems)
}

func TestDeleteUserReleasesActivity(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	ana, anaID := h.signup("ana@example.org", "Ana")
	ben, _ := h.signup("ben@example.org", "Ben")
	eventID := h.createApproved("events", eventBody("Beach day", 1), owner, admin)
	projectID := h.createApproved("projects", projectBody("Soup kitchen"), owner, admin)
	ctx := context.Background()

	w := h.do(http.MethodPost, "/events/"+eventID+"/registrations", ana, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)
	anaReg := decode[models.EventRegistrationEntry](t, w)
	w = h.do(http.MethodPost, "/events/"+eventID+"/registrations", ben, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RegistrationWaitlisted, decode[models.EventRegistrationEntry](t, w).Status)

	w = h.do(http.MethodPost, "/projects/"+projectID+"/applications", ana, gin.H{"motivation": "I like cooking"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = h.do(http.MethodPost, "/edit-requests", ana, gin.H{
		"target_type": "registration", "target_id": anaReg.ID.Hex(), "changes": gin.H{"notes": "vegetarian"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	er := decode[models.EditRequest](t, w)
	w = h.do(http.MethodPost, "/reminders", ana, gin.H{
		"target_type": "project", "target_id": projectID, "due_at": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodDelete, "/users/"+anaID.Hex(), ben, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = h.do(http.MethodDelete, "/users/"+anaID.Hex(), ana, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/users/me", ana, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, models.RegistrationRegistered, registrationOf(t, h, ben).Status)

	apps, err := h.cfg.Store.Applications.List(ctx, store.EntryFilter{UserID: anaID})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, models.ApplicationWithdrawn, apps[0].Status)

	got, err := h.cfg.Store.EditRequests.Get(ctx, er.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditRejected, got.Status)

	rems, err := h.cfg.Store.Reminders.ListByUser(ctx, anaID)
	require.NoError(t, err)
	assert.Empty(t, rems)

	event, err := h.cfg.Store.Events.Get(ctx, mustHex(t, eventID))
	require.NoError(t, err)
	assert.Equal(t, 1, event.SeatsTaken)
}

func mustHex(t *testing.T, s string) primitive.ObjectID {
	t.Helper()
	id, err := primitive.ObjectIDFromHex(s)
	require.NoError(t, err)
	return id
}

func TestDateOnlyDeadlineStaysOpenAllDay(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()
	owner, _ := h.signup("owner@example.org", "Olive")
	vol, _ := h.signup("vol@example.org", "Vic")

	today := time.Now().UTC().Format("2006-01-02")
	body := eventBody("Street party", 0)
	body["event_date"] = today
	body["registration_deadline"] = today
	delete(body, "start_time")
	delete(body, "end_time")
	id := h.createApproved("events", body, owner, admin)

	w := h.do(http.MethodPost, "/events/"+id+"/registrations", vol, gin.H{})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
