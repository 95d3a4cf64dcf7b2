package controllers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	filters "github.com/phillip/volunteer-hub-go/filters"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
	workflow "github.com/phillip/volunteer-hub-go/workflow"
)

// submissionKind describes what differs between projects and events so the
// handlers below can serve both.
type submissionKind[T any] struct {
	name   string // edit request target type, also used in messages
	folder string // media folder
	repo   func(*config.Config) store.SubmissionRepository[T]
	base   func(*T) *models.SubmissionBase
	fields func(T) filters.Item
	// validate checks cross-field rules on a complete record
	validate func(*T) error
	// cascade removes records that depend on the submission
	cascade func(ctx context.Context, cfg *config.Config, sub *T) error
	// changed runs after fields were merged into the record
	changed func(ctx context.Context, cfg *config.Config, id primitive.ObjectID, changes bson.M, by primitive.ObjectID)
}

func (k submissionKind[T]) title() string {
	return strings.ToUpper(k.name[:1]) + k.name[1:]
}

// mergeDoc overlays changes on a copy of doc using the stored field names.
func mergeDoc[T any](doc *T, changes bson.M) (*T, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, v := range changes {
		m[k] = v
	}
	raw, err = bson.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out T
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func newestOf[T any](k submissionKind[T], items []T) (primitive.ObjectID, time.Time) {
	var id primitive.ObjectID
	var latest time.Time
	for i := range items {
		b := k.base(&items[i])
		if b.UpdatedAt.After(latest) {
			latest = b.UpdatedAt
			id = b.ID
		}
	}
	return id, latest
}

// uploadImages stores the multipart "images" files. Uploaded files are removed
// again when a later one fails.
func uploadImages(ctx context.Context, cfg *config.Config, c *gin.Context, field, folder string, existing int) ([]string, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return []string{}, true
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data"})
		return nil, false
	}

	files := form.File[field]
	if existing+len(files) > utils.MaxImages {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d images are allowed", utils.MaxImages)})
		return nil, false
	}
	for _, fh := range files {
		if err := utils.ValidateImage(fh); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
	}

	urls := []string{}
	rollback := func() {
		for _, u := range urls {
			if err := cfg.Media.Delete(ctx, u); err != nil {
				cfg.Log.Warn().Err(err).Str("url", u).Msg("could not remove uploaded image")
			}
		}
	}
	for _, fh := range files {
		url, err := uploadOne(ctx, cfg, fh, folder)
		if err != nil {
			rollback()
			if errors.Is(err, utils.ErrMediaUnavailable) {
				respondError(cfg, c, err, "")
				return nil, false
			}
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "image upload failed",
				"details": err.Error(),
				"file":    fh.Filename,
			})
			return nil, false
		}
		urls = append(urls, url)
	}
	return urls, true
}

func uploadOne(ctx context.Context, cfg *config.Config, fh *multipart.FileHeader, folder string) (string, error) {
	file, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	return cfg.Media.Upload(ctx, file, folder)
}

func deleteImages(ctx context.Context, cfg *config.Config, urls []string) {
	for _, u := range urls {
		if err := cfg.Media.Delete(ctx, u); err != nil {
			cfg.Log.Warn().Err(err).Str("url", u).Msg("could not delete image")
		}
	}
}

// ---------------- LIST (public) ----------------
func listPublic[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		criteria, err := filters.FromQuery(c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// status is fixed for public listings
		criteria.Status = ""

		ctx, cancel := requestContext(c)
		defer cancel()

		items, err := k.repo(cfg).List(ctx, store.SubmissionFilter{VisibleOnly: true})
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name+"s")
			return
		}
		page, total := filters.Apply(items, criteria, k.fields)

		id, latest := newestOf(k, page)
		etag := utils.ListETag(id, latest, total)
		c.Header("X-Total-Count", strconv.Itoa(total))
		if notModified(c, etag, latest) {
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// ---------------- LIST (admin) ----------------
func listAll[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		criteria, err := filters.FromQuery(c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		items, err := k.repo(cfg).List(ctx, store.SubmissionFilter{})
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name+"s")
			return
		}
		page, total := filters.Apply(items, criteria, k.fields)
		c.Header("X-Total-Count", strconv.Itoa(total))
		c.JSON(http.StatusOK, page)
	}
}

// ---------------- LIST (mine) ----------------
func listMine[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		items, err := k.repo(cfg).List(ctx, store.SubmissionFilter{SubmittedBy: userID})
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name+"s")
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// ---------------- GET ----------------
func getOne[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, k.name)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		doc, err := k.repo(cfg).Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name)
			return
		}

		// hidden submissions look missing to everyone but the owner and admins
		b := k.base(doc)
		userID, _ := currentUser(c)
		if !b.IsPublic() && !b.OwnedBy(userID) && !isAdmin(c) {
			c.JSON(http.StatusNotFound, gin.H{"error": k.name + " not found"})
			return
		}

		etag := utils.GenerateETag(b.ID, b.UpdatedAt)
		if notModified(c, etag, b.UpdatedAt) {
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// loadForChange fetches a submission and checks that the caller may change it
// directly: admins always, owners while it is not approved.
func loadForChange[T any](cfg *config.Config, k submissionKind[T], c *gin.Context, ctx context.Context) (*T, primitive.ObjectID, bool) {
	userID, ok := mustUser(c)
	if !ok {
		return nil, userID, false
	}
	id, ok := paramID(c, k.name)
	if !ok {
		return nil, userID, false
	}

	doc, err := k.repo(cfg).Get(ctx, id)
	if err != nil {
		respondError(cfg, c, err, "could not fetch "+k.name)
		return nil, userID, false
	}
	b := k.base(doc)
	if !isAdmin(c) {
		if !b.OwnedBy(userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return nil, userID, false
		}
		if b.Status == models.StatusApproved {
			c.JSON(http.StatusConflict, gin.H{
				"error": "approved " + k.name + "s are changed through an edit request",
				"hint":  "POST /edit-requests",
			})
			return nil, userID, false
		}
	}
	return doc, userID, true
}

// ---------------- UPDATE ----------------
func update[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		existing, userID, ok := loadForChange(cfg, k, c, ctx)
		if !ok {
			return
		}
		b := k.base(existing)

		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}

		// --- images: keep the listed subset of the current ones ---
		var removed []string
		keep, hasImages := body["images"]
		delete(body, "images")

		changes := bson.M{}
		if len(body) > 0 {
			normalized, err := workflow.NormalizeChanges(k.name, body)
			if err != nil {
				respondError(cfg, c, err, "")
				return
			}
			changes = normalized
		}
		if hasImages {
			kept, gone, err := keepImages(b.Images, keep)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			changes["images"] = kept
			removed = gone
		}

		if len(changes) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}
		if !moderate(cfg, c, stringValues(changes)...) {
			return
		}

		merged, err := mergeDoc(existing, changes)
		if err != nil {
			respondError(cfg, c, err, "could not update "+k.name)
			return
		}
		if err := k.validate(merged); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := k.repo(cfg).Transition(ctx, b.ID, workflow.Edited(b.Status, changes, userID, time.Now())); err != nil {
			respondError(cfg, c, err, "could not update "+k.name)
			return
		}
		deleteImages(ctx, cfg, removed)
		if k.changed != nil {
			k.changed(ctx, cfg, b.ID, changes, userID)
		}

		updated, err := k.repo(cfg).Get(ctx, b.ID)
		if err != nil {
			respondError(cfg, c, err, "could not fetch updated "+k.name)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": k.name + " updated successfully",
			k.name:    updated,
		})
	}
}

func keepImages(current []string, raw interface{}) (kept, removed []string, err error) {
	list, ok := raw.([]interface{})
	if !ok && raw != nil {
		return nil, nil, fmt.Errorf("images must be a list of existing image URLs")
	}
	have := map[string]bool{}
	for _, u := range current {
		have[u] = true
	}
	kept = []string{}
	keepSet := map[string]bool{}
	for _, el := range list {
		u, ok := el.(string)
		if !ok || !have[u] {
			return nil, nil, fmt.Errorf("images may only list existing image URLs")
		}
		if !keepSet[u] {
			keepSet[u] = true
			kept = append(kept, u)
		}
	}
	for _, u := range current {
		if !keepSet[u] {
			removed = append(removed, u)
		}
	}
	return kept, removed, nil
}

// ---------------- ADD IMAGES ----------------
func addImages[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		existing, userID, ok := loadForChange(cfg, k, c, ctx)
		if !ok {
			return
		}
		b := k.base(existing)

		urls, ok := uploadImages(ctx, cfg, c, "images", k.folder, len(b.Images))
		if !ok {
			return
		}
		if len(urls) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no images uploaded"})
			return
		}

		images := append(append([]string{}, b.Images...), urls...)
		if err := k.repo(cfg).Transition(ctx, b.ID, workflow.Edited(b.Status, bson.M{"images": images}, userID, time.Now())); err != nil {
			deleteImages(ctx, cfg, urls)
			respondError(cfg, c, err, "could not update "+k.name)
			return
		}
		c.JSON(http.StatusOK, gin.H{"images": images})
	}
}

// ---------------- RESUBMIT ----------------
func resubmit[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, k.name)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		doc, err := k.repo(cfg).Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name)
			return
		}
		b := k.base(doc)
		if !b.OwnedBy(userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		change, err := workflow.Resubmit(b.Status, userID, time.Now())
		if err != nil {
			respondError(cfg, c, err, "")
			return
		}
		if err := k.repo(cfg).Transition(ctx, id, change); err != nil {
			respondError(cfg, c, err, "could not resubmit "+k.name)
			return
		}

		updated, err := k.repo(cfg).Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// ---------------- DELETE ----------------
func remove[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, k.name)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		doc, err := k.repo(cfg).Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name)
			return
		}
		b := k.base(doc)
		if !isAdmin(c) && !b.OwnedBy(userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		if err := k.repo(cfg).Delete(ctx, id); err != nil {
			respondError(cfg, c, err, "failed to delete "+k.name)
			return
		}
		if err := k.cascade(ctx, cfg, doc); err != nil {
			cfg.Log.Error().Err(err).Str(k.name+"_id", id.Hex()).Msg("could not remove dependent records")
		}
		deleteImages(ctx, cfg, b.Images)

		c.JSON(http.StatusOK, gin.H{
			"message": k.name + " deleted successfully",
			"id":      id.Hex(),
		})
	}
}

// ---------------- REVIEW (admin) ----------------
func review[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, k.name)
		if !ok {
			return
		}
		var input struct {
			Decision string `json:"decision" binding:"required,oneof=approve reject"`
			Reason   string `json:"reason" binding:"max=1000"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		doc, err := k.repo(cfg).Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name)
			return
		}
		b := k.base(doc)

		change, err := workflow.Review(b.Status, input.Decision, strings.TrimSpace(input.Reason), adminID, time.Now())
		if err != nil {
			respondError(cfg, c, err, "")
			return
		}
		if err := k.repo(cfg).Transition(ctx, id, change); err != nil {
			respondError(cfg, c, err, "could not review "+k.name)
			return
		}

		title := fmt.Sprintf("%s %q was %s", k.title(), b.Title, change.To)
		body := "It is now visible to volunteers."
		if change.To == models.StatusRejected {
			body = "Reason: " + change.Entry.Note + ". You can edit it and resubmit."
		}
		notify(ctx, cfg, b.SubmittedBy, title, body, frontendLink(cfg, k.name+"s", id.Hex()))

		updated, err := k.repo(cfg).Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// ---------------- VISIBILITY (admin) ----------------
func visibility[T any](cfg *config.Config, k submissionKind[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, ok := mustUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, k.name)
		if !ok {
			return
		}
		var input struct {
			Visible *bool `json:"visible" binding:"required"`
		}
		if !bindInput(c, &input) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		doc, err := k.repo(cfg).Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name)
			return
		}
		b := k.base(doc)

		change, err := workflow.SetVisibility(b.Status, b.IsVisible, *input.Visible, adminID, time.Now())
		if err != nil {
			respondError(cfg, c, err, "")
			return
		}
		if err := k.repo(cfg).Transition(ctx, id, change); err != nil {
			respondError(cfg, c, err, "could not change visibility")
			return
		}

		updated, err := k.repo(cfg).Get(ctx, id)
		if err != nil {
			respondError(cfg, c, err, "could not fetch "+k.name)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// submissionInput holds the fields shared by project and event forms. It binds
// from JSON or multipart form data.
type submissionInput struct {
	Title        string `json:"title" form:"title" binding:"required,notblank,max=200"`
	Description  string `json:"description" form:"description" binding:"required,notblank,max=5000"`
	Organization string `json:"organization" form:"organization" binding:"required,notblank,max=200"`
	Category     string `json:"category" form:"category" binding:"required,notblank,max=100"`
	Location     string `json:"location" form:"location" binding:"max=200"`
	Remote       bool   `json:"remote" form:"remote"`
	ContactName  string `json:"contact_name" form:"contact_name" binding:"max=200"`
	ContactEmail string `json:"contact_email" form:"contact_email" binding:"required,email"`
	ContactPhone string `json:"contact_phone" form:"contact_phone" binding:"max=50"`
}

func (in submissionInput) texts() []string {
	return []string{in.Title, in.Description, in.Organization, in.Category, in.Location, in.ContactName}
}

func (in submissionInput) base(userID primitive.ObjectID, images []string, now time.Time) models.SubmissionBase {
	return models.SubmissionBase{
		ID:           primitive.NewObjectID(),
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Organization: strings.TrimSpace(in.Organization),
		Category:     strings.TrimSpace(in.Category),
		Location:     strings.TrimSpace(in.Location),
		Remote:       in.Remote,
		ContactName:  strings.TrimSpace(in.ContactName),
		ContactEmail: strings.ToLower(strings.TrimSpace(in.ContactEmail)),
		ContactPhone: strings.TrimSpace(in.ContactPhone),
		Images:       images,
		SubmittedBy:  userID,
		Status:       models.StatusPending,
		IsVisible:    false,
		AuditTrail:   []models.AuditEntry{workflow.Submitted(userID, now)},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// create binds input, moderates it, uploads images and stores the record
// built by build.
func create[T any](cfg *config.Config, k submissionKind[T], c *gin.Context, input interface{}, texts func() []string, build func(userID primitive.ObjectID, images []string, now time.Time) (*T, error)) {
	userID, ok := mustUser(c)
	if !ok {
		return
	}
	if !bindInput(c, input) {
		return
	}
	if !moderate(cfg, c, texts()...) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	// validate before uploading anything
	if _, err := build(userID, nil, time.Now()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	images, ok := uploadImages(ctx, cfg, c, "images", k.folder, 0)
	if !ok {
		return
	}

	doc, err := build(userID, images, time.Now().UTC())
	if err != nil {
		deleteImages(ctx, cfg, images)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := k.repo(cfg).Create(ctx, doc); err != nil {
		deleteImages(ctx, cfg, images)
		respondError(cfg, c, err, "could not create "+k.name)
		return
	}
	c.JSON(http.StatusCreated, doc)
}
