package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	filters "github.com/phillip/volunteer-hub-go/filters"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
	workflow "github.com/phillip/volunteer-hub-go/workflow"
)

var projects = submissionKind[models.ProjectSubmission]{
	name:   models.TargetProject,
	folder: "projects",
	repo: func(cfg *config.Config) store.SubmissionRepository[models.ProjectSubmission] {
		return cfg.Store.Projects
	},
	base:     func(p *models.ProjectSubmission) *models.SubmissionBase { return &p.SubmissionBase },
	fields:   filters.ProjectFields,
	validate: validateProject,
	cascade: func(ctx context.Context, cfg *config.Config, p *models.ProjectSubmission) error {
		if _, err := cfg.Store.Applications.DeleteForTarget(ctx, p.ID); err != nil {
			return err
		}
		_, err := cfg.Store.Reminders.DeleteUnsentForTarget(ctx, p.ID)
		return err
	},
}

func validateProject(p *models.ProjectSubmission) error {
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return errors.New("end_date must not be before start_date")
	}
	if p.VolunteersNeeded < 0 {
		return errors.New("volunteers_needed must not be negative")
	}
	return nil
}

// ---------------- CREATE ----------------
func CreateProject(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			submissionInput
			StartDate        *string  `json:"start_date" form:"start_date"`
			EndDate          *string  `json:"end_date" form:"end_date"`
			VolunteersNeeded int      `json:"volunteers_needed" form:"volunteers_needed" binding:"min=0"`
			Skills           []string `json:"skills" form:"skills" binding:"max=30"`
			Commitment       string   `json:"commitment" form:"commitment" binding:"max=100"`
		}

		texts := func() []string {
			return append(input.texts(), append([]string{input.Commitment}, input.Skills...)...)
		}
		build := func(userID primitive.ObjectID, images []string, now time.Time) (*models.ProjectSubmission, error) {
			start, err := utils.ParseOptionalDate(input.StartDate)
			if err != nil {
				return nil, errors.New("invalid start_date format, use RFC3339 or YYYY-MM-DD")
			}
			end, err := utils.ParseOptionalDate(input.EndDate)
			if err != nil {
				return nil, errors.New("invalid end_date format, use RFC3339 or YYYY-MM-DD")
			}
			p := &models.ProjectSubmission{
				SubmissionBase:   input.base(userID, images, now),
				StartDate:        start,
				EndDate:          end,
				VolunteersNeeded: input.VolunteersNeeded,
				Skills:           workflow.CleanList(input.Skills),
				Commitment:       input.Commitment,
			}
			return p, validateProject(p)
		}
		create(cfg, projects, c, &input, texts, build)
	}
}

func ListProjects(cfg *config.Config) gin.HandlerFunc     { return listPublic(cfg, projects) }
func ListAllProjects(cfg *config.Config) gin.HandlerFunc  { return listAll(cfg, projects) }
func MyProjects(cfg *config.Config) gin.HandlerFunc       { return listMine(cfg, projects) }
func GetProject(cfg *config.Config) gin.HandlerFunc       { return getOne(cfg, projects) }
func UpdateProject(cfg *config.Config) gin.HandlerFunc    { return update(cfg, projects) }
func AddProjectImages(cfg *config.Config) gin.HandlerFunc { return addImages(cfg, projects) }
func ResubmitProject(cfg *config.Config) gin.HandlerFunc  { return resubmit(cfg, projects) }
func DeleteProject(cfg *config.Config) gin.HandlerFunc    { return remove(cfg, projects) }
func ReviewProject(cfg *config.Config) gin.HandlerFunc    { return review(cfg, projects) }
func SetProjectVisibility(cfg *config.Config) gin.HandlerFunc {
	return visibility(cfg, projects)
}
