package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

// CreatePlanInput is the administrator-facing plan definition.
type CreatePlanInput struct {
	Slug               string
	Name               string
	Description        string
	Kind               model.PlanKind
	CourseID           *string
	IncludesAllCourses bool
	ExcludedCourseIDs  []string
	Price              int64
	Currency           string
	DiscountPercent    int
	DurationMonths     int
	AvailableFrom      *time.Time
	AvailableUntil     *time.Time
	MaxSubscriptions   int64
}

// UpdatePlanInput patches an existing plan. Nil fields are left unchanged.
type UpdatePlanInput struct {
	Slug             *string
	Name             *string
	Description      *string
	Price            *int64
	DiscountPercent  *int
	DurationMonths   *int
	AvailableFrom    *time.Time
	AvailableUntil   *time.Time
	MaxSubscriptions *int64
	Active           *bool
}

type PlanUseCase interface {
	Create(ctx context.Context, in CreatePlanInput) (*model.Plan, error)
	Get(ctx context.Context, id string) (*model.Plan, error)
	GetBySlug(ctx context.Context, slug string) (*model.Plan, error)
	List(ctx context.Context, f repository.PlanFilter) ([]*model.Plan, error)
	Update(ctx context.Context, id string, in UpdatePlanInput) (*model.Plan, error)
	// Delete hard-deletes a plan; rejected while it still has subscriptions.
	Delete(ctx context.Context, id string) error
}

type planUC struct {
	plans repository.PlanRepository
	log   *zerolog.Logger
}

func NewPlanUseCase(plans repository.PlanRepository, logger *zerolog.Logger) *planUC {
	l := logger.With().Str("component", "PlanUC").Logger()
	return &planUC{plans: plans, log: &l}
}

func (uc *planUC) Create(ctx context.Context, in CreatePlanInput) (*model.Plan, error) {
	plan, err := model.NewPlan(uuid.NewString(), in.Slug, in.Name, in.Kind, in.Price, in.Currency, in.DiscountPercent, in.DurationMonths)
	if err != nil {
		return nil, err
	}
	plan.Description = in.Description
	plan.CourseID = in.CourseID
	plan.IncludesAllCourses = in.IncludesAllCourses
	plan.ExcludedCourseIDs = in.ExcludedCourseIDs
	plan.AvailableFrom = in.AvailableFrom
	plan.AvailableUntil = in.AvailableUntil
	plan.MaxSubscriptions = in.MaxSubscriptions
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	if err := uc.ensureIdentityFree(ctx, plan, ""); err != nil {
		return nil, err
	}
	if err := uc.plans.Save(ctx, repository.NoTX, plan); err != nil {
		return nil, err
	}
	uc.log.Info().Str("plan_id", plan.ID).Str("slug", plan.Slug).Str("kind", string(plan.Kind)).Msg("plan created")
	return plan, nil
}

func (uc *planUC) Get(ctx context.Context, id string) (*model.Plan, error) {
	return uc.plans.FindByID(ctx, repository.NoTX, id)
}

func (uc *planUC) GetBySlug(ctx context.Context, slug string) (*model.Plan, error) {
	return uc.plans.FindBySlug(ctx, repository.NoTX, slug)
}

func (uc *planUC) List(ctx context.Context, f repository.PlanFilter) ([]*model.Plan, error) {
	return uc.plans.List(ctx, repository.NoTX, f)
}

func (uc *planUC) Update(ctx context.Context, id string, in UpdatePlanInput) (*model.Plan, error) {
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}

	identityChanged := false
	if in.Slug != nil && *in.Slug != plan.Slug {
		plan.Slug = *in.Slug
		identityChanged = true
	}
	if in.Name != nil {
		plan.Name = *in.Name
	}
	if in.Description != nil {
		plan.Description = *in.Description
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return nil, domain.ErrInvalidArgument
		}
		plan.Price = *in.Price
	}
	if in.DiscountPercent != nil {
		if *in.DiscountPercent < 0 || *in.DiscountPercent > 100 {
			return nil, domain.ErrInvalidArgument
		}
		plan.DiscountPercent = *in.DiscountPercent
	}
	if in.DurationMonths != nil {
		plan.DurationMonths = *in.DurationMonths
	}
	if in.AvailableFrom != nil {
		plan.AvailableFrom = in.AvailableFrom
	}
	if in.AvailableUntil != nil {
		plan.AvailableUntil = in.AvailableUntil
	}
	if in.MaxSubscriptions != nil {
		plan.MaxSubscriptions = *in.MaxSubscriptions
	}
	if in.Active != nil {
		if *in.Active && !plan.Active {
			identityChanged = true // reactivation re-contests the course binding
		}
		plan.Active = *in.Active
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if identityChanged {
		if err := uc.ensureIdentityFree(ctx, plan, plan.ID); err != nil {
			return nil, err
		}
	}
	plan.UpdatedAt = time.Now()
	if err := uc.plans.Save(ctx, repository.NoTX, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (uc *planUC) Delete(ctx context.Context, id string) error {
	if err := uc.plans.Delete(ctx, repository.NoTX, id); err != nil {
		return err
	}
	uc.log.Info().Str("plan_id", id).Msg("plan deleted")
	return nil
}

// ensureIdentityFree rejects a plan whose slug or course binding is already
// taken by another active plan. selfID is excluded so updates do not collide
// with their own row.
func (uc *planUC) ensureIdentityFree(ctx context.Context, plan *model.Plan, selfID string) error {
	if existing, err := uc.plans.FindBySlug(ctx, repository.NoTX, plan.Slug); err == nil {
		if existing.ID != selfID {
			return domain.ErrAlreadyExists
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if plan.Kind == model.PlanKindCourse && plan.Active {
		existing, err := uc.plans.FindActiveByCourse(ctx, repository.NoTX, *plan.CourseID)
		switch {
		case err == nil && existing.ID != selfID:
			return domain.ErrAlreadyExists
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	return nil
}
