package revision

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/user"
)

type Service interface {
	// CreateRevision clones an approved or locked BOQ into a fresh draft with
	// the next version number. The version is the project's highest existing
	// version plus one, so revising an older document never reissues a number
	// a later revision already took. The clone carries the full section and
	// line structure but none of the original's consumption or approval stamps.
	CreateRevision(ctx context.Context, boqId int, reason string) (boq.BOQ, error)
	History(ctx context.Context, boqId int) ([]Revision, error)
}

type ServiceImpl struct {
	repo    Repo
	boqRepo boq.Repo
}

func NewService(repo Repo, boqRepo boq.Repo) *ServiceImpl {
	return &ServiceImpl{repo: repo, boqRepo: boqRepo}
}

func (s *ServiceImpl) CreateRevision(ctx context.Context, boqId int, reason string) (boq.BOQ, error) {
	if reason == "" {
		return boq.BOQ{}, boq.Validationf("a revision requires a reason")
	}
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return boq.BOQ{}, fmt.Errorf("creating a revision requires an acting user: %w", err)
	}

	original, err := s.boqRepo.GetFull(ctx, boqId)
	if err != nil {
		return boq.BOQ{}, err
	}
	if original.State != boq.StateApproved && original.State != boq.StateLocked {
		return boq.BOQ{}, boq.InvalidStateError{BoqId: boqId, State: original.State, Operation: "create revision"}
	}

	version, err := s.boqRepo.NextVersion(ctx, original.ProjectId)
	if err != nil {
		return boq.BOQ{}, err
	}

	clone := boq.BOQ{
		Name:              original.Name,
		ProjectId:         original.ProjectId,
		SaleOrderId:       original.SaleOrderId,
		AnalyticAccountId: original.AnalyticAccountId,
		CompanyId:         original.CompanyId,
		Currency:          original.Currency,
		Version:           version,
		State:             boq.StateDraft,
	}
	newId, err := s.boqRepo.Store(ctx, clone)
	if err != nil {
		return boq.BOQ{}, err
	}

	// Sections first so cloned lines can point at their new parents.
	sectionIds := make(map[int]int, len(original.Sections))
	for _, section := range original.Sections {
		id, err := s.boqRepo.AddSection(ctx, boq.Section{BoqId: newId, Name: section.Name, Sequence: section.Sequence})
		if err != nil {
			return boq.BOQ{}, err
		}
		sectionIds[section.Id] = id
	}

	for _, line := range original.Lines {
		line.Id = 0
		line.BoqId = newId
		line.SectionId = sectionIds[line.SectionId]
		line.IsComplete = false
		if _, err := s.boqRepo.AddLine(ctx, line); err != nil {
			return boq.BOQ{}, err
		}
	}

	if _, err := s.repo.Store(ctx, Revision{
		OriginalBoqId: boqId,
		NewBoqId:      newId,
		Reason:        reason,
		RequestedById: userId,
	}); err != nil {
		return boq.BOQ{}, err
	}

	log.Infof("created revision v%d of boq %d as boq %d", version, boqId, newId)
	return s.boqRepo.GetFull(ctx, newId)
}

func (s *ServiceImpl) History(ctx context.Context, boqId int) ([]Revision, error) {
	if _, err := s.boqRepo.Get(ctx, boqId); err != nil {
		return nil, err
	}
	return s.repo.ListForBoq(ctx, boqId)
}
