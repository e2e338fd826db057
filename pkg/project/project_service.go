package project

import "context"

type Service interface {
	Create(ctx context.Context, p Project) (Project, error)
	Get(ctx context.Context, id int) (Project, error)
	GetAll(ctx context.Context) ([]Project, error)
}

type ServiceImpl struct {
	repo Repo
}

func NewService(repo Repo) *ServiceImpl {
	return &ServiceImpl{repo: repo}
}

func (s *ServiceImpl) Create(ctx context.Context, p Project) (Project, error) {
	id, err := s.repo.Store(ctx, p)
	if err != nil {
		return Project{}, err
	}
	p.Id = id
	return p, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (Project, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) GetAll(ctx context.Context) ([]Project, error) {
	return s.repo.GetAll(ctx)
}
