package project

import "context"

type StubRepo struct {
	nextId int
	data   map[int]Project
}

func NewStubRepo() *StubRepo {
	return &StubRepo{data: map[int]Project{}}
}

func (s *StubRepo) Store(ctx context.Context, p Project) (int, error) {
	s.nextId++
	p.Id = s.nextId
	s.data[p.Id] = p
	return p.Id, nil
}

func (s *StubRepo) Get(ctx context.Context, id int) (Project, error) {
	p, ok := s.data[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return p, nil
}

func (s *StubRepo) GetAll(ctx context.Context) ([]Project, error) {
	projects := make([]Project, 0, len(s.data))
	for _, p := range s.data {
		projects = append(projects, p)
	}
	return projects, nil
}

func (s *StubRepo) Cleanup() {
	s.data = map[int]Project{}
}
