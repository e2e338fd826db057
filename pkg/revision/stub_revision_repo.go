package revision

import "context"

// StubRepo is an in-memory Repo implementation for tests.
type StubRepo struct {
	Revisions []Revision
	StoreErr  error
}

func NewStubRepo() *StubRepo {
	return &StubRepo{}
}

func (s *StubRepo) Store(_ context.Context, r Revision) (int, error) {
	if s.StoreErr != nil {
		return 0, s.StoreErr
	}
	r.Id = len(s.Revisions) + 1
	s.Revisions = append(s.Revisions, r)
	return r.Id, nil
}

func (s *StubRepo) ListForBoq(_ context.Context, boqId int) ([]Revision, error) {
	var result []Revision
	for _, r := range s.Revisions {
		if r.OriginalBoqId == boqId || r.NewBoqId == boqId {
			result = append(result, r)
		}
	}
	return result, nil
}
