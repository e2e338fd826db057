package consumption

import "context"

// StubGatekeeper is an in-memory Service implementation for tests. It records
// every draw batch and returns a programmable error.
type StubGatekeeper struct {
	Batches    [][]Draw
	CheckErr   error
	EntriesSet map[int][]Entry
}

func NewStubGatekeeper() *StubGatekeeper {
	return &StubGatekeeper{EntriesSet: make(map[int][]Entry)}
}

func (s *StubGatekeeper) CheckAndReserve(_ context.Context, draws []Draw) error {
	if s.CheckErr != nil {
		return s.CheckErr
	}
	s.Batches = append(s.Batches, draws)
	return nil
}

func (s *StubGatekeeper) EntriesForLine(_ context.Context, lineId int) ([]Entry, error) {
	return s.EntriesSet[lineId], nil
}

// AllDraws flattens the recorded batches.
func (s *StubGatekeeper) AllDraws() []Draw {
	var all []Draw
	for _, batch := range s.Batches {
		all = append(all, batch...)
	}
	return all
}
