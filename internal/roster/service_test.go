package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkin/internal/queue"
)

type storeMock struct{ mock.Mock }

var _ AdminStore = (*storeMock)(nil)

func (m *storeMock) ListActiveTeams(ctx context.Context, batch int) ([]Team, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Team), args.Error(1)
}

func (m *storeMock) GetTeamByName(ctx context.Context, batch int, name string) (*Team, error) {
	args := m.Called(ctx, batch, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Team), args.Error(1)
}

func (m *storeMock) FindByName(ctx context.Context, name string, batch int) ([]Participant, error) {
	args := m.Called(ctx, name, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Participant), args.Error(1)
}

func (m *storeMock) CountByTeam(ctx context.Context, batch int) (map[string]int, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *storeMock) Create(ctx context.Context, p ParticipantCreate) (Participant, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(Participant), args.Error(1)
}

func (m *storeMock) Update(ctx context.Context, id string, upd ParticipantUpdate) (Participant, error) {
	args := m.Called(ctx, id, upd)
	return args.Get(0).(Participant), args.Error(1)
}

func (m *storeMock) GetByID(ctx context.Context, id string) (*Participant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Participant), args.Error(1)
}

func (m *storeMock) ListTeams(ctx context.Context, batch int) ([]Team, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Team), args.Error(1)
}

func (m *storeMock) GetTeam(ctx context.Context, id string) (*Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Team), args.Error(1)
}

func (m *storeMock) CreateTeam(ctx context.Context, in TeamCreate) (Team, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(Team), args.Error(1)
}

func (m *storeMock) UpdateTeam(ctx context.Context, id string, upd TeamUpdate) (Team, error) {
	args := m.Called(ctx, id, upd)
	return args.Get(0).(Team), args.Error(1)
}

func (m *storeMock) DeleteTeam(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *storeMock) ListParticipants(ctx context.Context, batch int, team string) ([]Participant, error) {
	args := m.Called(ctx, batch, team)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Participant), args.Error(1)
}

func (m *storeMock) DeleteParticipant(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func newService(store AdminStore, events queue.Queue) *Service {
	return NewService(store, events, zap.NewNop().Sugar(), time.Second)
}

func TestServiceCreateTeamValidation(t *testing.T) {
	m := &storeMock{}
	s := newService(m, nil)

	_, err := s.CreateTeam(context.Background(), TeamCreate{Name: "  ", Batch: 1})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.CreateTeam(context.Background(), TeamCreate{Name: "Fox", Batch: 0})
	require.ErrorIs(t, err, ErrInvalidArgument)
	m.AssertNotCalled(t, "CreateTeam", mock.Anything, mock.Anything)
}

func TestServiceCreateTeamPublishes(t *testing.T) {
	m := &storeMock{}
	events := queue.NewInMemory(4)
	s := newService(m, events)

	m.On("CreateTeam", mock.Anything, TeamCreate{Name: "Fox", Batch: 1}).
		Return(Team{ID: "t1", Name: "Fox", Batch: 1, IsActive: true}, nil).Once()

	team, err := s.CreateTeam(context.Background(), TeamCreate{Name: " Fox ", Batch: 1})
	require.NoError(t, err)
	require.Equal(t, "t1", team.ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch, err := events.Consume(ctx)
	require.NoError(t, err)
	evt := <-ch
	require.Equal(t, queue.TypeTeamChange, evt.Type)
	require.Equal(t, 1, evt.Batch)
	m.AssertExpectations(t)
}

func TestServiceCreateTeamConflict(t *testing.T) {
	m := &storeMock{}
	s := newService(m, nil)
	m.On("CreateTeam", mock.Anything, mock.Anything).Return(Team{}, ErrTeamExists).Once()

	_, err := s.CreateTeam(context.Background(), TeamCreate{Name: "Fox", Batch: 1})
	require.ErrorIs(t, err, ErrTeamExists)
}

func TestServiceListTeams(t *testing.T) {
	m := &storeMock{}
	s := newService(m, nil)
	m.On("ListActiveTeams", mock.Anything, 1).Return([]Team{{Name: "Fox"}}, nil).Once()
	m.On("ListTeams", mock.Anything, 1).Return([]Team{{Name: "Fox"}, {Name: "Off"}}, nil).Once()

	active, err := s.ListTeams(context.Background(), 1, false)
	require.NoError(t, err)
	require.Len(t, active, 1)

	all, err := s.ListTeams(context.Background(), 1, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	m.AssertExpectations(t)
}

func TestServiceMoveParticipant(t *testing.T) {
	kim := &Participant{ID: "p1", Name: "Kim", Team: "Fox", Batch: 1, RegisteredAt: time.Now()}

	cases := []struct {
		name    string
		target  string
		setup   func(m *storeMock)
		wantErr error
	}{
		{
			name:    "blank team",
			target:  " ",
			setup:   func(m *storeMock) {},
			wantErr: ErrInvalidArgument,
		},
		{
			name:   "missing participant",
			target: "Bear",
			setup: func(m *storeMock) {
				m.On("GetByID", mock.Anything, "p1").Return(nil, nil)
			},
			wantErr: ErrNotFound,
		},
		{
			name:   "unknown team",
			target: "Bear",
			setup: func(m *storeMock) {
				m.On("GetByID", mock.Anything, "p1").Return(kim, nil)
				m.On("GetTeamByName", mock.Anything, 1, "Bear").Return(nil, nil)
			},
			wantErr: ErrNotFound,
		},
		{
			name:   "inactive team",
			target: "Bear",
			setup: func(m *storeMock) {
				m.On("GetByID", mock.Anything, "p1").Return(kim, nil)
				m.On("GetTeamByName", mock.Anything, 1, "Bear").Return(&Team{Name: "Bear", Batch: 1}, nil)
			},
			wantErr: ErrTeamInactive,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &storeMock{}
			tc.setup(m)
			_, err := newService(m, nil).MoveParticipant(context.Background(), "p1", tc.target)
			require.ErrorIs(t, err, tc.wantErr)
			m.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestServiceMoveParticipantUpdatesTeamOnly(t *testing.T) {
	m := &storeMock{}
	events := &eventsRecorder{}
	s := newService(m, events)

	kim := &Participant{ID: "p1", Name: "Kim", Team: "Fox", Batch: 1}
	bear := "Bear"
	m.On("GetByID", mock.Anything, "p1").Return(kim, nil)
	m.On("GetTeamByName", mock.Anything, 1, "Bear").Return(&Team{Name: "Bear", Batch: 1, IsActive: true}, nil)
	m.On("Update", mock.Anything, "p1", ParticipantUpdate{Team: &bear}).
		Return(Participant{ID: "p1", Name: "Kim", Team: "Bear", Batch: 1}, nil).Once()

	moved, err := s.MoveParticipant(context.Background(), "p1", "Bear")
	require.NoError(t, err)
	require.Equal(t, "Bear", moved.Team)
	require.Len(t, events.got, 1)
	require.Equal(t, queue.TypeMoved, events.got[0].Type)
	require.Equal(t, "p1", events.got[0].ParticipantID)
	m.AssertExpectations(t)
}

func TestServiceMoveToSameTeamIsNoop(t *testing.T) {
	m := &storeMock{}
	kim := &Participant{ID: "p1", Team: "Fox", Batch: 1}
	m.On("GetByID", mock.Anything, "p1").Return(kim, nil)

	p, err := newService(m, nil).MoveParticipant(context.Background(), "p1", "Fox")
	require.NoError(t, err)
	require.Equal(t, "Fox", p.Team)
	m.AssertNotCalled(t, "GetTeamByName", mock.Anything, mock.Anything, mock.Anything)
}

func TestServiceDeleteTeamMissing(t *testing.T) {
	m := &storeMock{}
	m.On("GetTeam", mock.Anything, "t9").Return(nil, nil)

	err := newService(m, nil).DeleteTeam(context.Background(), "t9")
	require.ErrorIs(t, err, ErrNotFound)
	m.AssertNotCalled(t, "DeleteTeam", mock.Anything, mock.Anything)
}

func TestServiceSummary(t *testing.T) {
	m := &storeMock{}
	m.On("ListActiveTeams", mock.Anything, 1).Return([]Team{
		{Name: "Wolf"}, {Name: "Zebra"}, {Name: "Tiger"}, {Name: "Eagle"}, {Name: "Fox"},
	}, nil)
	m.On("CountByTeam", mock.Anything, 1).Return(map[string]int{"Tiger": 3, "Eagle": 1}, nil)

	sum, err := newService(m, nil).Summary(context.Background(), 1)
	require.NoError(t, err)

	names := make([]string, 0, len(sum))
	for _, tc := range sum {
		names = append(names, tc.Name)
	}
	require.Equal(t, []string{"Tiger", "Fox", "Wolf", "Eagle", "Zebra"}, names)
	require.Equal(t, 3, sum[0].Count)
	require.Equal(t, 0, sum[1].Count)
	require.Equal(t, 1, sum[3].Count)
}

func TestServiceSummaryCountFailure(t *testing.T) {
	m := &storeMock{}
	m.On("ListActiveTeams", mock.Anything, 1).Return([]Team{{Name: "Fox"}}, nil)
	m.On("CountByTeam", mock.Anything, 1).Return(nil, errors.New("boom"))

	_, err := newService(m, nil).Summary(context.Background(), 1)
	require.Error(t, err)
}

type eventsRecorder struct {
	got []queue.Event
}

func (r *eventsRecorder) Publish(_ context.Context, evt queue.Event) error {
	r.got = append(r.got, evt)
	return nil
}

func (r *eventsRecorder) Consume(ctx context.Context) (<-chan queue.Event, error) {
	return queue.Discard{}.Consume(ctx)
}
