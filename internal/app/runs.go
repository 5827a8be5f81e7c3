package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

var ErrEmptyRun = errors.New("no world url to process")

type StartRunRequest struct {
	URLs    []string `json:"urls,omitempty"`
	Refresh bool     `json:"refresh,omitempty"`
}

type RunDTO struct {
	ID        string              `json:"id"`
	State     domain.RunState     `json:"state"`
	Refresh   bool                `json:"refresh"`
	Total     int                 `json:"total"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
	Report    *domain.BatchReport `json:"report,omitempty"`
}

func ToRunDTO(r domain.Run) RunDTO {
	return RunDTO{
		ID:        r.ID,
		State:     r.State,
		Refresh:   r.Refresh,
		Total:     r.Total,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Report:    r.Report,
	}
}

// RunService lance les runs en arrière-plan, un seul à la fois pour tout le process.
type RunService struct {
	logger  zerolog.Logger
	repo    ports.RunRepository
	runner  *BatchRunner
	planner *RefreshPlanner
	delay   time.Duration

	mu     sync.Mutex
	active string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunService(logger zerolog.Logger, repo ports.RunRepository, runner *BatchRunner, planner *RefreshPlanner, delay time.Duration) *RunService {
	return &RunService{
		logger:  logger.With().Str("component", "runs").Logger(),
		repo:    repo,
		runner:  runner,
		planner: planner,
		delay:   delay,
	}
}

// Start planifie puis lance un run. base borne la durée de vie du run (arrêt du serveur).
func (s *RunService) Start(ctx, base context.Context, req StartRunRequest) (RunDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return RunDTO{}, ports.ErrConflict
	}

	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if req.Refresh && s.planner != nil {
		plan, err := s.planner.Plan(ctx)
		if err != nil {
			return RunDTO{}, err
		}
		urls = append(urls, plan.URLs...)
	}
	if len(urls) == 0 {
		return RunDTO{}, ErrEmptyRun
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, domain.Run{
		ID:        xid.New().String(),
		State:     domain.RunRunning,
		Refresh:   req.Refresh,
		Total:     len(urls),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return RunDTO{}, err
	}

	runCtx, cancel := context.WithCancel(base)
	s.active = created.ID
	s.cancel = cancel
	s.wg.Add(1)
	go s.execute(runCtx, cancel, created.ID, urls)

	return ToRunDTO(created), nil
}

func (s *RunService) execute(ctx context.Context, cancel context.CancelFunc, id string, urls []string) {
	defer s.wg.Done()
	defer cancel()

	report := s.runner.WithRunID(id).Run(ctx, urls, s.delay)
	if _, err := s.repo.Finish(context.WithoutCancel(ctx), id, domain.FinalState(report), report); err != nil {
		s.logger.Error().Err(err).Str("run", id).Msg("record run result")
	}

	s.mu.Lock()
	s.active = ""
	s.cancel = nil
	s.mu.Unlock()
}

func (s *RunService) Get(ctx context.Context, id string) (RunDTO, error) {
	run, err := s.repo.Get(ctx, id)
	if err != nil {
		return RunDTO{}, err
	}
	return ToRunDTO(run), nil
}

func (s *RunService) List(ctx context.Context, limit int) ([]RunDTO, error) {
	runs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunDTO, 0, len(runs))
	for _, r := range runs {
		out = append(out, ToRunDTO(r))
	}
	return out, nil
}

// Cancel demande l'arrêt du run actif; il s'arrête au prochain item.
func (s *RunService) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" || s.active != id {
		return ports.ErrNotFound
	}
	s.cancel()
	return nil
}

// Active renvoie l'id du run en cours ("" sinon).
func (s *RunService) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Wait bloque jusqu'à la fin des runs lancés.
func (s *RunService) Wait() { s.wg.Wait() }
