package health

import (
	"errors"

	"catastro-backend/internal/shared/config"
)

const (
	ServiceName = "CatastroAI Backend"
	Version     = "1.0.0"

	// projectUnset is reported in place of the project id when it is not configured.
	projectUnset = "No configurado"
)

// Status is the payload of the health endpoint.
type Status struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	Version      string `json:"version"`
	ConfigLoaded bool   `json:"config_loaded"`
	Project      string `json:"project"`
}

// Settings is the public view of the runtime configuration. Secrets never appear here.
type Settings struct {
	Project         string `json:"project"`
	Location        string `json:"location"`
	UseVertexAI     bool   `json:"use_vertex_ai"`
	AgentModel      string `json:"agent_model"`
	SecondaryModel  string `json:"secondary_model"`
	PrimaryProvider string `json:"primary_provider"`
	HistoryStore    string `json:"history_store"`
}

// ErrConfigUnavailable is returned by Settings when configuration failed validation.
var ErrConfigUnavailable = errors.New("health: configuration unavailable")

// Service encapsulates health-related checks.
type Service struct {
	Config    config.Config
	ConfigErr error
}

// NewService constructs a health service over the loaded configuration and
// the result of validating it.
func NewService(cfg config.Config, cfgErr error) *Service {
	return &Service{Config: cfg, ConfigErr: cfgErr}
}

// Status reports liveness. The process stays up with invalid configuration,
// so Status never fails; ConfigLoaded tells callers whether extraction works.
func (s *Service) Status() Status {
	project := s.Config.CloudProject
	if project == "" {
		project = projectUnset
	}
	return Status{
		Status:       "healthy",
		Service:      ServiceName,
		Version:      Version,
		ConfigLoaded: s.ConfigErr == nil,
		Project:      project,
	}
}

// Settings returns the non-secret configuration.
func (s *Service) Settings() (Settings, error) {
	if s.ConfigErr != nil {
		return Settings{}, ErrConfigUnavailable
	}
	return Settings{
		Project:         s.Config.CloudProject,
		Location:        s.Config.CloudLocation,
		UseVertexAI:     s.Config.VertexEnabled(),
		AgentModel:      s.Config.PrimaryModel,
		SecondaryModel:  s.Config.SecondaryModel,
		PrimaryProvider: s.Config.PrimaryProvider,
		HistoryStore:    s.Config.HistoryStore,
	}, nil
}
