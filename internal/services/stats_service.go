package services

import (
	"sync"
	"time"

	"github.com/factunabo/factunabo-service/internal/database"
	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/sirupsen/logrus"
)

// StatsService sirve las métricas del panel con un cache de una sola
// entrada: sello de tiempo, TTL corto e invalidación explícita. Una
// antigüedad de pocos segundos es aceptable para estas métricas.
type StatsService struct {
	historyRepo *database.HistoryRepository
	ttl         time.Duration
	logger      *logrus.Logger

	mu          sync.Mutex
	cached      *models.DashboardStats
	lastUpdated time.Time
}

// NewStatsService crea una nueva instancia del servicio
func NewStatsService(db *database.DB, ttl time.Duration, logger *logrus.Logger) *StatsService {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &StatsService{
		historyRepo: database.NewHistoryRepository(db, logger),
		ttl:         ttl,
		logger:      logger,
	}
}

// Invalidate descarta la entrada cacheada; la siguiente lectura
// recalcula contra la base de datos
func (s *StatsService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.lastUpdated = time.Time{}
}

// GetDashboardStats devuelve las métricas del panel, desde cache si la
// entrada sigue vigente. Con force se ignora el cache. Un error de
// almacenamiento degrada a métricas a cero con el error registrado.
func (s *StatsService) GetDashboardStats(force bool) models.DashboardStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && s.cached != nil && time.Since(s.lastUpdated) < s.ttl {
		return *s.cached
	}

	stats, err := s.historyRepo.DashboardStats()
	if err != nil {
		s.logger.Errorf("Error computing dashboard stats: %v", err)
		return models.DashboardStats{}
	}

	s.cached = &stats
	s.lastUpdated = time.Now()
	return stats
}
