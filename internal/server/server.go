package server

import (
	"container/list"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/idot-digital/eventsource/internal/metrics"
	"github.com/idot-digital/eventsource/internal/models"
	"github.com/idot-digital/eventsource/internal/pipeline"
	"github.com/idot-digital/eventsource/internal/storage"
)

// Server holds the shared dependencies of the HTTP handlers and fans newly
// appended events out to live stream listeners.
type Server struct {
	db                  *sql.DB
	store               storage.Store
	pipeline            *pipeline.Pipeline
	eventEmitterChannel chan *models.Event
	eventListeners      *list.List
	logger              *slog.Logger
	totalClients        int
	clientsMutex        sync.Mutex
	maxTotalClients     int
	clientBufferSize    int
}

func New(db *sql.DB, store storage.Store, pl *pipeline.Pipeline, bufferSize int, maxTotalClients int, clientBufferSize int, logger *slog.Logger) *Server {
	emitterChannel := make(chan *models.Event, bufferSize)
	listeners := list.New()

	s := &Server{
		db:                  db,
		store:               store,
		pipeline:            pl,
		eventEmitterChannel: emitterChannel,
		eventListeners:      listeners,
		logger:              logger,
		maxTotalClients:     maxTotalClients,
		clientBufferSize:    clientBufferSize,
	}

	go func() {
		for event := range emitterChannel {
			s.clientsMutex.Lock()
			for listener := listeners.Front(); listener != nil; listener = listener.Next() {
				select {
				case listener.Value.(chan *models.Event) <- event:
				default:
					// Slow listener; it resumes from the log on its own.
				}
			}
			s.clientsMutex.Unlock()
		}
	}()

	return s
}

func (s *Server) GetDB() *sql.DB {
	return s.db
}

func (s *Server) GetStore() storage.Store {
	return s.store
}

func (s *Server) GetPipeline() *pipeline.Pipeline {
	return s.pipeline
}

func (s *Server) GetEmitterChan() chan *models.Event {
	return s.eventEmitterChannel
}

func (s *Server) GetLogger() *slog.Logger {
	return s.logger
}

// AttachListener registers a live stream listener and returns its channel.
func (s *Server) AttachListener() (chan *models.Event, *list.Element, error) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()

	if s.totalClients >= s.maxTotalClients {
		return nil, nil, fmt.Errorf("maximum number of total clients reached")
	}

	channel := make(chan *models.Event, s.clientBufferSize)
	elmt := s.eventListeners.PushBack(channel)
	s.totalClients++

	metrics.ActiveEventStreams.Inc()

	return channel, elmt, nil
}

func (s *Server) DetachListener(listener *list.Element) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()

	s.eventListeners.Remove(listener)
	s.totalClients--

	metrics.ActiveEventStreams.Dec()
}
