package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/verity-labs/research-orchestrator/internal/metrics"
)

// Manager handles session persistence with a Redis backend and a local
// read-through cache.
type Manager struct {
	client      *redis.Client
	logger      *zap.Logger
	ttl         time.Duration
	mu          sync.RWMutex
	localCache  map[string]*Session
	cacheAccess map[string]time.Time
	maxSessions int
}

// NewManager connects to Redis and returns a session manager.
func NewManager(redisAddr string, ttl time.Duration, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         ttl,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxSessions: 10000,
	}, nil
}

// NewManagerWithClient builds a manager around an existing client. Used by
// tests with miniredis.
func NewManagerWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         ttl,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxSessions: 10000,
	}
}

// Client exposes the Redis client so collaborators (the research cache) can
// share the connection pool.
func (m *Manager) Client() *redis.Client {
	return m.client
}

// CreateSession creates a new session with a generated ID.
func (m *Manager) CreateSession(ctx context.Context, userID string) (*Session, error) {
	return m.createSession(ctx, uuid.New().String(), userID)
}

// GetOrCreateSession returns the existing session for sessionID, or creates
// one. A session owned by a different user is never reused; a fresh ID is
// generated instead.
func (m *Manager) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	if sessionID == "" {
		return m.CreateSession(ctx, userID)
	}
	existing, err := m.GetSession(ctx, sessionID)
	if err == nil {
		if existing.UserID != "" && userID != "" && existing.UserID != userID {
			m.logger.Warn("Session ID reuse across users, generating new session",
				zap.String("requested_session_id", sessionID),
				zap.String("requesting_user", userID))
			return m.CreateSession(ctx, userID)
		}
		return existing, nil
	}
	if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
		return nil, err
	}
	return m.createSession(ctx, sessionID, userID)
}

func (m *Manager) createSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:           sessionID,
		UserID:       userID,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		Transcript:   make([]Message, 0),
		CacheEnabled: true,
	}

	if err := m.saveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[sessionID] = session
	m.cacheAccess[sessionID] = now
	m.cleanupLocalCache()
	metrics.ActiveSessions.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Created new session",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	metrics.SessionsCreated.Inc()

	return session, nil
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	if session, ok := m.localCache[sessionID]; ok {
		m.mu.RUnlock()
		metrics.SessionCacheHits.Inc()
		if session.IsExpired() {
			_ = m.DeleteSession(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return session, nil
	}
	m.mu.RUnlock()
	metrics.SessionCacheMisses.Inc()

	data, err := m.client.Get(ctx, m.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if session.IsExpired() {
		_ = m.DeleteSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.mu.Lock()
	m.localCache[sessionID] = &session
	m.cacheAccess[sessionID] = time.Now()
	m.cleanupLocalCache()
	metrics.ActiveSessions.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	return &session, nil
}

// UpdateSession persists an existing session.
func (m *Manager) UpdateSession(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}

	session.UpdatedAt = time.Now()

	if err := m.saveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[session.ID] = session
	m.cacheAccess[session.ID] = time.Now()
	m.mu.Unlock()

	return nil
}

// AddMessage appends a transcript message, bounding transcript growth.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Transcript = append(session.Transcript, msg)

	maxTranscript := 100
	if len(session.Transcript) > maxTranscript {
		session.Transcript = session.Transcript[len(session.Transcript)-maxTranscript:]
	}

	return m.UpdateSession(ctx, session)
}

// DeleteSession removes a session from Redis and the local cache.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, m.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	metrics.ActiveSessions.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Deleted session", zap.String("session_id", sessionID))
	return nil
}

func (m *Manager) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (m *Manager) saveSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, m.sessionKey(session.ID), data, ttl).Err()
}

func (m *Manager) cleanupLocalCache() {
	if len(m.localCache) <= m.maxSessions {
		return
	}

	type accessEntry struct {
		id   string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(m.localCache))
	for id := range m.localCache {
		entries = append(entries, accessEntry{id: id, time: m.cacheAccess[id]})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	toRemove := m.maxSessions / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
	}
}

// Close closes the underlying Redis client.
func (m *Manager) Close() error {
	return m.client.Close()
}
