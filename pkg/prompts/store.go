// Package prompts holds the runtime-editable prompt configuration.
package prompts

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is one consistent view of the prompt configuration.
type Config struct {
	PreCallPrompt       string   `yaml:"pre_call_prompt" json:"pre_call_prompt"`
	InitialMessage      string   `yaml:"initial_message" json:"initial_message"`
	PostCallPrompts     []string `yaml:"post_call_prompts" json:"post_call_prompts"`
	IntrospectionPrompt string   `yaml:"introspection_prompt" json:"introspection_prompt"`
}

// Default returns the configuration used when no prompt file is given.
func Default() Config {
	return Config{
		PreCallPrompt:  "You are a helpful phone assistant. Keep your answers short and conversational.",
		InitialMessage: "Hello! How can I help you today?",
	}
}

// Store guards a Config against concurrent reads and writes.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore returns a store seeded with cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: clone(cfg)}
}

// LoadFile reads a YAML prompt file. Keys missing from the file keep the
// values of Default().
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	return cfg, nil
}

// Snapshot returns a deep copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.cfg)
}

func (s *Store) PreCallPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.PreCallPrompt
}

func (s *Store) SetPreCallPrompt(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.PreCallPrompt = p
}

func (s *Store) InitialMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.InitialMessage
}

func (s *Store) SetInitialMessage(m string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.InitialMessage = m
}

func (s *Store) PostCallPrompts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.PostCallPrompts...)
}

func (s *Store) SetPostCallPrompts(p []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.PostCallPrompts = append([]string(nil), p...)
}

func (s *Store) IntrospectionPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.IntrospectionPrompt
}

// SetIntrospectionPrompt sets the prompt; empty disables introspection.
func (s *Store) SetIntrospectionPrompt(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.IntrospectionPrompt = p
}

func clone(c Config) Config {
	c.PostCallPrompts = append([]string(nil), c.PostCallPrompts...)
	return c
}
