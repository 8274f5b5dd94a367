package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

const maxPromptBody = 1 << 20

type promptBody struct {
	Prompt string `json:"prompt"`
}

type messageBody struct {
	Message string `json:"message"`
}

type promptsBody struct {
	Prompts []string `json:"prompts"`
}

func (s *Server) registerPromptRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /pre-call-prompt", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, promptBody{Prompt: s.prompts.PreCallPrompt()})
	})
	mux.HandleFunc("POST /pre-call-prompt", func(w http.ResponseWriter, r *http.Request) {
		var body promptBody
		if !readJSON(w, r, &body) {
			return
		}
		s.prompts.SetPreCallPrompt(body.Prompt)
		logPromptUpdate("pre_call_prompt")
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("GET /initial-call-message", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, messageBody{Message: s.prompts.InitialMessage()})
	})
	mux.HandleFunc("POST /initial-call-message", func(w http.ResponseWriter, r *http.Request) {
		var body messageBody
		if !readJSON(w, r, &body) {
			return
		}
		s.prompts.SetInitialMessage(body.Message)
		logPromptUpdate("initial_call_message")
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("GET /post-call-prompts", func(w http.ResponseWriter, r *http.Request) {
		p := s.prompts.PostCallPrompts()
		if p == nil {
			p = []string{}
		}
		writeJSON(w, http.StatusOK, promptsBody{Prompts: p})
	})
	mux.HandleFunc("POST /post-call-prompts", func(w http.ResponseWriter, r *http.Request) {
		var body promptsBody
		if !readJSON(w, r, &body) {
			return
		}
		s.prompts.SetPostCallPrompts(body.Prompts)
		logPromptUpdate("post_call_prompts")
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("GET /introspection-prompt", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, promptBody{Prompt: s.prompts.IntrospectionPrompt()})
	})
	mux.HandleFunc("POST /introspection-prompt", func(w http.ResponseWriter, r *http.Request) {
		var body promptBody
		if !readJSON(w, r, &body) {
			return
		}
		s.prompts.SetIntrospectionPrompt(body.Prompt)
		logPromptUpdate("introspection_prompt")
		writeJSON(w, http.StatusOK, body)
	})
}

func logPromptUpdate(key string) {
	log.Info().Str("component", "server").Str("key", key).Msg("prompt updated")
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBody))
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Str("component", "server").Msg("write response")
	}
}
