// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package httpserver maps the six wire operations onto the receiver and
// owns the per-push session state.
package httpserver

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/lirios/ostree-upload/pkg/serve"
	"github.com/lirios/ostree-upload/pkg/version"
)

type Server struct {
	srv          *http.Server
	r            *mux.Router
	receiver     *serve.Receiver
	session      *serve.Session
	secret       string
	staticTokens map[string]bool
	serverName   string
}

func (s *Server) initialize() {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/ping", s.OnFunc(s.Ping, OperationPull)).Methods("GET")
	api.HandleFunc("/info", s.OnFunc(s.Info, OperationPull)).Methods("GET")
	api.HandleFunc("/update", s.OnFunc(s.Update, OperationPush)).Methods("POST")
	api.HandleFunc("/missing_objects", s.OnFunc(s.MissingObjects, OperationPull)).Methods("GET")
	api.HandleFunc("/upload", s.OnFunc(s.Upload, OperationPush)).Methods("POST")
	api.HandleFunc("/done", s.OnFunc(s.Done, OperationPush)).Methods("POST")
	s.r = r
	s.srv.Handler = s
}

func NewServer(sc *serve.ServerConfig) (*Server, error) {
	receiver, err := serve.NewReceiver(sc.RepoPath)
	if err != nil {
		return nil, err
	}
	staticTokens := make(map[string]bool, len(sc.Tokens))
	for _, token := range sc.Tokens {
		staticTokens[token] = true
	}
	idleTimeout := sc.IdleTimeout.Duration
	if idleTimeout == 0 {
		idleTimeout = serve.DefaultIdleTimeout
	}
	srv := &Server{
		srv: &http.Server{
			Addr:         sc.Listen(),
			ReadTimeout:  sc.ReadTimeout.Duration,
			WriteTimeout: sc.WriteTimeout.Duration,
			IdleTimeout:  idleTimeout,
		},
		receiver:     receiver,
		session:      &serve.Session{},
		secret:       sc.Secret,
		staticTokens: staticTokens,
		serverName:   "ostree-upload/" + version.GetVersion(),
	}
	srv.initialize()
	return srv, nil
}

func (s *Server) ListenAndServe() error {
	logrus.Infof("Listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func logResponse(hw *ResponseWriter, r *http.Request, tr *trackedReader, spent time.Duration) {
	message := r.Header.Get(ErrorMessageKey)
	if statusCode := hw.StatusCode(); statusCode >= http.StatusBadRequest || len(message) != 0 {
		logrus.Errorf("[%s] %s %s status: %d received: %d written: %d spent: %v message: %s", hw.RemoteAddr(), r.Method, r.RequestURI, hw.StatusCode(), tr.received, hw.Written(), spent, message)
		return
	}
	logrus.Infof("[%s] %s %s status: %d received: %d written: %d spent: %v", hw.RemoteAddr(), r.Method, r.RequestURI, hw.StatusCode(), tr.received, hw.Written(), spent)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// remove multiple slash and ./..
	if r.URL != nil {
		r.URL.Path = path.Clean(r.URL.Path)
	}

	w.Header().Set("Server", s.serverName)
	tr := newTrackedReader(r.Body)
	r.Body = tr
	now := time.Now()
	hw := NewResponseWriter(w, r)
	s.r.ServeHTTP(hw, r)
	logResponse(hw, r, tr, time.Since(now))
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		logrus.Errorf("shutdown http server: %v", err)
	}
	return nil
}
